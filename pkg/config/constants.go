package config

// EnvPrefix is empty because every field carries its full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvDBDSN  = "SMM_DB_DSN"
	EnvDBHost = "SMM_DB_HOST"
	EnvDBUser = "SMM_DB_USER"
	EnvDBName = "SMM_DB_NAME"
)

var fallbackDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
