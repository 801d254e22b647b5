package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Dump flattens err into loggable fields, including driver-level Postgres detail.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	if code, constraint, ok := postgresFields(err, &d); ok {
		d.PGCode = code
		d.PGConstraint = constraint
	}
	return d
}

// IsUniqueViolation reports a unique-key failure from Postgres (pgx or lib/pq)
// or SQLite. A non-empty constraint narrows the match.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var d ErrorDump
	if code, name, ok := postgresFields(err, &d); ok {
		if code != pgUniqueViolation {
			return false
		}
		return constraint == "" || name == constraint
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint)
}

func postgresFields(err error, d *ErrorDump) (string, string, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGTable = pgxErr.TableName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
		return pgxErr.Code, pgxErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGTable = pqErr.Table
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}
