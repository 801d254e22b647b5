package instance

import (
	"os"

	"github.com/angelmondragon/smm-storefront/pkg/env"
)

// GetID names this process in logs and lock values: SMM_INSTANCE_ID, then
// the platform dyno name, then the hostname, then fallback.
func GetID(fallback string) string {
	if id := env.Get("SMM_INSTANCE_ID", env.Get("DYNO", "")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallback
}
