// Package instance names the running process in logs and lock tokens.
package instance

import (
	"os"
	"strings"
)

// EnvInstanceID overrides the derived identifier, e.g. with a pod name.
const EnvInstanceID = "THREADLINE_INSTANCE_ID"

// GetID returns the configured instance id, then the hostname, then a fixed default.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "instance-0"
}
