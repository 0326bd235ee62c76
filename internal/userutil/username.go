// Package userutil derives per-user names for the pipe and the
// single-instance mutex.
package userutil

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

const maxNameLen = 128

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// CurrentUsername returns the login name of the current user, preferring
// %USERNAME% over the account database lookup.
func CurrentUsername() string {
	if name := strings.TrimSpace(os.Getenv("USERNAME")); name != "" {
		return name
	}
	if current, err := user.Current(); err == nil {
		return current.Username
	}
	return ""
}

// SanitizeUsername normalizes a username for use inside pipe and mutex
// names. Windows account names arrive as DOMAIN\user; the domain part is
// kept so that two domains' users never share a pipe.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	value = strings.ToLower(invalidUsernameRune.ReplaceAllString(value, "_"))
	if len(value) > maxNameLen {
		value = value[:maxNameLen]
	}
	return value
}
