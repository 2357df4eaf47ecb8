package env

import (
	"os"
	"strconv"
	"strings"
)

// Lookup returns the first non-blank value among keys. Hosted platforms and
// local .env files name the same setting differently, so callers list every
// accepted spelling in priority order.
func Lookup(keys ...string) (string, bool) {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val, true
		}
	}
	return "", false
}

// Get returns the value of key or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val, ok := Lookup(key); ok {
		return val
	}
	return fallback
}

// Bool parses key as a boolean. Malformed values fall back.
func Bool(key string, fallback bool) bool {
	val, ok := Lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
