// Package instance names the running process in logs and lock owners.
package instance

import (
	"os"
	"strings"

	"github.com/angelmondragon/kolo-backend/pkg/env"
)

// ID identifies this process. WORKER_ID wins when set. On Cloud Run the
// revision plus the container hostname is used, elsewhere the hostname
// alone. fallback covers environments that expose none of these.
func ID(fallback string) string {
	if id, ok := env.Lookup("WORKER_ID"); ok {
		return id
	}
	host, _ := os.Hostname()
	host = strings.TrimSpace(host)
	if rev, ok := env.Lookup("K_REVISION"); ok {
		if host == "" {
			return rev
		}
		return rev + "/" + host
	}
	if host != "" {
		return host
	}
	return fallback
}
