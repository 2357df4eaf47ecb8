package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/types"
)

// cloudTraceHeader is set by the Google front end as TRACE_ID/SPAN_ID;o=1.
const cloudTraceHeader = "X-Cloud-Trace-Context"

// inbound ids land in every log line, so only short opaque tokens are trusted
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// RequestID tags the request with a correlation id and echoes it back. A
// client-supplied id wins, then the load balancer's trace id, then a fresh uuid.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := inboundRequestID(r.Header)
			w.Header().Set(types.RequestIDHeader, reqID)

			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func inboundRequestID(h http.Header) string {
	if id := h.Get(types.RequestIDHeader); requestIDPattern.MatchString(id) {
		return id
	}
	trace, _, _ := strings.Cut(h.Get(cloudTraceHeader), "/")
	if requestIDPattern.MatchString(trace) {
		return trace
	}
	return uuid.NewString()
}
