package middleware

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const clientIDKey contextKey = "client_id"

func SetClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey, id)
}

// ClientID returns the id set by Authenticate, or the caller's IP when auth did not run.
func ClientID(r *http.Request) string {
	if id, ok := r.Context().Value(clientIDKey).(string); ok && id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
