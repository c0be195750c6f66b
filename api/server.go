package api

import (
	"net/http"
	"time"
)

// NewServer wraps handler in an http.Server with conservative timeouts.
// Status-check redirects and webhooks are short requests, so the write
// timeout stays tight.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
