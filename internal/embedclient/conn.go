package embedclient

import (
	"net/http"
	"time"
)

// ConnectionSettings configures the pooled transport shared by every
// invoker, mirroring the teacher's provider connection-settings shape.
type ConnectionSettings struct {
	RequestTimeoutSec  int
	MaxIdleConnections int
	MaxConnections     int
	IdleTimeoutSec     int
	EnableKeepAlive    bool
	EnableHTTP2        bool
}

// DefaultConnectionSettings mirrors the teacher's defaults: a generous
// idle-connection pool and a 30-second request timeout, matching the
// spec's documented default transport read timeout.
func DefaultConnectionSettings() ConnectionSettings {
	return ConnectionSettings{
		RequestTimeoutSec:  30,
		MaxIdleConnections: 100,
		MaxConnections:     100,
		IdleTimeoutSec:     90,
		EnableKeepAlive:    true,
		EnableHTTP2:        true,
	}
}

// BuildHTTPClient constructs a pooled *http.Client from settings.
func BuildHTTPClient(settings ConnectionSettings) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        settings.MaxIdleConnections,
		MaxIdleConnsPerHost: settings.MaxIdleConnections,
		MaxConnsPerHost:     settings.MaxConnections,
		IdleConnTimeout:     time.Duration(settings.IdleTimeoutSec) * time.Second,
		DisableKeepAlives:   !settings.EnableKeepAlive,
		ForceAttemptHTTP2:   settings.EnableHTTP2,
	}
	return &http.Client{
		Timeout:   time.Duration(settings.RequestTimeoutSec) * time.Second,
		Transport: transport,
	}
}
