// Package config holds the session-layer configuration.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// SessionConfig tunes the realtime session layer.
type SessionConfig struct {
	// Endpoint is the websocket endpoint of the chat server.
	Endpoint string `env:"CHAT_WS_ENDPOINT"`
	// ReconnectBaseDelay is multiplied by the attempt number to space
	// reconnects (linear backoff).
	ReconnectBaseDelay time.Duration `env:"CHAT_RECONNECT_BASE_DELAY"`
	// MaxReconnectAttempts bounds automatic reconnection.
	MaxReconnectAttempts int `env:"CHAT_MAX_RECONNECT_ATTEMPTS"`
	// PageSize is the history page size for get_messages.
	PageSize int `env:"CHAT_PAGE_SIZE"`
	// AIRecreateDelay debounces AI-group recreation after a deletion.
	AIRecreateDelay time.Duration `env:"CHAT_AI_RECREATE_DELAY"`
	// NoticeTTL is how long a transient notice stays visible.
	NoticeTTL time.Duration `env:"CHAT_NOTICE_TTL"`
	// AIServiceURL is the base URL of the AI-answer HTTP service.
	AIServiceURL string `env:"CHAT_AI_SERVICE_URL"`
}

// Default returns the default session configuration.
func Default() *SessionConfig {
	return &SessionConfig{
		Endpoint:             "ws://localhost:8080/ws",
		ReconnectBaseDelay:   2 * time.Second,
		MaxReconnectAttempts: 5,
		PageSize:             50,
		AIRecreateDelay:      150 * time.Millisecond,
		NoticeTTL:            5 * time.Second,
		AIServiceURL:         "http://localhost:8090",
	}
}

// FromEnv loads the session configuration from environment variables,
// starting from the defaults.
func FromEnv() (*SessionConfig, error) {
	cfg := Default()
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
