package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	policy := NewOriginPolicy([]string{"app.internal:3000", "https://ui.example.com"})

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"native client without origin", "", true},
		{"localhost", "http://localhost:5173", true},
		{"loopback ip", "http://127.0.0.1:8080", true},
		{"ipv6 loopback", "http://[::1]:8080", true},
		{"configured host and port", "http://app.internal:3000", true},
		{"configured from url", "https://ui.example.com", true},
		{"configured host other port", "http://app.internal:4000", false},
		{"unknown host", "https://evil.example.com", false},
		{"file scheme", "file://localhost", false},
		{"garbage", "::not a url", false},
		{"case insensitive", "http://APP.internal:3000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.IsAllowedOrigin(tt.origin))
		})
	}
}
