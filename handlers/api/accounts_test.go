package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nestmail/config"
)

func TestApplyIMAPDefaults(t *testing.T) {
	defaults := config.IMAPConfig{Server: "imap.example.com", Port: 993}

	tests := []struct {
		name       string
		server     string
		port       int
		wantServer string
		wantPort   int
	}{
		{
			name:       "explicit values win",
			server:     "imap.other.com",
			port:       1993,
			wantServer: "imap.other.com",
			wantPort:   1993,
		},
		{
			name:       "empty request falls back to config",
			wantServer: "imap.example.com",
			wantPort:   993,
		},
		{
			name:       "server from request, port from config",
			server:     "imap.other.com",
			wantServer: "imap.other.com",
			wantPort:   993,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, port := applyIMAPDefaults(tt.server, tt.port, defaults)
			assert.Equal(t, tt.wantServer, server)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestApplyIMAPDefaultsNoConfig(t *testing.T) {
	server, port := applyIMAPDefaults("imap.other.com", 0, config.IMAPConfig{})
	assert.Equal(t, "imap.other.com", server)
	assert.Equal(t, 993, port)

	server, _ = applyIMAPDefaults("", 0, config.IMAPConfig{})
	assert.Empty(t, server)
}
