package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequiresClientID(t *testing.T) {
	cfg := &ServerConfig{SessionBackend: BackendMongo}
	assert.Error(t, cfg.Validate())

	cfg.WorkOSClientID = "client_123"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := &ServerConfig{WorkOSClientID: "client_123", SessionBackend: "cassandra"}
	assert.Error(t, cfg.Validate())
}
