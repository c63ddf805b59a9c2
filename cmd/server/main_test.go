package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"kiosco/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: "short"}))
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: ""}))
	assert.Error(t, validateSecurityConfig(config.Config{
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AppEnv:        "production",
		AllowedOrigin: "*",
	}))
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AppEnv:        "production",
		AllowedOrigin: "https://kiosco.example",
	})
	assert.NoError(t, err)
}

func TestConnectRedisSkipsWhenUnset(t *testing.T) {
	assert.Nil(t, connectRedis(context.Background(), config.Config{}, zap.NewNop()))
}
