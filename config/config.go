// Package config loads environment configuration for the facilitator and
// demo resource server processes.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// FacilitatorConfig is the facilitator process's configuration, sourced
// entirely from environment variables with explicit defaults — no
// config-file library is used, matching every pack repo at this scale.
type FacilitatorConfig struct {
	PrivateKey  string
	RPCURL      string
	Network     string
	Port        int
	DatabaseURL string
	LogLevel    string
}

// LoadFacilitatorConfig reads FACILITATOR_PRIVATE_KEY, RPC_URL, NETWORK,
// PORT, DATABASE_URL, and LOG_LEVEL.
func LoadFacilitatorConfig() (FacilitatorConfig, error) {
	privateKey := os.Getenv("FACILITATOR_PRIVATE_KEY")
	if privateKey == "" {
		return FacilitatorConfig{}, fmt.Errorf("FACILITATOR_PRIVATE_KEY is required")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return FacilitatorConfig{}, fmt.Errorf("DATABASE_URL is required")
	}

	return FacilitatorConfig{
		PrivateKey:  privateKey,
		RPCURL:      getEnv("RPC_URL", "https://sepolia.base.org"),
		Network:     getEnv("NETWORK", "eip155:84532"),
		Port:        getEnvInt("PORT", 4402),
		DatabaseURL: databaseURL,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}, nil
}

// ResourceServerConfig is the demo resource server's configuration.
type ResourceServerConfig struct {
	Port           int
	FacilitatorURL string
	Network        string
	PayTo          string
	LogLevel       string
}

// LoadResourceServerConfig reads RESOURCE_SERVER_PORT, FACILITATOR_URL,
// NETWORK, PAY_TO, and LOG_LEVEL.
func LoadResourceServerConfig() (ResourceServerConfig, error) {
	payTo := os.Getenv("PAY_TO")
	if payTo == "" {
		return ResourceServerConfig{}, fmt.Errorf("PAY_TO is required")
	}

	return ResourceServerConfig{
		Port:           getEnvInt("RESOURCE_SERVER_PORT", 4021),
		FacilitatorURL: getEnv("FACILITATOR_URL", "http://localhost:4402"),
		Network:        getEnv("NETWORK", "eip155:84532"),
		PayTo:          payTo,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
