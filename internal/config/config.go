// Package config loads signalserver's configuration from environment
// variables, a `.env` file, and built-in defaults.
//
// Configuration Loading Order (environment wins, defaults lose):
//  1. Process environment variables
//  2. `.env` file (joho/godotenv), if present
//  3. Defaults set below
//
// No command-line flags are layered on top: the serve command defines none
// and uses the returned Config as is.
//
// This mirrors the teacher's `internal/config.Load()` precedence idea
// (settings DB overrides `.env`) with viper's layered provider standing in
// for the settings database, since this system has no settings store.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every knob signalserver needs to start.
type Config struct {
	Port     int    // HTTP server port
	LogLevel string // debug, info, warn, error
	DevMode  bool   // pretty-print logs instead of JSON lines

	StorePath     string // badger data directory; ignored when StoreInMemory
	StoreInMemory bool   // run the store purely in memory (tests, demos)

	StaleThresholdSeconds int64 // §5: observations older than now-this are excluded

	RegistryMinVersion string // lower bound of the accepted registry version range
	IPFSGatewayURL     string // HTTP IPFS gateway base URL

	BinanceURL   string // override for tests; empty uses the adapter's default
	CoinGeckoURL string // override for tests; empty uses the adapter's default

	RestPollIntervalSeconds int // CoinGecko poll interval
	IdleTimeoutSeconds      int // §5: websocket idle-between-messages timeout
	ConnectTimeoutSeconds   int // loaded but not applied: no connector reads it, so websocket dials have no handshake deadline of their own
}

// Load reads configuration from `.env`, the environment, and defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SIGNALSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("dev_mode", false)
	v.SetDefault("store_path", "./data/signalserver.badger")
	v.SetDefault("store_in_memory", false)
	v.SetDefault("stale_threshold_seconds", 60)
	v.SetDefault("registry_min_version", "1.0.0")
	v.SetDefault("ipfs_gateway_url", "https://ipfs.io")
	v.SetDefault("binance_url", "")
	v.SetDefault("coingecko_url", "")
	v.SetDefault("rest_poll_interval_seconds", 30)
	v.SetDefault("idle_timeout_seconds", 60)
	v.SetDefault("connect_timeout_seconds", 30)

	cfg := &Config{
		Port:                    v.GetInt("port"),
		LogLevel:                v.GetString("log_level"),
		DevMode:                 v.GetBool("dev_mode"),
		StorePath:               v.GetString("store_path"),
		StoreInMemory:           v.GetBool("store_in_memory"),
		StaleThresholdSeconds:   v.GetInt64("stale_threshold_seconds"),
		RegistryMinVersion:      v.GetString("registry_min_version"),
		IPFSGatewayURL:          v.GetString("ipfs_gateway_url"),
		BinanceURL:              v.GetString("binance_url"),
		CoinGeckoURL:            v.GetString("coingecko_url"),
		RestPollIntervalSeconds: v.GetInt("rest_poll_interval_seconds"),
		IdleTimeoutSeconds:      v.GetInt("idle_timeout_seconds"),
		ConnectTimeoutSeconds:   v.GetInt("connect_timeout_seconds"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.StaleThresholdSeconds <= 0 {
		return fmt.Errorf("config: stale_threshold_seconds must be positive")
	}
	return nil
}
