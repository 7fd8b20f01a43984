// Package config loads the shop's configuration: the reusable core settings
// plus the database and storefront sections.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
)

// ShopConfig holds the storefront settings.
type ShopConfig struct {
	// WalletAddress is the BTC address buyers pay to.
	WalletAddress string `yaml:"wallet_address" envconfig:"SHOP_WALLET_ADDRESS"`
	// OracleBaseURL overrides the ledger/ticker API endpoint; empty selects
	// the public blockchain.info API.
	OracleBaseURL string `yaml:"oracle_base_url" envconfig:"SHOP_ORACLE_BASE_URL"`
	// RateTTLSeconds bounds how long a fetched exchange rate stays fresh.
	RateTTLSeconds int `yaml:"rate_ttl_seconds" envconfig:"SHOP_RATE_TTL_SECONDS"`
	// PaymentWindowMinutes bounds how old a qualifying payment may be.
	PaymentWindowMinutes int `yaml:"payment_window_minutes" envconfig:"SHOP_PAYMENT_WINDOW_MINUTES"`
}

// RateTTL returns the configured rate freshness window; 0 selects the default.
func (s ShopConfig) RateTTL() time.Duration {
	return time.Duration(s.RateTTLSeconds) * time.Second
}

// PaymentWindow returns the configured payment recency window; 0 selects the
// default.
func (s ShopConfig) PaymentWindow() time.Duration {
	return time.Duration(s.PaymentWindowMinutes) * time.Minute
}

// Config aggregates core, database, and shop configuration.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Shop     ShopConfig          `yaml:"shop"`
}

// CoreConfig exposes the embedded core configuration to the shared runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := normalizeShop(&cfg.Shop); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeShop(s *ShopConfig) error {
	s.WalletAddress = strings.TrimSpace(s.WalletAddress)
	if s.WalletAddress == "" {
		return fmt.Errorf("shop.wallet_address is required")
	}
	if s.RateTTLSeconds < 0 {
		return fmt.Errorf("shop.rate_ttl_seconds must be >= 0")
	}
	if s.PaymentWindowMinutes < 0 {
		return fmt.Errorf("shop.payment_window_minutes must be >= 0")
	}
	return nil
}
