// Package vault resolves service secrets from HashiCorp Vault: the
// database password and the market data API key. With Vault disabled,
// secrets fall back to environment configuration and an in-process cache
// keeps the rest of the service oblivious.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"dca-autopilot/config"
	"dca-autopilot/internal/logging"
)

// Well-known secret names
const (
	SecretDatabasePassword = "database_password"
	SecretMarketAPIKey     = "market_api_key"
)

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	logger *logging.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewClient creates a new Vault client. With the integration disabled the
// client still works as a local secret cache.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{
		config: cfg,
		logger: logging.WithComponent("vault"),
		cache:  make(map[string]string),
	}

	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c.client = client
	return c, nil
}

// GetSecret resolves a named secret, preferring the cache, then Vault,
// then the supplied fallback (typically an environment value). An empty
// result is not an error; callers decide whether the secret is required.
func (c *Client) GetSecret(ctx context.Context, name, fallback string) (string, error) {
	c.mu.RLock()
	if cached, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return fallback, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		c.logger.Warn("Secret path empty, using fallback", "name", name)
		return fallback, nil
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	value := getString(data, name)
	if value == "" {
		c.logger.Warn("Secret not present in vault, using fallback", "name", name)
		return fallback, nil
	}

	c.mu.Lock()
	c.cache[name] = value
	c.mu.Unlock()

	return value, nil
}

// StoreSecret writes a named secret. With Vault disabled the value lives
// only in the local cache.
func (c *Client) StoreSecret(ctx context.Context, name, value string) error {
	c.mu.Lock()
	c.cache[name] = value
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{name: value},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(), payload); err != nil {
		return fmt.Errorf("failed to store secret in vault: %w", err)
	}
	return nil
}

// ClearCache drops every cached secret
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]string)
}

// IsEnabled returns whether the Vault integration is active
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks Vault connectivity
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized || health.Sealed {
		return fmt.Errorf("vault not ready: initialized=%v sealed=%v", health.Initialized, health.Sealed)
	}
	return nil
}

// secretPath builds the KV v2 data path for the service's secrets
func (c *Client) secretPath() string {
	mount := c.config.MountPath
	if mount == "" {
		mount = "secret"
	}
	prefix := c.config.SecretPath
	if prefix == "" {
		prefix = "dca-autopilot"
	}
	return fmt.Sprintf("%s/data/%s", mount, prefix)
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
