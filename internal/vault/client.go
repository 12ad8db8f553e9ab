// Package vault sources the WEEX API credentials, either from HashiCorp
// Vault KV v2 or from the environment when Vault is disabled.
package vault

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/vault/api"

	"weex-trading-bot/config"
)

// Credentials holds the exchange API credential triple.
type Credentials struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
}

// Environment fallbacks used when Vault is disabled.
const (
	EnvAPIKey     = "WEEX_API_KEY"
	EnvSecretKey  = "WEEX_SECRET"
	EnvPassphrase = "WEEX_PASSPHRASE"
)

// Client wraps the HashiCorp Vault client with an in-memory cache.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a Vault client. With Vault disabled the client serves
// credentials from the environment.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
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

	return &Client{client: client, config: cfg}, nil
}

// GetCredentials returns the WEEX credential triple, from cache, Vault, or
// the environment.
func (c *Client) GetCredentials(ctx context.Context) (*Credentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	var creds *Credentials
	var err error
	if c.config.Enabled {
		creds, err = c.readFromVault(ctx)
	} else {
		creds, err = credentialsFromEnv()
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()
	return creds, nil
}

// StoreCredentials writes the credential triple to Vault and refreshes the
// cache. With Vault disabled only the cache is updated.
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if c.config.Enabled {
		secretData := map[string]interface{}{
			"data": map[string]interface{}{
				"api_key":    creds.APIKey,
				"secret_key": creds.SecretKey,
				"passphrase": creds.Passphrase,
			},
		}
		if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(), secretData); err != nil {
			return fmt.Errorf("failed to store credentials in vault: %w", err)
		}
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return nil
}

func (c *Client) readFromVault(ctx context.Context) (*Credentials, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credentials not found at %s", c.secretPath())
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", c.secretPath())
	}

	creds := &Credentials{
		APIKey:     getString(data, "api_key"),
		SecretKey:  getString(data, "secret_key"),
		Passphrase: getString(data, "passphrase"),
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("incomplete credentials at %s", c.secretPath())
	}
	return creds, nil
}

func credentialsFromEnv() (*Credentials, error) {
	creds := &Credentials{
		APIKey:     os.Getenv(EnvAPIKey),
		SecretKey:  os.Getenv(EnvSecretKey),
		Passphrase: os.Getenv(EnvPassphrase),
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("vault disabled and %s/%s not set", EnvAPIKey, EnvSecretKey)
	}
	return creds, nil
}

// ClearCache drops the cached credentials, forcing a re-read.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// IsEnabled reports whether Vault is the active credential source.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// secretPath is the KV v2 data path for the WEEX credential secret.
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
