package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

var ErrSecretNotFound = errors.New("secret not found")

// CredentialsFromEnv reads the VAULT_* variables.
func CredentialsFromEnv() Credentials {
	return Credentials{
		Address:  os.Getenv("VAULT_ADDR"),
		RoleID:   os.Getenv("VAULT_ROLE_ID"),
		SecretID: os.Getenv("VAULT_SECRET_ID"),
		Mount:    os.Getenv("VAULT_KV_MOUNT"),
	}
}

// NewClient logs in to Vault with AppRole credentials.
func NewClient(ctx context.Context, creds Credentials, logger zerolog.Logger) (*VaultClient, error) {
	logger = logger.With().Str("component", "vault").Logger()
	logger.Info().Msg("Initializing Vault client")

	vaultAddr := creds.Address
	if vaultAddr == "" {
		vaultAddr = defaultAddress
		logger.Debug().Str("vault_addr", vaultAddr).Msg("Using default Vault address")
	} else {
		logger.Debug().Str("vault_addr", vaultAddr).Msg("Using configured Vault address")
	}

	if creds.RoleID == "" || creds.SecretID == "" {
		logger.Debug().
			Bool("role_id_set", creds.RoleID != "").
			Bool("secret_id_set", creds.SecretID != "").
			Msg("Required Vault credentials not set")
		return nil, fmt.Errorf("VAULT_ROLE_ID and VAULT_SECRET_ID must be set")
	}

	config := vault.DefaultConfig()
	config.Address = vaultAddr

	client, err := vault.NewClient(config)
	if err != nil {
		logger.Error().Err(err).Str("vault_addr", vaultAddr).Msg("Failed to create Vault client")
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	logger.Debug().
		Str("role_id", maskString(creds.RoleID)).
		Str("secret_id", maskString(creds.SecretID)).
		Msg("Vault credentials found, attempting authentication")

	loginSecret, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
		"role_id":   creds.RoleID,
		"secret_id": creds.SecretID,
	})
	if err != nil {
		logger.Error().
			Err(err).
			Str("role_id", maskString(creds.RoleID)).
			Str("vault_addr", vaultAddr).
			Msg("Failed to authenticate with Vault")
		return nil, fmt.Errorf("failed to login to vault: %w", err)
	}
	if loginSecret == nil || loginSecret.Auth == nil {
		return nil, fmt.Errorf("failed to login to vault: empty auth response")
	}

	client.SetToken(loginSecret.Auth.ClientToken)
	logger.Info().
		Str("vault_addr", vaultAddr).
		Dur("lease", time.Duration(loginSecret.Auth.LeaseDuration)*time.Second).
		Msg("Vault client initialized successfully")
	mount := strings.Trim(creds.Mount, "/")
	if mount == "" {
		mount = defaultMount
	}
	return &VaultClient{client: client, mount: mount, logger: logger}, nil
}

// GetSecret reads the KV v2 secret stored under <mount>/data/<path>.
func (c *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := c.mount + "/data/" + strings.TrimPrefix(path, "/")
	logger := c.logger.With().Str("secret_path", fullPath).Logger()

	secret, err := c.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read secret from Vault")
		return nil, fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	// Vault answers 404 with a nil secret.
	if secret == nil || secret.Data == nil {
		logger.Debug().Msg("Secret not found in Vault")
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		logger.Error().Msg("Secret is not a KV v2 entry")
		return nil, fmt.Errorf("secret %s has no data section", path)
	}
	logger.Debug().Int("keys", len(data)).Msg("Read secret from Vault")
	return data, nil
}

// maskString returns a masked version of a string for logging
func maskString(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
