package vault

import (
	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

const (
	defaultAddress = "http://127.0.0.1:8200"
	defaultMount   = "kv"
)

// Credentials identify the AppRole the service logs in with.
type Credentials struct {
	Address  string
	RoleID   string
	SecretID string
	// Mount is the KV v2 mount, "kv" when empty.
	Mount string
}

// VaultClient reads secrets with an AppRole token.
type VaultClient struct {
	client *vault.Client
	mount  string
	logger zerolog.Logger
}
