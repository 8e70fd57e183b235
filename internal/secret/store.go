package secret

import (
	"context"
	"fmt"
	"os"
	"strings"

	"dynetl/internal/apperrors"
)

// Ref is the prefix marking a source config value as a secret reference,
// e.g. "password": "secret:warehouse-pg". Job definitions store the
// reference; the value is looked up only when the job runs.
const Ref = "secret:"

// SecretStore provides a pluggable interface for reading sensitive data such
// as database passwords. EnvStore reads environment variables; KeychainStore
// reads the macOS Keychain.
type SecretStore interface {
	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)
}

// New returns the store for backend ("env" or "keychain").
func New(backend string) (SecretStore, error) {
	switch backend {
	case "", "env":
		return EnvStore{}, nil
	case "keychain":
		return NewKeychainStore(), nil
	default:
		return nil, fmt.Errorf("unknown secret backend %q", backend)
	}
}

// EnvStore resolves key "warehouse-pg" from ETL_SECRET_WAREHOUSE_PG.
type EnvStore struct{}

func (EnvStore) Get(key string) ([]byte, error) {
	return []byte(os.Getenv(EnvName(key))), nil
}

// EnvName maps a secret key to its environment variable.
func EnvName(key string) string {
	var b strings.Builder
	b.WriteString("ETL_SECRET_")
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Resolve returns a copy of cfg with every top-level "secret:<key>" string
// replaced by the stored value. A reference that resolves to nothing is a
// client error.
func Resolve(_ context.Context, store SecretStore, cfg map[string]any) (map[string]any, error) {
	if store == nil || cfg == nil {
		return cfg, nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, Ref) {
			out[k] = v
			continue
		}
		key := strings.TrimPrefix(s, Ref)
		val, err := store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("resolve secret %q for %s: %w", key, k, err)
		}
		if len(val) == 0 {
			return nil, apperrors.Invalid(apperrors.KindStorage, "resolve secret",
				"secret %q referenced by %s is not set", key, k)
		}
		out[k] = string(val)
	}
	return out, nil
}
