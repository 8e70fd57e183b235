package secret

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
)

// exit status of `security find-generic-password` for a missing item
const keychainMissing = 44

// KeychainStore reads secrets from the macOS Keychain through the `security`
// CLI. Entries are generic passwords with account=<key> and service=Service.
type KeychainStore struct {
	Service string

	run func(name string, args ...string) ([]byte, error)
}

func NewKeychainStore() *KeychainStore {
	return &KeychainStore{Service: "dynetl", run: runCommand}
}

func runCommand(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// Get returns nil and no error when the entry does not exist.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := k.run("security", "find-generic-password", "-a", key, "-s", k.Service, "-w")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == keychainMissing {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get %s/%s: %w", k.Service, key, err)
	}
	return bytes.TrimSpace(out), nil
}
