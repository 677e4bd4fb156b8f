// internal/auth/session.go
package auth

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
)

// keyringService is the service name wiki passwords are filed under in
// the system keyring.
const keyringService = "wikimirror"

// ResolvePassword finds the password for a username: the explicit flag
// value wins, then the WIKIMIRROR_PASSWORD environment variable, then
// the system keyring.
func ResolvePassword(username, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("WIKIMIRROR_PASSWORD"); env != "" {
		return env, nil
	}
	secret, err := keyring.Get(keyringService, username)
	if err != nil {
		return "", fmt.Errorf("no password given and keyring lookup failed for %q: %w", username, err)
	}
	log.Debug().Str("user", username).Msg("Password loaded from keyring")
	return secret, nil
}

// StorePassword files a password in the system keyring for later runs.
func StorePassword(username, password string) error {
	if err := keyring.Set(keyringService, username, password); err != nil {
		return fmt.Errorf("storing password in keyring: %w", err)
	}
	return nil
}
