// Package credential keeps account passwords in the operating system's
// keyring so the CLI does not need them on the command line.
package credential

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name entries are filed under.
const DefaultService = "kakao-link"

// ErrNotFound is returned by Get when no password is stored for the email.
var ErrNotFound = errors.New("credential: no password stored")

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

// Store reads and writes passwords keyed by account email.
type Store struct {
	Service string
}

// NewStore returns a Store using DefaultService.
func NewStore() *Store {
	return &Store{Service: DefaultService}
}

func (s *Store) service() string {
	if s.Service == "" {
		return DefaultService
	}
	return s.Service
}

// Get returns the password stored for email.
func (s *Store) Get(email string) (string, error) {
	if email == "" {
		return "", fmt.Errorf("credential: email is required")
	}
	pw, err := keyringGet(s.service(), email)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credential: read keyring: %w", err)
	}
	return pw, nil
}

// Set stores password for email, replacing any previous one.
func (s *Store) Set(email, password string) error {
	if email == "" {
		return fmt.Errorf("credential: email is required")
	}
	if err := keyringSet(s.service(), email, password); err != nil {
		return fmt.Errorf("credential: write keyring: %w", err)
	}
	return nil
}

// Delete removes the password for email.  Deleting a missing entry is not
// an error.
func (s *Store) Delete(email string) error {
	err := keyringDelete(s.service(), email)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("credential: delete from keyring: %w", err)
}
