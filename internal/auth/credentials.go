package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Checker answers whether a username/secret pair is valid. Pure lookup, the
// registry owns all session state.
type Checker interface {
	Check(username, secret string) bool
}

type staticChecker struct {
	hashes map[string][]byte
}

// NewStaticChecker - builds a checker from a plain credential table, hashing
// every secret with bcrypt up front.
func NewStaticChecker(credentials map[string]string) (Checker, error) {
	hashes := make(map[string][]byte, len(credentials))

	for username, secret := range credentials {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash secret for %q: %w", username, err)
		}
		hashes[username] = hash
	}

	return &staticChecker{hashes: hashes}, nil
}

func (that *staticChecker) Check(username, secret string) bool {
	hash, ok := that.hashes[username]
	if !ok {
		return false
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}

// DefaultCredentials - the built-in user table.
func DefaultCredentials() map[string]string {
	return map[string]string{
		"user1": "password1",
		"user2": "password2",
		"user3": "password3",
		"user4": "password4",
	}
}
