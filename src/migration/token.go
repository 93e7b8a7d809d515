package migration

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 16

// maxTokenAttempts bounds the number of tokens drawn when registering a
// migration whose tokens keep colliding.
const maxTokenAttempts = 8

// Token is an opaque credential. Clients must not be able to guess another
// client's token, so tokens come from a cryptographic source.
type Token string

// TokenSource produces fresh tokens.
type TokenSource interface {
	NewToken() (Token, error)
}

type randomTokens struct{}

// RandomTokens returns the default TokenSource, backed by crypto/rand.
func RandomTokens() TokenSource {
	return randomTokens{}
}

func (randomTokens) NewToken() (Token, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %v", err)
	}
	return Token(hex.EncodeToString(buf)), nil
}
