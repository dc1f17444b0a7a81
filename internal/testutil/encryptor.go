package testutil

import (
	"saveswap/internal/encryption"
	"saveswap/internal/swap"
)

// NewTestEncryptor creates a keyless encryptor for testing.
func NewTestEncryptor() swap.Encryptor {
	return encryption.NewPlainEncryptor()
}
