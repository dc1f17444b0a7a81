package encryption

import (
	"bytes"
	"fmt"
	"io"

	"saveswap/internal/swap"
)

// plainHeader marks archives produced by PlainEncryptor.
var plainHeader = []byte("SSPLAIN\x00")

// PlainEncryptor is a keyless swap.Encryptor for tests and for devices where
// only the transport should be trusted. It prefixes a fixed header so an
// "encrypted" archive is still distinguishable from a bare tarball.
type PlainEncryptor struct {
	setupCalled bool
}

var _ swap.Encryptor = (*PlainEncryptor)(nil)

// NewPlainEncryptor creates a new PlainEncryptor.
func NewPlainEncryptor() *PlainEncryptor {
	return &PlainEncryptor{}
}

func (e *PlainEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	return nil
}

func (e *PlainEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(plainHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *PlainEncryptor) Unlock(passphrase string) (swap.DecryptionContext, error) {
	return PlainDecryptionContext{}, nil
}

func (e *PlainEncryptor) IsConfigured() bool {
	return true
}

// PlainDecryptionContext strips the header added by PlainEncryptor.
type PlainDecryptionContext struct{}

var _ swap.DecryptionContext = PlainDecryptionContext{}

func (PlainDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(plainHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header, plainHeader) {
		return fmt.Errorf("invalid archive header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
