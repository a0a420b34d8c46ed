package integrity

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// SignatureVerifier checks detached OpenPGP signatures.
type SignatureVerifier struct {
	keyring openpgp.EntityList
}

// NewSignatureVerifier loads an armored or binary keyring from path.
func NewSignatureVerifier(keyringPath string) (*SignatureVerifier, error) {
	data, err := os.ReadFile(keyringPath)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return &SignatureVerifier{keyring: keyring}, nil
}

// Verify checks sig (armored or binary) over data and returns the primary
// key fingerprint of the signer.
func (v *SignatureVerifier) Verify(data, sig []byte) (string, error) {
	signer, err := openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(sig), nil)
	if err != nil {
		signer, err = openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(sig), nil)
	}
	if err != nil {
		return "", fmt.Errorf("verify signature: %w", err)
	}

	return fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint), nil
}
