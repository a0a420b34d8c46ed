package integrity

import (
	"bytes"
	"fmt"

	"github.com/sigstore/sigstore-go/pkg/bundle"
	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/verify"
)

// BundleVerifier checks sigstore bundles produced by keyless signing (for
// example `cosign sign-blob --bundle`).
type BundleVerifier struct {
	verifier *verify.Verifier
	identity verify.CertificateIdentity
}

// NewBundleVerifier loads the trusted root at trustedRootPath and pins the
// certificate issuer and a SAN regexp.
func NewBundleVerifier(trustedRootPath, issuer, sanRegexp string) (*BundleVerifier, error) {
	trustedRoot, err := root.NewTrustedRootFromPath(trustedRootPath)
	if err != nil {
		return nil, fmt.Errorf("load trusted root: %w", err)
	}

	verifier, err := verify.NewVerifier(trustedRoot,
		verify.WithSignedCertificateTimestamps(1),
		verify.WithTransparencyLog(1),
		verify.WithObserverTimestamps(1),
	)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}

	identity, err := verify.NewShortCertificateIdentity(issuer, "", "", sanRegexp)
	if err != nil {
		return nil, fmt.Errorf("certificate identity: %w", err)
	}

	return &BundleVerifier{verifier: verifier, identity: identity}, nil
}

// Verify checks that bundleJSON is a valid sigstore bundle over data.
func (v *BundleVerifier) Verify(data, bundleJSON []byte) error {
	b, err := ParseBundle(bundleJSON)
	if err != nil {
		return err
	}

	policy := verify.NewPolicy(
		verify.WithArtifact(bytes.NewReader(data)),
		verify.WithCertificateIdentity(v.identity),
	)
	if _, err := v.verifier.Verify(b, policy); err != nil {
		return fmt.Errorf("verify bundle: %w", err)
	}
	return nil
}

// ParseBundle decodes a sigstore bundle in its JSON form.
func ParseBundle(data []byte) (*bundle.Bundle, error) {
	var b bundle.Bundle
	if err := b.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	return &b, nil
}
