package manifest

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
)

// Fetcher retrieves the current manifest.
type Fetcher interface {
	Fetch(ctx context.Context) (*Manifest, error)
}

// SignatureChecker verifies a detached signature over a payload and returns
// the signer's identity. *integrity.SignatureVerifier satisfies it.
type SignatureChecker interface {
	Verify(data, sig []byte) (string, error)
}

// BundleChecker verifies a sigstore bundle over a payload.
// *integrity.BundleVerifier satisfies it.
type BundleChecker interface {
	Verify(data, bundleJSON []byte) error
}

// URLSource fetches a published manifest document.
type URLSource struct {
	Client       *Client
	URL          string
	SignatureURL string
	Signature    SignatureChecker // required when SignatureURL is set
	BundleURL    string
	Bundle       BundleChecker // required when BundleURL is set
	Logger       logging.Logger
}

// Fetch downloads, verifies, decodes and validates the manifest.
func (s *URLSource) Fetch(ctx context.Context) (*Manifest, error) {
	logger := logging.OrNop(s.Logger)

	resp, err := s.Client.Get(ctx, s.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}

	if s.SignatureURL != "" {
		if s.Signature == nil {
			return nil, &IntegrityError{Source: s.URL, Reason: "signature_url set without a keyring"}
		}
		sig, err := s.Client.Get(ctx, s.SignatureURL)
		if err != nil {
			return nil, fmt.Errorf("fetch manifest signature: %w", err)
		}
		signer, err := s.Signature.Verify(resp.Body, sig.Body)
		if err != nil {
			return nil, &IntegrityError{Source: s.URL, Reason: "signature verification failed", Err: err}
		}
		logger.Debug("manifest signature verified", "signer", signer)
	}

	if s.BundleURL != "" {
		if s.Bundle == nil {
			return nil, &IntegrityError{Source: s.URL, Reason: "bundle_url set without a trusted root"}
		}
		b, err := s.Client.Get(ctx, s.BundleURL)
		if err != nil {
			return nil, fmt.Errorf("fetch manifest bundle: %w", err)
		}
		if err := s.Bundle.Verify(resp.Body, b.Body); err != nil {
			return nil, &IntegrityError{Source: s.URL, Reason: "bundle verification failed", Err: err}
		}
		logger.Debug("manifest bundle verified")
	}

	m, err := Decode(resp.Body, DetectFormat(s.URL, resp.Header.Get("Content-Type")))
	if err != nil {
		return nil, &IntegrityError{Source: s.URL, Reason: "malformed manifest", Err: err}
	}
	if err := Validate(m, resp.URL); err != nil {
		return nil, err
	}

	logger.Debug("fetched manifest", "url", s.URL, "version", m.Version, "files", len(m.Entries))
	return m, nil
}
