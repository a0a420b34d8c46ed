package manifest

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/starter/internal/config"
	"github.com/ZebulonRouseFrantzich/starter/internal/integrity"
	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
)

// NewClientFromConfig creates the client shared by the fetcher and the
// synchronizer. With a GitHub source, the token named by github.token_env
// (when set in the environment) is sent with every request.
func NewClientFromConfig(cfg *config.Config, logger logging.Logger) *Client {
	header := http.Header{}
	if gh := cfg.GitHub; gh != nil {
		header.Set("Accept", "application/vnd.github+json")
		if token := os.Getenv(gh.TokenEnv); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	return NewClient(ClientOptions{
		Timeout: cfg.Sync.Timeout,
		Retries: cfg.Sync.Retries,
		Header:  header,
		Logger:  logger,
	})
}

// NewFetcher creates the Fetcher configured in cfg.
func NewFetcher(cfg *config.Config, client *Client, logger logging.Logger) (Fetcher, error) {
	if gh := cfg.GitHub; gh != nil {
		return &GitHubSource{
			Client: client,
			Owner:  gh.Owner,
			Repo:   gh.Repo,
			Branch: gh.Branch,
			Prefix: gh.Prefix,
			APIURL: gh.APIURL,
			RawURL: gh.RawURL,
			Logger: logger,
		}, nil
	}

	src := &URLSource{
		Client:       client,
		URL:          cfg.Manifest.URL,
		SignatureURL: cfg.Manifest.SignatureURL,
		BundleURL:    cfg.Manifest.BundleURL,
		Logger:       logger,
	}

	if cfg.Manifest.Keyring != "" {
		v, err := integrity.NewSignatureVerifier(resolve(cfg.Dir, cfg.Manifest.Keyring))
		if err != nil {
			return nil, fmt.Errorf("load manifest keyring: %w", err)
		}
		src.Signature = v
	}

	if cfg.Manifest.TrustedRoot != "" {
		v, err := integrity.NewBundleVerifier(
			resolve(cfg.Dir, cfg.Manifest.TrustedRoot),
			cfg.Manifest.Identity.Issuer,
			cfg.Manifest.Identity.SANRegexp,
		)
		if err != nil {
			return nil, fmt.Errorf("load sigstore trusted root: %w", err)
		}
		src.Bundle = v
	}

	return src, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
