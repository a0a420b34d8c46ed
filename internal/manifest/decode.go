package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/starter/internal/integrity"
)

// Format is the encoding of a manifest document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DetectFormat picks YAML when the URL path ends in .yaml/.yml or the
// content type mentions yaml, and JSON otherwise.
func DetectFormat(rawURL, contentType string) Format {
	if strings.Contains(strings.ToLower(contentType), "yaml") {
		return FormatYAML
	}
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Decode parses a manifest document. Unknown fields are rejected so a
// typo in a published manifest cannot silently drop data.
func Decode(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}
	return &m, nil
}

// Validate checks m and resolves relative content URLs against base.
// It returns an *IntegrityError describing the first violation.
func Validate(m *Manifest, base string) error {
	var baseURL *url.URL
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return &IntegrityError{Source: base, Reason: "invalid manifest URL", Err: err}
		}
		baseURL = u
	}

	if strings.TrimSpace(m.Version) == "" {
		return &IntegrityError{Source: base, Reason: "version is empty"}
	}

	seen := make(map[string]bool, len(m.Entries))
	for i := range m.Entries {
		e := &m.Entries[i]

		if err := ValidatePath(e.Path); err != nil {
			return &IntegrityError{Source: base, Reason: fmt.Sprintf("entry %d", i), Err: err}
		}
		if seen[e.Path] {
			return &IntegrityError{Source: base, Reason: fmt.Sprintf("duplicate path %q", e.Path)}
		}
		seen[e.Path] = true

		if _, err := integrity.ParseHash(e.Hash); err != nil {
			return &IntegrityError{Source: base, Reason: fmt.Sprintf("entry %q", e.Path), Err: err}
		}
		if e.Size < 0 {
			return &IntegrityError{Source: base, Reason: fmt.Sprintf("entry %q has negative size", e.Path)}
		}
		if _, err := e.FileMode(); err != nil {
			return &IntegrityError{Source: base, Reason: fmt.Sprintf("entry %q", e.Path), Err: err}
		}

		resolved, err := resolveURL(baseURL, e.ContentURL)
		if err != nil {
			return &IntegrityError{Source: base, Reason: fmt.Sprintf("entry %q content_url", e.Path), Err: err}
		}
		e.ContentURL = resolved
	}

	for _, e := range m.Entries {
		for dir := path.Dir(e.Path); dir != "."; dir = path.Dir(dir) {
			if seen[dir] {
				return &IntegrityError{Source: base, Reason: fmt.Sprintf("path %q is listed as a file and as the parent of %q", dir, e.Path)}
			}
		}
	}

	for i := range m.Launcher {
		b := &m.Launcher[i]
		if b.OS == "" || b.Arch == "" || b.Version == "" {
			return &IntegrityError{Source: base, Reason: fmt.Sprintf("launcher build %d needs os, arch and version", i)}
		}
		if _, err := integrity.ParseHash(b.Hash); err != nil {
			return &IntegrityError{Source: base, Reason: fmt.Sprintf("launcher build %s/%s", b.OS, b.Arch), Err: err}
		}
		resolved, err := resolveURL(baseURL, b.URL)
		if err != nil {
			return &IntegrityError{Source: base, Reason: fmt.Sprintf("launcher build %s/%s url", b.OS, b.Arch), Err: err}
		}
		b.URL = resolved
	}

	return nil
}

// ValidatePath checks that p is a clean, relative, slash-separated path that
// stays inside the root.
func ValidatePath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("path is empty")
	case strings.Contains(p, "\\"):
		return fmt.Errorf("path %q must use forward slashes", p)
	case strings.HasPrefix(p, "/"):
		return fmt.Errorf("path %q must be relative", p)
	case len(p) >= 2 && p[1] == ':':
		return fmt.Errorf("path %q must be relative", p)
	case path.Clean(p) != p:
		return fmt.Errorf("path %q is not clean", p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("path %q must not contain %q", p, part)
		}
	}
	return nil
}

func resolveURL(base *url.URL, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("is empty")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		if base == nil {
			return "", fmt.Errorf("relative URL %q without a base", ref)
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
