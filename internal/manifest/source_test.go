package manifest

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeSignature struct {
	valid []byte
}

func (f fakeSignature) Verify(data, sig []byte) (string, error) {
	if !bytes.Equal(sig, f.valid) {
		return "", errors.New("bad signature")
	}
	return "ABCDEF", nil
}

type fakeBundle struct {
	err error
}

func (f fakeBundle) Verify(data, bundleJSON []byte) error { return f.err }

func manifestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/served-yaml" {
			w.Header().Set("Content-Type", "application/yaml")
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

const testManifestJSON = `{"version":"2.0.0","files":[{"path":"a.txt","hash":"` + hashA + `","content_url":"blobs/a"}]}`

func TestURLSource_Fetch(t *testing.T) {
	server := manifestServer(t, map[string]string{
		"/release/manifest.json": testManifestJSON,
		"/release/manifest.yaml": "version: 2.0.0\nfiles:\n  - path: a.txt\n    hash: " + hashA + "\n    content_url: blobs/a\n",
		"/served-yaml":           "version: 2.0.0\nfiles: []\n",
		"/release/manifest.sig":  "good-sig",
		"/release/bundle.json":   "{}",
		"/release/broken.json":   `{"version": "2.0.0", "files": [`,
		"/release/invalid.json":  `{"version":"2.0.0","files":[{"path":"../x","hash":"` + hashA + `","content_url":"x"}]}`,
	})

	tests := []struct {
		name          string
		src           URLSource
		wantIntegrity bool
		wantErr       bool
		wantFiles     int
	}{
		{
			name:      "json",
			src:       URLSource{URL: server.URL + "/release/manifest.json"},
			wantFiles: 1,
		},
		{
			name:      "yaml by extension",
			src:       URLSource{URL: server.URL + "/release/manifest.yaml"},
			wantFiles: 1,
		},
		{
			name:      "yaml by content type",
			src:       URLSource{URL: server.URL + "/served-yaml"},
			wantFiles: 0,
		},
		{
			name: "valid signature",
			src: URLSource{
				URL:          server.URL + "/release/manifest.json",
				SignatureURL: server.URL + "/release/manifest.sig",
				Signature:    fakeSignature{valid: []byte("good-sig")},
			},
			wantFiles: 1,
		},
		{
			name: "invalid signature",
			src: URLSource{
				URL:          server.URL + "/release/manifest.json",
				SignatureURL: server.URL + "/release/manifest.sig",
				Signature:    fakeSignature{valid: []byte("other")},
			},
			wantErr:       true,
			wantIntegrity: true,
		},
		{
			name: "signature url without checker",
			src: URLSource{
				URL:          server.URL + "/release/manifest.json",
				SignatureURL: server.URL + "/release/manifest.sig",
			},
			wantErr:       true,
			wantIntegrity: true,
		},
		{
			name: "bundle rejected",
			src: URLSource{
				URL:       server.URL + "/release/manifest.json",
				BundleURL: server.URL + "/release/bundle.json",
				Bundle:    fakeBundle{err: errors.New("identity mismatch")},
			},
			wantErr:       true,
			wantIntegrity: true,
		},
		{
			name: "bundle accepted",
			src: URLSource{
				URL:       server.URL + "/release/manifest.json",
				BundleURL: server.URL + "/release/bundle.json",
				Bundle:    fakeBundle{},
			},
			wantFiles: 1,
		},
		{
			name:          "malformed payload",
			src:           URLSource{URL: server.URL + "/release/broken.json"},
			wantErr:       true,
			wantIntegrity: true,
		},
		{
			name:          "invalid entry",
			src:           URLSource{URL: server.URL + "/release/invalid.json"},
			wantErr:       true,
			wantIntegrity: true,
		},
		{
			name:    "not found",
			src:     URLSource{URL: server.URL + "/release/missing.json"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.src.Client = newTestClient(0)
			m, err := tt.src.Fetch(context.Background())

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				var ie *IntegrityError
				if errors.As(err, &ie) != tt.wantIntegrity {
					t.Errorf("IntegrityError match = %v, want %v (err: %v)", !tt.wantIntegrity, tt.wantIntegrity, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error: %v", err)
			}
			if m.Version != "2.0.0" {
				t.Errorf("Version = %q", m.Version)
			}
			if len(m.Entries) != tt.wantFiles {
				t.Fatalf("len(Entries) = %d, want %d", len(m.Entries), tt.wantFiles)
			}
			if tt.wantFiles > 0 && m.Entries[0].ContentURL != server.URL+"/release/blobs/a" {
				t.Errorf("ContentURL = %q", m.Entries[0].ContentURL)
			}
		})
	}
}

func TestURLSource_NotFoundIsNotNetworkError(t *testing.T) {
	server := manifestServer(t, nil)
	src := &URLSource{Client: newTestClient(3), URL: server.URL + "/manifest.json"}

	_, err := src.Fetch(context.Background())
	if !IsNotFound(err) {
		t.Fatalf("expected 404, got %v", err)
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		t.Error("404 should fail immediately, not as a NetworkError")
	}
}
