package manifest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testTree = `{
  "sha": "9fb037999f264ba9a7fc6274d15fa3ae2ab98312",
  "truncated": false,
  "tree": [
    {"path": "README.md", "mode": "100644", "type": "blob", "sha": "ce013625030ba8dba906f756967f9e9ca394464a", "size": 6},
    {"path": "scripts", "mode": "040000", "type": "tree", "sha": "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"},
    {"path": "scripts/main.py", "mode": "100644", "type": "blob", "sha": "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", "size": 0},
    {"path": "scripts/run.sh", "mode": "100755", "type": "blob", "sha": "ce013625030ba8dba906f756967f9e9ca394464a", "size": 6},
    {"path": "scripts/link", "mode": "120000", "type": "blob", "sha": "ce013625030ba8dba906f756967f9e9ca394464a", "size": 6},
    {"path": "vendor/lib", "mode": "160000", "type": "commit", "sha": "ce013625030ba8dba906f756967f9e9ca394464a"}
  ]
}`

func githubServer(t *testing.T, release int, tree string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/bot/git/trees/main":
			if r.URL.Query().Get("recursive") != "1" {
				t.Errorf("tree request without recursive=1")
			}
			_, _ = w.Write([]byte(tree))
		case "/repos/acme/bot/releases/latest":
			w.WriteHeader(release)
			if release == http.StatusOK {
				_, _ = w.Write([]byte(`{"tag_name": "v1.4.2"}`))
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGitHubSource_Fetch(t *testing.T) {
	tests := []struct {
		name        string
		release     int
		prefix      string
		wantVersion string
		wantPaths   []string
	}{
		{
			name:        "release tag",
			release:     http.StatusOK,
			wantVersion: "v1.4.2",
			wantPaths:   []string{"README.md", "scripts/main.py", "scripts/run.sh"},
		},
		{
			name:        "no release falls back to tree sha",
			release:     http.StatusNotFound,
			wantVersion: "9fb037999f264ba9a7fc6274d15fa3ae2ab98312",
			wantPaths:   []string{"README.md", "scripts/main.py", "scripts/run.sh"},
		},
		{
			name:        "prefix",
			release:     http.StatusOK,
			prefix:      "/scripts/",
			wantVersion: "v1.4.2",
			wantPaths:   []string{"main.py", "run.sh"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := githubServer(t, tt.release, testTree)
			src := &GitHubSource{
				Client: newTestClient(0),
				Owner:  "acme",
				Repo:   "bot",
				Branch: "main",
				Prefix: tt.prefix,
				APIURL: server.URL,
				RawURL: "https://raw.example.com/",
			}

			m, err := src.Fetch(context.Background())
			if err != nil {
				t.Fatalf("Fetch() error: %v", err)
			}
			if m.Version != tt.wantVersion {
				t.Errorf("Version = %q, want %q", m.Version, tt.wantVersion)
			}
			if len(m.Entries) != len(tt.wantPaths) {
				t.Fatalf("got %d entries, want %d: %+v", len(m.Entries), len(tt.wantPaths), m.Entries)
			}
			for i, want := range tt.wantPaths {
				if m.Entries[i].Path != want {
					t.Errorf("entry %d path = %q, want %q", i, m.Entries[i].Path, want)
				}
			}
		})
	}
}

func TestGitHubSource_EntryDetails(t *testing.T) {
	server := githubServer(t, http.StatusOK, testTree)
	src := &GitHubSource{
		Client: newTestClient(0),
		Owner:  "acme",
		Repo:   "bot",
		Branch: "main",
		Prefix: "scripts",
		APIURL: server.URL,
		RawURL: "https://raw.example.com",
	}

	m, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	run, ok := m.Lookup("run.sh")
	if !ok {
		t.Fatal("run.sh missing")
	}
	if run.Hash != "git-sha1:ce013625030ba8dba906f756967f9e9ca394464a" {
		t.Errorf("Hash = %q", run.Hash)
	}
	if run.ContentURL != "https://raw.example.com/acme/bot/main/scripts/run.sh" {
		t.Errorf("ContentURL = %q", run.ContentURL)
	}
	if run.Mode != "0755" {
		t.Errorf("Mode = %q, want 0755", run.Mode)
	}
}

func TestGitHubSource_Truncated(t *testing.T) {
	server := githubServer(t, http.StatusOK, `{"sha":"abc","truncated":true,"tree":[]}`)
	src := &GitHubSource{Client: newTestClient(0), Owner: "acme", Repo: "bot", Branch: "main", APIURL: server.URL, RawURL: server.URL}

	_, err := src.Fetch(context.Background())
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *IntegrityError, got %v", err)
	}
}

func TestGitHubSource_ReleaseServerError(t *testing.T) {
	server := githubServer(t, http.StatusInternalServerError, testTree)
	src := &GitHubSource{Client: newTestClient(1), Owner: "acme", Repo: "bot", Branch: "main", APIURL: server.URL, RawURL: server.URL}

	_, err := src.Fetch(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %v", err)
	}
}
