package manifest

import (
	"errors"
	"strings"
	"testing"
)

const (
	hashA = "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	hashB = "sha256:486ea46224d1bb4fb680f34f7c9ad96a8f24ec88be73ea8e5a6c65260e9cb8a7"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        Format
	}{
		{url: "https://example.com/manifest.json", want: FormatJSON},
		{url: "https://example.com/manifest.yaml", want: FormatYAML},
		{url: "https://example.com/manifest.YML?token=1", want: FormatYAML},
		{url: "https://example.com/manifest", contentType: "application/yaml", want: FormatYAML},
		{url: "https://example.com/manifest", contentType: "text/x-yaml; charset=utf-8", want: FormatYAML},
		{url: "https://example.com/manifest", contentType: "application/json", want: FormatJSON},
	}

	for _, tt := range tests {
		if got := DetectFormat(tt.url, tt.contentType); got != tt.want {
			t.Errorf("DetectFormat(%q, %q) = %s, want %s", tt.url, tt.contentType, got, tt.want)
		}
	}
}

func TestDecode(t *testing.T) {
	jsonDoc := `{
  "version": "1.1.0",
  "files": [
    {"path": "a.txt", "hash": "` + hashA + `", "content_url": "files/a.txt"},
    {"path": "bin/run.sh", "hash": "` + hashB + `", "content_url": "https://cdn.example.com/run.sh", "mode": "0755", "size": 5}
  ],
  "launcher": [
    {"os": "linux", "arch": "amd64", "version": "2.0.0", "url": "starter-linux-amd64", "hash": "` + hashA + `"}
  ]
}`

	yamlDoc := `version: 1.1.0
files:
  - path: a.txt
    hash: ` + hashA + `
    content_url: files/a.txt
  - path: bin/run.sh
    hash: ` + hashB + `
    content_url: https://cdn.example.com/run.sh
    mode: "0755"
    size: 5
launcher:
  - os: linux
    arch: amd64
    version: 2.0.0
    url: starter-linux-amd64
    hash: ` + hashA + `
`

	for name, tc := range map[string]struct {
		doc    string
		format Format
	}{
		"json": {doc: jsonDoc, format: FormatJSON},
		"yaml": {doc: yamlDoc, format: FormatYAML},
	} {
		t.Run(name, func(t *testing.T) {
			m, err := Decode([]byte(tc.doc), tc.format)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if err := Validate(m, "https://example.com/releases/manifest"); err != nil {
				t.Fatalf("Validate() error: %v", err)
			}

			if m.Version != "1.1.0" {
				t.Errorf("Version = %q", m.Version)
			}
			if len(m.Entries) != 2 {
				t.Fatalf("len(Entries) = %d, want 2", len(m.Entries))
			}
			if got := m.Entries[0].ContentURL; got != "https://example.com/releases/files/a.txt" {
				t.Errorf("relative content_url resolved to %q", got)
			}
			mode, err := m.Entries[1].FileMode()
			if err != nil || mode != 0o755 {
				t.Errorf("FileMode() = %v, %v", mode, err)
			}
			b, ok := m.LauncherFor("linux", "amd64")
			if !ok {
				t.Fatal("LauncherFor(linux, amd64) not found")
			}
			if b.URL != "https://example.com/releases/starter-linux-amd64" {
				t.Errorf("launcher url = %q", b.URL)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		format Format
	}{
		{name: "not json", doc: "<html>", format: FormatJSON},
		{name: "unknown json field", doc: `{"version":"1","files":[],"extra":true}`, format: FormatJSON},
		{name: "unknown yaml field", doc: "version: 1\nfilez: []\n", format: FormatYAML},
		{name: "wrong type", doc: `{"version":"1","files":{}}`, format: FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.doc), tt.format); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	entry := func(path, hash, url string) Entry {
		return Entry{Path: path, Hash: hash, ContentURL: url}
	}
	const u = "https://example.com/f"

	tests := []struct {
		name    string
		m       Manifest
		wantErr string
	}{
		{
			name: "valid",
			m:    Manifest{Version: "1", Entries: []Entry{entry("a.txt", hashA, u), entry("dir/b.txt", hashB, u)}},
		},
		{
			name: "empty manifest",
			m:    Manifest{Version: "1"},
		},
		{
			name:    "missing version",
			m:       Manifest{Entries: []Entry{entry("a.txt", hashA, u)}},
			wantErr: "version is empty",
		},
		{
			name:    "absolute path",
			m:       Manifest{Version: "1", Entries: []Entry{entry("/etc/passwd", hashA, u)}},
			wantErr: "must be relative",
		},
		{
			name:    "parent traversal",
			m:       Manifest{Version: "1", Entries: []Entry{entry("../outside", hashA, u)}},
			wantErr: "must not contain",
		},
		{
			name:    "unclean path",
			m:       Manifest{Version: "1", Entries: []Entry{entry("a//b", hashA, u)}},
			wantErr: "not clean",
		},
		{
			name:    "backslash",
			m:       Manifest{Version: "1", Entries: []Entry{entry(`a\b`, hashA, u)}},
			wantErr: "forward slashes",
		},
		{
			name:    "duplicate",
			m:       Manifest{Version: "1", Entries: []Entry{entry("a.txt", hashA, u), entry("a.txt", hashB, u)}},
			wantErr: "duplicate path",
		},
		{
			name:    "file and directory",
			m:       Manifest{Version: "1", Entries: []Entry{entry("lib", hashA, u), entry("lib/x.py", hashB, u)}},
			wantErr: "as a file and as the parent",
		},
		{
			name:    "bad hash",
			m:       Manifest{Version: "1", Entries: []Entry{entry("a.txt", "md5:abc", u)}},
			wantErr: "invalid hash",
		},
		{
			name:    "missing content url",
			m:       Manifest{Version: "1", Entries: []Entry{entry("a.txt", hashA, "")}},
			wantErr: "content_url",
		},
		{
			name:    "file scheme",
			m:       Manifest{Version: "1", Entries: []Entry{entry("a.txt", hashA, "file:///etc/passwd")}},
			wantErr: "unsupported scheme",
		},
		{
			name:    "bad mode",
			m:       Manifest{Version: "1", Entries: []Entry{{Path: "a", Hash: hashA, ContentURL: u, Mode: "rwx"}}},
			wantErr: "invalid mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.m, "https://example.com/manifest.json")
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ie *IntegrityError
			if !errors.As(err, &ie) {
				t.Fatalf("expected *IntegrityError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_RelativeWithoutBase(t *testing.T) {
	m := &Manifest{Version: "1", Entries: []Entry{{Path: "a", Hash: hashA, ContentURL: "a"}}}
	if err := Validate(m, ""); err == nil {
		t.Error("expected error for relative content_url without a base")
	}
}
