package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ZebulonRouseFrantzich/starter/internal/integrity"
	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
)

// GitHubSource builds a manifest from a repository tree listing.
//
// Every blob below Prefix becomes an entry whose path is relative to Prefix,
// whose hash is the git blob id, and whose content URL points at the raw
// file on Branch. The version is the latest release tag, or the tree sha
// when the repository has no releases.
type GitHubSource struct {
	Client *Client
	Owner  string
	Repo   string
	Branch string
	Prefix string
	APIURL string
	RawURL string
	Logger logging.Logger
}

type treeResponse struct {
	SHA       string     `json:"sha"`
	Tree      []treeNode `json:"tree"`
	Truncated bool       `json:"truncated"`
}

type treeNode struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

type releaseResponse struct {
	TagName string `json:"tag_name"`
}

// Fetch lists the tree and resolves the version.
func (s *GitHubSource) Fetch(ctx context.Context) (*Manifest, error) {
	logger := logging.OrNop(s.Logger)
	api := strings.TrimRight(s.APIURL, "/")
	repoPath := url.PathEscape(s.Owner) + "/" + url.PathEscape(s.Repo)

	treeURL := fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", api, repoPath, url.PathEscape(s.Branch))
	resp, err := s.Client.Get(ctx, treeURL)
	if err != nil {
		return nil, fmt.Errorf("fetch repository tree: %w", err)
	}

	var tree treeResponse
	if err := json.Unmarshal(resp.Body, &tree); err != nil {
		return nil, &IntegrityError{Source: treeURL, Reason: "malformed tree listing", Err: err}
	}
	if tree.Truncated {
		// A partial listing would turn every unlisted file into a removal.
		return nil, &IntegrityError{Source: treeURL, Reason: "tree listing is truncated"}
	}

	version, err := s.latestRelease(ctx, api, repoPath)
	if err != nil {
		return nil, err
	}
	if version == "" {
		version = tree.SHA
		logger.Debug("no release published, using tree sha as version", "sha", tree.SHA)
	}

	m := &Manifest{Version: version}
	prefix := normalizePrefix(s.Prefix)
	for _, node := range tree.Tree {
		if node.Type != "blob" || node.Mode == "120000" {
			continue
		}
		if prefix != "" && !strings.HasPrefix(node.Path, prefix) {
			continue
		}
		rel := strings.TrimPrefix(node.Path, prefix)
		if rel == "" {
			continue
		}

		entry := Entry{
			Path:       rel,
			Hash:       string(integrity.GitSHA1) + ":" + node.SHA,
			ContentURL: s.rawURL(node.Path),
			Size:       node.Size,
		}
		if node.Mode == "100755" {
			entry.Mode = "0755"
		}
		m.Entries = append(m.Entries, entry)
	}

	if err := Validate(m, ""); err != nil {
		return nil, err
	}

	logger.Debug("fetched repository tree", "repo", s.Owner+"/"+s.Repo, "branch", s.Branch, "version", m.Version, "files", len(m.Entries))
	return m, nil
}

func (s *GitHubSource) latestRelease(ctx context.Context, api, repoPath string) (string, error) {
	releaseURL := fmt.Sprintf("%s/repos/%s/releases/latest", api, repoPath)
	resp, err := s.Client.Get(ctx, releaseURL)
	if err != nil {
		if IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("fetch latest release: %w", err)
	}

	var rel releaseResponse
	if err := json.Unmarshal(resp.Body, &rel); err != nil {
		return "", &IntegrityError{Source: releaseURL, Reason: "malformed release", Err: err}
	}
	return rel.TagName, nil
}

func (s *GitHubSource) rawURL(repoFilePath string) string {
	parts := strings.Split(repoFilePath, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s",
		strings.TrimRight(s.RawURL, "/"),
		url.PathEscape(s.Owner), url.PathEscape(s.Repo), url.PathEscape(s.Branch),
		strings.Join(parts, "/"))
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
