package syncer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZebulonRouseFrantzich/starter/internal/integrity"
	"github.com/ZebulonRouseFrantzich/starter/internal/manifest"
	"github.com/ZebulonRouseFrantzich/starter/internal/marker"
)

// Action is what Apply does to one path.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// Change is one planned action.
type Change struct {
	Path   string
	Action Action
	Entry  manifest.Entry // zero for removals
}

// Plan is the diff between one marker and one manifest snapshot.
type Plan struct {
	Version string
	Changes []Change // adds and updates sorted by path, then removals

	// target is the marker that describes the root once every change
	// has been applied.
	target *marker.VersionMarker
	// unchanged counts remote entries already correct on disk.
	unchanged int
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool {
	return len(p.Changes) == 0
}

// Count returns the number of changes with action a.
func (p *Plan) Count(a Action) int {
	n := 0
	for _, c := range p.Changes {
		if c.Action == a {
			n++
		}
	}
	return n
}

// Unchanged returns the number of manifest entries that need no work.
func (p *Plan) Unchanged() int {
	return p.unchanged
}

// Target returns a copy of the marker that will be persisted once the plan
// has been applied successfully.
func (p *Plan) Target() *marker.VersionMarker {
	return p.target.Clone()
}

func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version %s: %d to add, %d to update, %d to remove, %d unchanged",
		p.Version, p.Count(ActionAdd), p.Count(ActionUpdate), p.Count(ActionRemove), p.unchanged)
	for _, c := range p.Changes {
		fmt.Fprintf(&b, "\n  %-6s %s", c.Action, c.Path)
	}
	return b.String()
}

// Plan diffs local and the files on disk against remote.
//
//   - A remote path whose file on disk verifies against the remote hash needs
//     no work, whatever the marker says.
//   - Otherwise it is updated if the marker tracks it or the file exists, and
//     added if not.
//   - A path tracked by the marker and absent from remote is removed.
//
// Remote paths that collide with the launcher's own state are rejected with
// a *manifest.IntegrityError.
func (s *Synchronizer) Plan(local *marker.VersionMarker, remote *manifest.Manifest) (*Plan, error) {
	if local == nil {
		local = marker.Empty()
	}

	plan := &Plan{
		Version: remote.Version,
		target:  &marker.VersionMarker{Version: remote.Version, Files: make(map[string]string, len(remote.Entries))},
	}

	entries := make([]manifest.Entry, len(remote.Entries))
	copy(entries, remote.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	for _, e := range entries {
		if s.isReserved(e.Path) {
			return nil, &manifest.IntegrityError{Reason: fmt.Sprintf("path %q is reserved for the launcher", e.Path)}
		}
		plan.target.Files[e.Path] = e.Hash

		abs := s.abs(e.Path)
		if integrity.Verify(abs, e.Hash) {
			plan.unchanged++
			if h, tracked := local.Files[e.Path]; tracked && h != e.Hash {
				s.logger.Debug("file already matches manifest", "path", e.Path)
			}
			continue
		}

		action := ActionAdd
		if _, tracked := local.Files[e.Path]; tracked || exists(abs) {
			action = ActionUpdate
		}
		plan.Changes = append(plan.Changes, Change{Path: e.Path, Action: action, Entry: e})
	}

	remotePaths := remote.Paths()
	for _, p := range local.Paths() {
		if remotePaths[p] {
			continue
		}
		if err := manifest.ValidatePath(p); err != nil || s.isReserved(p) {
			s.logger.Warn("ignoring invalid path in version marker", "path", p)
			continue
		}
		plan.Changes = append(plan.Changes, Change{Path: p, Action: ActionRemove})
	}

	return plan, nil
}

func (s *Synchronizer) isReserved(p string) bool {
	first, _, _ := strings.Cut(p, "/")
	if first == StateDirName {
		return true
	}
	for _, r := range s.reserved {
		if p == r {
			return true
		}
	}
	return false
}

func (s *Synchronizer) abs(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p))
}
