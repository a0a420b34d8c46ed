// Package syncer brings the files under a root directory in line with a
// manifest.
//
// Plan diffs the local VersionMarker and the files on disk against the
// manifest. Apply downloads every added or updated file into a staging
// directory on the same filesystem, verifies it against the manifest hash,
// and renames it into place. Removals run only after every add and update
// succeeded. Apply returns the new marker only when every action succeeded;
// the caller persists it.
//
// A file whose on-disk content already matches the manifest is never
// downloaded, even when the marker disagrees. That makes an interrupted sync
// converge on the next run without rewriting the files it already replaced.
package syncer
