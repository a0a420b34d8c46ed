// Package integrity computes and checks content hashes and verifies
// signatures over manifest payloads.
//
// # Hashes
//
// A hash string is either "algo:hex" or bare hex:
//   - sha256 (bare 64-character hex)
//   - git-sha1, the git blob object id GitHub reports for repository files
//     (bare 40-character hex)
//
// Verify and HashFile never modify the files they read and are safe to call
// concurrently on disjoint paths.
//
// # Signatures
//
// SignatureVerifier checks detached OpenPGP signatures against a keyring on
// disk. BundleVerifier checks sigstore bundles against a trusted root and a
// certificate identity.
package integrity
