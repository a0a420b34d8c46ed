// Package manifest fetches and validates the remote release manifest.
//
// Two sources are supported. URLSource downloads a published manifest
// document (JSON, or YAML when the URL or Content-Type says so) and can check
// a detached OpenPGP signature or a sigstore bundle over the raw bytes.
// GitHubSource derives a manifest from a repository tree listing, using the
// git blob ids GitHub reports as content hashes.
//
// All requests go through Client, which applies a per-request timeout and
// retries transient failures (connection errors, timeouts, HTTP 408, 429 and
// 5xx) with exponential backoff. Other failures return immediately.
package manifest
