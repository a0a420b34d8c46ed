package integrity

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // git object ids are sha1 by definition
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"strings"
)

// Algorithm names a content hash algorithm.
type Algorithm string

const (
	// SHA256 is the default algorithm.
	SHA256 Algorithm = "sha256"
	// GitSHA1 is a git blob object id: sha1("blob <size>\x00" + content).
	GitSHA1 Algorithm = "git-sha1"
)

var (
	// ErrChecksumMismatch indicates content does not hash to the expected value.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrInvalidHash indicates a hash string that cannot be parsed.
	ErrInvalidHash = errors.New("invalid hash")
)

// Digest is a parsed hash string.
type Digest struct {
	Algorithm Algorithm
	Hex       string // lower case
}

// String returns the canonical "algo:hex" form.
func (d Digest) String() string {
	return string(d.Algorithm) + ":" + d.Hex
}

// Equal reports whether two digests name the same content.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Hex == other.Hex
}

// ChecksumError provides details about a checksum verification failure.
// It wraps ErrChecksumMismatch so callers can use errors.Is for classification.
type ChecksumError struct {
	Path     string
	Expected string
	Got      string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s: expected %s, got %s", e.Path, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch so callers can use errors.Is.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// ParseHash parses "algo:hex" or bare hex. Bare hex is classified by length.
func ParseHash(s string) (Digest, error) {
	s = strings.TrimSpace(s)
	algo, hexPart, found := strings.Cut(s, ":")
	if !found {
		hexPart = s
		switch len(s) {
		case sha256.Size * 2:
			algo = string(SHA256)
		case sha1.Size * 2:
			algo = string(GitSHA1)
		default:
			return Digest{}, fmt.Errorf("%w: %q has unexpected length %d", ErrInvalidHash, s, len(s))
		}
	}

	d := Digest{Algorithm: Algorithm(strings.ToLower(algo)), Hex: strings.ToLower(hexPart)}

	var size int
	switch d.Algorithm {
	case SHA256:
		size = sha256.Size
	case GitSHA1:
		size = sha1.Size
	default:
		return Digest{}, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidHash, algo)
	}

	raw, err := hex.DecodeString(d.Hex)
	if err != nil || len(raw) != size {
		return Digest{}, fmt.Errorf("%w: %q is not a %s digest", ErrInvalidHash, s, d.Algorithm)
	}

	return d, nil
}

// ComputeHash returns the canonical sha256 hash of data.
func ComputeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return Digest{Algorithm: SHA256, Hex: hex.EncodeToString(sum[:])}.String()
}

// HashBytes hashes data with algo.
func HashBytes(algo Algorithm, data []byte) (Digest, error) {
	return HashReader(algo, bytes.NewReader(data), int64(len(data)))
}

// HashReader hashes size bytes read from r. size is needed up front for
// git-sha1, whose header encodes the content length.
func HashReader(algo Algorithm, r io.Reader, size int64) (Digest, error) {
	h, err := newHasher(algo, size)
	if err != nil {
		return Digest{}, err
	}

	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, fmt.Errorf("hash content: %w", err)
	}
	if n != size {
		return Digest{}, fmt.Errorf("hash content: read %d bytes, expected %d", n, size)
	}

	return Digest{Algorithm: algo, Hex: hex.EncodeToString(h.Sum(nil))}, nil
}

// HashFile hashes the file at path with algo.
func HashFile(path string, algo Algorithm) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Digest{}, err
	}
	if !info.Mode().IsRegular() {
		return Digest{}, fmt.Errorf("%s is not a regular file", path)
	}

	return HashReader(algo, f, info.Size())
}

// Verify reports whether the file at path hashes to expected. A missing or
// unreadable file and an unparseable expected hash all report false; the
// caller treats that as "needs fetch".
func Verify(path, expected string) bool {
	want, err := ParseHash(expected)
	if err != nil {
		return false
	}
	got, err := HashFile(path, want.Algorithm)
	if err != nil {
		return false
	}
	return got.Equal(want)
}

// VerifyFile is Verify with a reason: nil on match, a *ChecksumError on
// mismatch, or the read error.
func VerifyFile(path, expected string) error {
	want, err := ParseHash(expected)
	if err != nil {
		return err
	}
	got, err := HashFile(path, want.Algorithm)
	if err != nil {
		return err
	}
	if !got.Equal(want) {
		return &ChecksumError{Path: path, Expected: want.String(), Got: got.String()}
	}
	return nil
}

func newHasher(algo Algorithm, size int64) (hash.Hash, error) {
	switch algo {
	case SHA256:
		return sha256.New(), nil
	case GitSHA1:
		h := sha1.New() //nolint:gosec // see import
		h.Write([]byte("blob " + strconv.FormatInt(size, 10) + "\x00"))
		return h, nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidHash, algo)
	}
}
