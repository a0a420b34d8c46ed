//go:build windows

package fsutil

func isUnsupported(err error) bool {
	// FlushFileBuffers on a directory handle is not supported.
	return true
}
