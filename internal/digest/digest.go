// Package digest implements the Digest Service (spec §4.4): streaming
// SHA-256 computation over byte streams, fixed-width lowercase hex
// digests, and constant-time verification.
package digest

import (
	"crypto/subtle"
	"io"
	"regexp"

	opencontainersdigest "github.com/opencontainers/go-digest"

	"islandregistry/internal/regerr"
)

// HexWidth is the fixed width of a lowercase hex SHA-256 digest.
const HexWidth = 64

var hexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidateHexWidth checks that s is exactly HexWidth lowercase hex
// characters, the shape spec §4.3/§4.8 requires of a declared sha256.
func ValidateHexWidth(s string) error {
	if !hexPattern.MatchString(s) {
		return regerr.New(regerr.KindInvalidManifest, "sha256 must be 64 lowercase hex characters").
			WithDetails(map[string]any{"field": "sha256", "value": s})
	}
	return nil
}

// Streamer accumulates a SHA-256 digest and a running byte count as
// callers push chunks via Write. It implements io.Writer so it can be
// used directly as the destination of io.Copy while a response body is
// streamed (spec §4.5).
type Streamer struct {
	digester opencontainersdigest.Digester
	size     int64
}

// NewStreamer returns a Streamer ready to accept chunks.
func NewStreamer() *Streamer {
	return &Streamer{digester: opencontainersdigest.SHA256.Digester()}
}

// Write feeds a chunk into the running digest and size counter.
func (s *Streamer) Write(p []byte) (int, error) {
	n, err := s.digester.Hash().Write(p)
	s.size += int64(n)
	return n, err
}

// Size returns the running byte count seen so far.
func (s *Streamer) Size() int64 { return s.size }

// HexDigest finalizes and returns the 64-character lowercase hex digest
// computed so far. It may be called more than once; each call reflects
// all bytes written up to that point without resetting state.
func (s *Streamer) HexDigest() string {
	return s.digester.Digest().Encoded()
}

// VerifyHex performs a constant-time comparison of two hex digest
// strings, returning a digest-mismatch error on inequality.
func VerifyHex(expected, actual string) error {
	if len(expected) != len(actual) {
		return mismatch(expected, actual)
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) != 1 {
		return mismatch(expected, actual)
	}
	return nil
}

func mismatch(expected, actual string) error {
	return regerr.New(regerr.KindDigestMismatch, "digest mismatch").WithDetails(map[string]any{
		"expected": expected,
		"actual":   actual,
	})
}

// VerifySize compares a running/observed size against the declared
// size, returning a size-mismatch error on inequality.
func VerifySize(declared, actual int64) error {
	if declared != actual {
		return regerr.New(regerr.KindSizeMismatch, "size mismatch").WithDetails(map[string]any{
			"declared": declared,
			"actual":   actual,
		})
	}
	return nil
}

// ComputeHex streams r fully through a Streamer and returns the final
// hex digest and total size. Used by tests and any caller that already
// has a fully-buffered or file-backed reader rather than a live HTTP
// response body.
func ComputeHex(r io.Reader) (hex string, size int64, err error) {
	s := NewStreamer()
	if _, err := io.Copy(s, r); err != nil {
		return "", 0, err
	}
	return s.HexDigest(), s.Size(), nil
}
