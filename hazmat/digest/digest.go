// Package digest provides a uniform handle over the streaming hash
// algorithms an OpenPGP-style encrypted data packet's MDC trailer, or a
// caller's diagnostics, may reference.
package digest

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is the mandated MDC v1 hash (RFC 4880 §5.13), not a choice.
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // a genuine OpenPGP-registered hash algorithm (ID 3).
)

// Algo identifies a hash algorithm by its OpenPGP registry number
// (RFC 4880 §9.4).
type Algo byte

const (
	// AlgoMDCSHA1 is the only hash algorithm RFC 4880 §5.13 permits for an
	// MDC v1 trailer; its digest is always exactly 20 bytes.
	AlgoMDCSHA1   Algo = 2
	AlgoRIPEMD160 Algo = 3
	AlgoSHA256    Algo = 8
)

// MDCDigestLen is the only digest length a caller may accept for an MDC
// trailer — SHA-1's, the sole algorithm RFC 4880 permits there.
const MDCDigestLen = 20

// ErrUnknownAlgo is returned for an unregistered algorithm ID.
var ErrUnknownAlgo = errors.New("digest: unknown hash algorithm")

var registry = map[Algo]func() hash.Hash{
	AlgoMDCSHA1:   sha1.New,
	AlgoRIPEMD160: ripemd160.New,
	AlgoSHA256:    sha256.New,
}

// TestAlgo reports whether algo is a supported hash, returning ErrUnknownAlgo
// if not.
func TestAlgo(algo Algo) error {
	if _, ok := registry[algo]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAlgo, algo)
	}
	return nil
}

// AlgoName returns algo's registry name for advisory output, or "" if
// unregistered.
func AlgoName(algo Algo) string {
	switch algo {
	case AlgoMDCSHA1:
		return "SHA1"
	case AlgoRIPEMD160:
		return "RIPEMD160"
	case AlgoSHA256:
		return "SHA256"
	default:
		return ""
	}
}

// DigestLen returns the digest length, in bytes, algo produces, or 0 if
// unregistered.
func DigestLen(algo Algo) int {
	newHash, ok := registry[algo]
	if !ok {
		return 0
	}
	return newHash().Size()
}

// Handle is an opened, streaming hash instance.
type Handle struct {
	algo Algo
	h    hash.Hash
	tap  func([]byte) // optional debug tap, invoked with each Write's input
	sum  []byte       // set by Final
}

// Open opens a hash handle for algo.
func Open(algo Algo) (*Handle, error) {
	newHash, ok := registry[algo]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgo, algo)
	}
	return &Handle{algo: algo, h: newHash()}, nil
}

// SetDebugTap installs a callback invoked with every byte slice written to
// the hash, mirroring gcry_md_start_debug's hook in encr-data.c. Intended
// for tests; nil disables it.
func (h *Handle) SetDebugTap(tap func([]byte)) {
	h.tap = tap
}

// Write feeds p into the running hash. The MDC covers the quick-check
// prefix and every byte of cleartext, in stream order — callers must
// preserve that ordering.
func (h *Handle) Write(p []byte) {
	if h.tap != nil {
		h.tap(p)
	}
	h.h.Write(p)
}

// Final finalizes the hash. Sum returns the digest after Final has been
// called; calling Write after Final is invalid.
func (h *Handle) Final() {
	h.sum = h.h.Sum(nil)
}

// Sum returns the finalized digest. Must be called after Final.
func (h *Handle) Sum() []byte {
	return h.sum
}

// DigestLen returns the digest length, in bytes, this handle's algorithm
// produces.
func (h *Handle) DigestLen() int {
	return h.h.Size()
}
