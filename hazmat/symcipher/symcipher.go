// Package symcipher provides a uniform handle over the symmetric block
// ciphers an OpenPGP-style encrypted data packet may declare, operated in
// the self-synchronizing CFB mode RFC 4880 §13.9 describes: a block cipher
// is opened once, keyed, and then used to decrypt a quick-check prefix and
// a body, with an optional one-time resync between the two.
package symcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"errors"
	"fmt"

	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"
	"golang.org/x/crypto/twofish"
)

// Algo identifies a symmetric cipher algorithm by its OpenPGP registry number
// (RFC 4880 §9.2).
type Algo byte

const (
	AlgoTripleDES Algo = 2
	AlgoCAST5     Algo = 3
	AlgoBlowfish  Algo = 4
	AlgoAES128    Algo = 7
	AlgoAES192    Algo = 8
	AlgoAES256    Algo = 9
	AlgoTwofish   Algo = 10

	// experimentalThreshold marks the boundary past which algorithm IDs are
	// reserved for experimental or private use. CFB resync is never enabled
	// for these, matching GnuPG's treatment: an experimental cipher's
	// resync behavior is not standardized.
	experimentalThreshold = 100
)

// ErrWeakKey is returned by Handle.SetKey when the supplied key is
// cryptographically weak for the chosen algorithm. It is advisory: the
// caller may downgrade it to a warning and continue, per the quick-check
// contract that follows regardless of key strength.
var ErrWeakKey = errors.New("symcipher: weak key")

// ErrUnknownAlgo is returned by TestAlgo and Open for an unregistered
// algorithm ID. AlgoName, AlgoBlockLen and AlgoKeyLen return a zero value
// instead.
var ErrUnknownAlgo = errors.New("symcipher: unknown cipher algorithm")

type algoInfo struct {
	name      string
	keySize   int
	blockSize int
	newBlock  func(key []byte) (cipher.Block, error)
}

var registry = map[Algo]algoInfo{
	AlgoTripleDES: {"3DES", 24, 8, func(key []byte) (cipher.Block, error) { return des.NewTripleDESCipher(key) }},
	AlgoCAST5:     {"CAST5", 16, 8, func(key []byte) (cipher.Block, error) { return cast5.NewCipher(key) }},
	AlgoBlowfish:  {"Blowfish", 16, 8, func(key []byte) (cipher.Block, error) { return blowfish.NewCipher(key) }},
	AlgoAES128:    {"AES-128", 16, 16, func(key []byte) (cipher.Block, error) { return aes.NewCipher(key) }},
	AlgoAES192:    {"AES-192", 24, 16, func(key []byte) (cipher.Block, error) { return aes.NewCipher(key) }},
	AlgoAES256:    {"AES-256", 32, 16, func(key []byte) (cipher.Block, error) { return aes.NewCipher(key) }},
	AlgoTwofish:   {"Twofish", 32, 16, func(key []byte) (cipher.Block, error) { return twofish.NewCipher(key) }},
}

// TestAlgo reports whether algo is a supported cipher, returning ErrUnknownAlgo
// if not.
func TestAlgo(algo Algo) error {
	if _, ok := registry[algo]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAlgo, algo)
	}
	return nil
}

// AlgoName returns the display name of algo, or "" if unregistered.
func AlgoName(algo Algo) string {
	return registry[algo].name
}

// AlgoBlockLen returns the block size, in bytes, of algo, or 0 if unregistered.
func AlgoBlockLen(algo Algo) int {
	return registry[algo].blockSize
}

// AlgoKeyLen returns the key size, in bytes, algo expects, or 0 if unregistered.
func AlgoKeyLen(algo Algo) int {
	return registry[algo].keySize
}

// ExperimentalOrPrivate reports whether algo is numbered 100 or above, the
// range GnuPG reserves for experimental or private ciphers, for which CFB
// resync is never offered.
func ExperimentalOrPrivate(algo Algo) bool {
	return algo >= experimentalThreshold
}

// Handle is an opened, keyed cipher instance performing self-synchronizing
// CFB decryption. A zero Handle is not usable; construct one with Open.
type Handle struct {
	algo       Algo
	block      cipher.Block
	blockSize  int
	enableSync bool

	prev []byte // the block of ciphertext the current keystream was derived from
	ks   []byte // keystream for the block in progress
	fr   []byte // ciphertext bytes accumulated for the block in progress
	pos  int    // bytes of ks consumed so far in the current block
}

// Open opens a cipher handle for algo. enableSync requests that Sync be
// available; per this package's contract, callers should only set it true
// when no MDC is in use and algo is below the experimental threshold —
// Sync itself does not check this.
func Open(algo Algo, enableSync bool) (*Handle, error) {
	info, ok := registry[algo]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAlgo, algo)
	}
	return &Handle{
		algo:       algo,
		blockSize:  info.blockSize,
		enableSync: enableSync,
	}, nil
}

// SyncEnabled reports whether this handle was opened with enableSync set.
func (h *Handle) SyncEnabled() bool {
	return h.enableSync
}

// BlockSize returns the algorithm's block size in bytes.
func (h *Handle) BlockSize() int {
	return h.blockSize
}

// SetKey keys the cipher. A weak key is reported via ErrWeakKey but the
// handle remains usable; any other error is fatal and the handle must be
// discarded.
func (h *Handle) SetKey(key []byte) error {
	info := registry[h.algo]
	if len(key) != info.keySize {
		return fmt.Errorf("symcipher: %s requires a %d-byte key, got %d", info.name, info.keySize, len(key))
	}

	block, err := info.newBlock(key)
	if err != nil {
		return fmt.Errorf("symcipher: key setup failed: %w", err)
	}
	h.block = block

	h.setIV(nil)

	if isWeakKey(h.algo, key) {
		return ErrWeakKey
	}
	return nil
}

// isWeakKey applies a narrow, well-known weak-key check. For three-key
// triple-DES, a key whose three 8-byte thirds are not pairwise distinct
// silently degrades to single- or double-DES strength; GnuPG surfaces the
// same condition as a warning rather than refusing the key outright (the
// quick-check that follows still catches an outright wrong key).
func isWeakKey(algo Algo, key []byte) bool {
	if algo != AlgoTripleDES || len(key) != 24 {
		return false
	}
	k1, k2, k3 := key[0:8], key[8:16], key[16:24]
	return string(k1) == string(k2) || string(k2) == string(k3) || string(k1) == string(k3)
}

// SetIV sets the CFB feedback register. OpenPGP always starts from an
// all-zero IV; iv must be nil or all-zero.
func (h *Handle) SetIV(iv []byte) error {
	for _, b := range iv {
		if b != 0 {
			return errors.New("symcipher: non-zero IV is not supported")
		}
	}
	h.setIV(iv)
	return nil
}

func (h *Handle) setIV(_ []byte) {
	bs := h.blockSize
	h.prev = make([]byte, bs)
	h.fr = make([]byte, 0, bs)
	h.pos = bs // force keystream generation on first Decrypt call
}

// Decrypt decrypts buf in place using self-synchronizing CFB mode.
func (h *Handle) Decrypt(buf []byte) {
	bs := h.blockSize
	for i, c := range buf {
		if h.pos == bs {
			copy(h.prev, h.fr)
			h.ks = make([]byte, bs)
			h.block.Encrypt(h.ks, h.prev)
			h.fr = h.fr[:0]
			h.pos = 0
		}
		buf[i] = c ^ h.ks[h.pos]
		h.fr = append(h.fr, c)
		h.pos++
	}
}

// Sync discards the partial keystream block in progress, realigning the
// feedback register to the last BlockSize ciphertext bytes seen so that the
// next Decrypt call starts at a fresh block boundary. It is the caller's
// responsibility to call this only when SyncEnabled reports true and only
// once, immediately after decrypting the quick-check prefix.
func (h *Handle) Sync() {
	bs := h.blockSize
	n := len(h.fr)
	newPrev := make([]byte, bs)
	copy(newPrev, h.prev[n:])
	copy(newPrev[bs-n:], h.fr)
	h.prev = newPrev
	h.ks = make([]byte, bs)
	h.block.Encrypt(h.ks, h.prev)
	h.fr = h.fr[:0]
	h.pos = 0
}

// Clear zeroes the handle's keystream and feedback buffers and drops its
// keyed block (the block's own key schedule is not zeroed). The handle must
// not be used afterward.
func (h *Handle) Clear() {
	clear(h.prev)
	clear(h.ks)
	clear(h.fr)
	h.block = nil
}
