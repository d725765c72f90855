// Package pgpdecrypt implements the streaming decryption core of an
// OpenPGP-style symmetrically encrypted, integrity-protected data packet:
// a CFB quick-check prefix, a decrypting body stream, and an optional MDC
// (Modification Detection Code) trailer verified without ever emitting it
// downstream as plaintext.
//
// Packet framing (length, MDC algorithm id, the body reader itself) is
// produced elsewhere and handed in through EncryptedData; the recursive
// consumer of decrypted cleartext is invoked through PacketProcessor.
// Cipher and hash primitives are consumed through hazmat/symcipher and
// hazmat/digest.
package pgpdecrypt

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/quietvault/pgpdecrypt/hazmat/digest"
	"github.com/quietvault/pgpdecrypt/hazmat/symcipher"
	"github.com/quietvault/pgpdecrypt/internal/iobuf"
	"github.com/quietvault/pgpdecrypt/internal/lookahead"
)

// Sentinel errors surfaced by DecryptData. Programming-error conditions
// (an impossible block size, a declared length shorter than the
// quick-check prefix, a cipher that opens after TestAlgo already approved
// it) panic instead, the way GnuPG's own BUG()/log_fatal treat the same
// conditions.
var (
	// ErrUnknownCipher is returned when dek.Algo is not a registered
	// cipher.
	ErrUnknownCipher = errors.New("pgpdecrypt: unknown cipher algorithm")
	// ErrBadKey is returned when the CFB quick-check prefix fails to
	// verify. No plaintext has been produced yet.
	ErrBadKey = errors.New("pgpdecrypt: quick-check failed")
	// ErrInvalidPacket is returned when the ciphertext is too short to
	// contain a declared MDC trailer, or its framing is malformed.
	ErrInvalidPacket = errors.New("pgpdecrypt: invalid packet")
	// ErrBadSignature is returned when the MDC trailer does not match
	// the computed digest.
	ErrBadSignature = errors.New("pgpdecrypt: MDC verification failed")
)

// DEK is a Data Encryption Key: a symmetric key plus metadata used to
// decrypt one packet.
type DEK struct {
	// Algo is the cipher algorithm id.
	Algo symcipher.Algo
	// Key is the key material, length determined by Algo.
	Key []byte
	// Symmetric indicates the 2-byte quick-check must be enforced. It is
	// false for DEKs arrived at asymmetrically, where the key-exchange
	// layer has already authenticated the key.
	Symmetric bool
	// AlgoInfoPrinted suppresses a repeated informational line when the
	// same DEK decrypts more than one packet. DecryptData sets it; the
	// caller should leave it false on a freshly constructed DEK.
	AlgoInfoPrinted bool
}

// EncryptedData describes one encrypted data packet's body, produced by a
// packet-parsing layer this module does not implement.
type EncryptedData struct {
	// Source is the ciphertext body. DecryptData takes ownership of it on
	// entry and sets this field to nil before returning, so the caller
	// does not re-consume or double-release it.
	Source io.Reader
	// Len is the declared remaining ciphertext length, or 0 to read
	// until Source's EOF ("partial packet" mode).
	Len int64
	// MDCMethod is the MDC hash algorithm id, or 0 for no MDC.
	MDCMethod digest.Algo
	// MDCVersion is the MDC packet's version byte, parsed by the caller
	// from the leading byte of an RFC 4880 §5.13 type-18 packet body
	// ahead of Source. Only checked when MDCMethod != 0, where it must
	// equal 1.
	MDCVersion byte
}

// PacketProcessor drains the decrypted, filtered byte source, recursing
// into nested packets as needed. Its return value is this module's only
// view of downstream failure; DecryptData still attempts MDC finalization
// afterward regardless of it.
type PacketProcessor func(ctx context.Context, source io.Reader) error

// Options configures advisory behavior with no effect on decryption
// correctness.
type Options struct {
	// Infof, if non-nil, receives informational and warning lines (the
	// algorithm-name announcement, a weak-key warning). Nil discards
	// them.
	Infof func(format string, args ...any)
}

func (o Options) logf(format string, args ...any) {
	if o.Infof != nil {
		o.Infof(format, args...)
	}
}

// DecryptData opens the cipher and, if requested, the hash named by dek
// and ed, verifies the CFB quick-check prefix, streams decrypted cleartext
// to proc, and finalizes MDC verification. Every cryptographic handle is
// released before DecryptData returns on any path.
func DecryptData(ctx context.Context, proc PacketProcessor, ed *EncryptedData, dek *DEK, opts Options) error {
	defer func() { ed.Source = nil }()

	if !dek.AlgoInfoPrinted {
		opts.logf("%s encrypted data", symcipher.AlgoName(dek.Algo))
		dek.AlgoInfoPrinted = true
	}

	if err := symcipher.TestAlgo(dek.Algo); err != nil {
		return fmt.Errorf("%w: id %d", ErrUnknownCipher, dek.Algo)
	}

	blockSize := symcipher.AlgoBlockLen(dek.Algo)
	if blockSize == 0 || blockSize > 16 {
		panic(fmt.Sprintf("pgpdecrypt: impossible block size %d for algorithm %d", blockSize, dek.Algo))
	}
	nprefix := blockSize

	if ed.Len != 0 && ed.Len < int64(nprefix+2) {
		panic("pgpdecrypt: declared packet length shorter than the quick-check prefix")
	}

	var hash *digest.Handle
	if ed.MDCMethod != 0 {
		if ed.MDCVersion != 1 {
			return fmt.Errorf("%w: unsupported MDC version %d", ErrInvalidPacket, ed.MDCVersion)
		}
		h, err := digest.Open(ed.MDCMethod)
		if err != nil {
			return fmt.Errorf("%w: mdc hash: %v", ErrInvalidPacket, err)
		}
		hash = h
	}

	enableSync := ed.MDCMethod == 0 && !symcipher.ExperimentalOrPrivate(dek.Algo)
	cipher, err := symcipher.Open(dek.Algo, enableSync)
	if err != nil {
		panic(fmt.Sprintf("pgpdecrypt: cipher open failed after successful TestAlgo: %v", err))
	}
	defer cipher.Clear()

	if err := cipher.SetKey(dek.Key); err != nil {
		if !errors.Is(err, symcipher.ErrWeakKey) {
			panic(fmt.Sprintf("pgpdecrypt: key setup failed: %v", err))
		}
		opts.logf("warning: weak key for %s", symcipher.AlgoName(dek.Algo))
	}
	_ = cipher.SetIV(nil)

	src := iobuf.New(ed.Source, ed.Len)

	var prefixStorage [32]byte
	prefixLen := nprefix + 2
	prefix := prefixStorage[:prefixLen]
	n := readAsMuchAsPossible(src, prefix)
	prefix = prefix[:n]

	cipher.Decrypt(prefix)
	if cipher.SyncEnabled() {
		cipher.Sync()
	}

	if dek.Symmetric {
		if len(prefix) != prefixLen ||
			prefix[nprefix-2] != prefix[nprefix] ||
			prefix[nprefix-1] != prefix[nprefix+1] {
			return ErrBadKey
		}
	}

	if hash != nil {
		hash.Write(prefix)
	}

	var body io.Reader
	var mdc *lookahead.MDCReader
	if hash != nil {
		mdc = lookahead.NewMDCReader(src, cipher, hash)
		body = mdc
	} else {
		body = lookahead.NewPlainReader(src, cipher)
	}

	procErr := proc(ctx, body)

	if hash == nil {
		return procErr
	}

	// Drain any bytes proc left unread so the look-ahead filter reaches a
	// terminal state even if proc returned early. MDC finalization is
	// attempted even when the downstream consumer already failed; only a
	// read error while draining ends the call before it, with that error.
	if _, drainErr := io.Copy(io.Discard, mdc); drainErr != nil && drainErr != io.EOF {
		return errors.Join(procErr, drainErr)
	}

	if mdc.EOFSeen() == lookahead.EOFShort {
		return errors.Join(procErr, ErrInvalidPacket)
	}

	trailer := mdc.Trailer()
	cipher.Decrypt(trailer)
	hash.Final()

	sum := hash.Sum()
	if hash.DigestLen() != digest.MDCDigestLen ||
		len(sum) != len(trailer) ||
		subtle.ConstantTimeCompare(sum, trailer) != 1 {
		return errors.Join(procErr, ErrBadSignature)
	}
	return procErr
}

// readAsMuchAsPossible reads into buf until it is full or r's EOF,
// tolerating short reads the way the quick-check prefix read must.
func readAsMuchAsPossible(r io.Reader, buf []byte) int {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			break
		}
	}
	return total
}

