// Package lookahead implements the two streaming filters a decrypted
// packet body is read through: a plain decrypting reader, and an MDC
// variant that holds the trailing 20 ciphertext bytes in reserve so they
// are never emitted downstream as plaintext.
//
// Both are re-expressed as io.Reader chains, the way aestream.Reader wraps
// a previous io.Reader and transforms bytes on Read, rather than as the
// push-style IOBUF filter callback encr-data.c's mdc_decode_filter and
// decode_filter are built on. robert-ko-golang's seMDCReader/seReader show
// the same construction already re-expressed this way in Go.
package lookahead

import (
	"bufio"
	"io"

	"github.com/quietvault/pgpdecrypt/hazmat/digest"
	"github.com/quietvault/pgpdecrypt/hazmat/symcipher"
)

// EOFKind classifies how an MDCReader reached end of stream.
type EOFKind int

const (
	// EOFNone means the stream has not ended yet.
	EOFNone EOFKind = iota
	// EOFClean means the stream ended with a full 20-byte MDC trailer
	// available for verification.
	EOFClean
	// EOFShort means the stream ended before a 20-byte MDC trailer could
	// be accumulated; the packet is too short to be valid.
	EOFShort
)

// workSize is the internal scratch buffer size. It must exceed 40 bytes
// (at least two deferSize windows plus one more byte to tell a refill
// apart from a steady-state shift); using a much larger size amortizes
// the per-call Read overhead the same way bufio.Writer is recommended
// alongside aestream.Writer.
const workSize = 32 * 1024

const deferSize = 20

// MDCReader decrypts a byte stream while holding the trailing deferSize
// ciphertext bytes in reserve as the MDC trailer candidate, hashing every
// byte it emits downstream. See encr-data.c's mdc_decode_filter for the
// state machine this implements.
type MDCReader struct {
	src    *bufio.Reader
	cipher *symcipher.Handle
	hash   *digest.Handle

	work        []byte
	deferBuf    [deferSize]byte
	deferFilled bool
	eofSeen     EOFKind

	ready []byte
	ioErr error
}

// NewMDCReader wraps src with the MDC look-ahead filter. cipher must
// already be keyed; hash must already have the quick-check prefix written
// to it before the first Read.
func NewMDCReader(src io.Reader, cipher *symcipher.Handle, hash *digest.Handle) *MDCReader {
	return &MDCReader{
		src:    bufio.NewReader(src),
		cipher: cipher,
		hash:   hash,
		work:   make([]byte, workSize),
	}
}

// EOFSeen reports how the stream ended, or EOFNone if it has not ended.
func (r *MDCReader) EOFSeen() EOFKind {
	return r.eofSeen
}

// Trailer returns the 20 bytes held in reserve. It is only meaningful once
// EOFSeen returns EOFClean: at that point it holds the encrypted MDC
// trailer, not yet decrypted.
func (r *MDCReader) Trailer() []byte {
	return r.deferBuf[:]
}

func (r *MDCReader) nextByte() (byte, bool) {
	b, err := r.src.ReadByte()
	if err != nil {
		if err != io.EOF && r.ioErr == nil {
			r.ioErr = err
		}
		return 0, false
	}
	return b, true
}

// Read implements io.Reader, filling its ready buffer one work-sized
// chunk at a time via fill.
func (r *MDCReader) Read(p []byte) (int, error) {
	for len(r.ready) == 0 {
		if r.eofSeen != EOFNone {
			if r.ioErr != nil {
				return 0, r.ioErr
			}
			return 0, io.EOF
		}
		r.fill()
	}
	n := copy(p, r.ready)
	r.ready = r.ready[n:]
	return n, nil
}

// fill implements one invocation of the look-ahead state machine,
// populating r.ready (possibly empty) and, at end of stream, r.eofSeen.
func (r *MDCReader) fill() {
	buf := r.work
	size := len(buf)

	// Read up to 20 bytes into buf[20:40], ahead of the defer window.
	n := deferSize
	for n < 2*deferSize {
		c, ok := r.nextByte()
		if !ok {
			break
		}
		buf[n] = c
		n++
	}

	switch {
	case n == 2*deferSize:
		// We have enough to flush the deferred bytes.
		firstCall := !r.deferFilled
		if firstCall {
			copy(buf[0:deferSize], buf[deferSize:2*deferSize])
			n = deferSize
		} else {
			copy(buf[0:deferSize], r.deferBuf[:])
			// n stays at 2*deferSize; buf[20:40] already holds the fresh
			// look-ahead bytes read above.
		}
		// Fill up the rest of the scratch buffer.
		for n < size {
			c, ok := r.nextByte()
			if !ok {
				break
			}
			buf[n] = c
			n++
		}
		// Move the last 20 bytes of the filled buffer back to defer.
		n -= deferSize
		copy(r.deferBuf[:], buf[n:n+deferSize])
		r.deferFilled = true
		if firstCall && n == 0 {
			// The first call's look-ahead read exactly refilled defer and
			// the follow-up read made no further progress: there was never
			// more than a trailer-sized stream, too short to contain both
			// a trailer and any content it would cover.
			r.eofSeen = EOFShort
		}

	case !r.deferFilled:
		// EOF within the initial look-ahead and nothing deferred yet: the
		// stream is too short to contain an MDC trailer.
		n -= deferSize
		copy(buf[0:n], buf[deferSize:deferSize+n])
		r.eofSeen = EOFShort

	default:
		// Normal EOF: release the deferred bytes and rotate the tail into
		// defer as the MDC trailer candidate.
		copy(buf[0:deferSize], r.deferBuf[:])
		n -= deferSize
		copy(r.deferBuf[:], buf[n:n+deferSize])
		r.eofSeen = EOFClean
	}

	if n > 0 {
		r.cipher.Decrypt(buf[:n])
		r.hash.Write(buf[:n])
		r.ready = buf[:n]
	} else {
		r.ready = nil
	}
}

var _ io.Reader = (*MDCReader)(nil)

// PlainReader decrypts a byte stream in place with no trailer handling and
// no hashing. See encr-data.c's decode_filter.
type PlainReader struct {
	src    io.Reader
	cipher *symcipher.Handle
}

// NewPlainReader wraps src with the no-MDC decrypting filter. cipher must
// already be keyed.
func NewPlainReader(src io.Reader, cipher *symcipher.Handle) *PlainReader {
	return &PlainReader{src: src, cipher: cipher}
}

// Read implements io.Reader.
func (r *PlainReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		r.cipher.Decrypt(p[:n])
		return n, nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

var _ io.Reader = (*PlainReader)(nil)
