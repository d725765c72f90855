package iobuf_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/quietvault/pgpdecrypt/internal/iobuf"
	"github.com/quietvault/pgpdecrypt/internal/testdata"
)

func TestSource_Bounded(t *testing.T) {
	s := iobuf.New(bytes.NewReader([]byte("hello, world")), 5)

	buf := make([]byte, 3)
	n, err := s.Read(buf)
	if err != nil || n != 3 {
		t.Fatalf("Read() = %d, %v, want 3, nil", n, err)
	}
	if string(buf) != "hel" {
		t.Fatalf("got %q", buf)
	}

	n, err = s.Read(buf)
	if err != nil || n != 2 {
		t.Fatalf("Read() = %d, %v, want 2, nil", n, err)
	}
	if string(buf[:n]) != "lo" {
		t.Fatalf("got %q", buf[:n])
	}

	n, err = s.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("Read() past declared length = %d, %v, want 0, io.EOF", n, err)
	}
}

func TestSource_UnboundedReadsUntilEOF(t *testing.T) {
	s := iobuf.New(bytes.NewReader([]byte("abc")), 0)
	b, err := io.ReadAll(s)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "abc" {
		t.Fatalf("ReadAll() = %q, want %q", b, "abc")
	}
}

func TestSource_GetByte(t *testing.T) {
	s := iobuf.New(bytes.NewReader([]byte("ab")), 0)

	b, ok := s.GetByte()
	if !ok || b != 'a' {
		t.Fatalf("GetByte() = %c, %v, want a, true", b, ok)
	}
	b, ok = s.GetByte()
	if !ok || b != 'b' {
		t.Fatalf("GetByte() = %c, %v, want b, true", b, ok)
	}
	_, ok = s.GetByte()
	if ok {
		t.Fatal("GetByte() at EOF = true, want false")
	}
}

func TestSource_PropagatesNonEOFErrors(t *testing.T) {
	wantErr := errors.New("disk exploded")
	s := iobuf.New(&testdata.ErrReader{Err: wantErr}, 0)

	buf := make([]byte, 4)
	n, err := s.Read(buf)
	if n != 0 || !errors.Is(err, wantErr) {
		t.Fatalf("Read() = %d, %v, want 0, %v", n, err, wantErr)
	}
}
