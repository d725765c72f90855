package pgpdecrypt_test

import (
	"bytes"
	"context"
	"crypto/aes"
	"io"
	"testing"

	"github.com/quietvault/pgpdecrypt"
	"github.com/quietvault/pgpdecrypt/hazmat/digest"
	"github.com/quietvault/pgpdecrypt/hazmat/symcipher"
	"github.com/quietvault/pgpdecrypt/internal/testdata"
)

func benchPacket(b *testing.B, key []byte, n int, withMDC bool) []byte {
	b.Helper()
	drbg := testdata.New("pgpdecrypt-bench")
	block, err := aes.NewCipher(key)
	if err != nil {
		b.Fatal(err)
	}
	raw := drbg.Data(16)
	prefixPlain := append(append([]byte(nil), raw...), raw[14], raw[15])
	payload := drbg.Data(n)

	cleartext := append(append([]byte(nil), prefixPlain...), payload...)
	if withMDC {
		h, err := digest.Open(digest.AlgoMDCSHA1)
		if err != nil {
			b.Fatal(err)
		}
		h.Write(prefixPlain)
		h.Write(payload)
		h.Final()
		cleartext = append(cleartext, h.Sum()...)
	}
	return testdata.CFBEncrypt(block, cleartext)
}

func benchmarkDecryptData(b *testing.B, withMDC bool) {
	key := testdata.New("pgpdecrypt-bench-key").Data(16)
	for _, size := range testdata.Sizes {
		body := benchPacket(b, key, size.N, withMDC)
		b.Run(size.Name, func(b *testing.B) {
			ed := &pgpdecrypt.EncryptedData{Len: int64(len(body))}
			dek := &pgpdecrypt.DEK{Algo: symcipher.AlgoAES128, Key: key, Symmetric: true}
			if withMDC {
				ed.MDCMethod = digest.AlgoMDCSHA1
				ed.MDCVersion = 1
			}
			proc := func(ctx context.Context, r io.Reader) error {
				_, err := io.Copy(io.Discard, r)
				return err
			}

			b.SetBytes(int64(size.N))
			b.ReportAllocs()
			for b.Loop() {
				ed.Source = bytes.NewReader(body)
				dek.AlgoInfoPrinted = true
				if err := pgpdecrypt.DecryptData(context.Background(), proc, ed, dek, pgpdecrypt.Options{}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDecryptData_NoMDC(b *testing.B) {
	benchmarkDecryptData(b, false)
}

func BenchmarkDecryptData_MDC(b *testing.B) {
	benchmarkDecryptData(b, true)
}
