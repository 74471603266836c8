package encrypt

import (
	"bytes"
	"testing"

	"github.com/bitfsorg/selfencrypt-go/datamap"
)

// FuzzSealOpenRoundTrip verifies that for any plaintext, SealChunk followed
// by OpenChunk returns the original content under every compression scheme.
func FuzzSealOpenRoundTrip(f *testing.F) {
	f.Add([]byte("hello world"))
	f.Add([]byte{0})
	f.Add([]byte{0xff, 0xfe, 0xfd})
	f.Add(make([]byte, 4096))

	neighbors := [][]byte{datamap.Hash([]byte("n1")), zeroHash}

	f.Fuzz(func(t *testing.T, plaintext []byte) {
		if len(plaintext) == 0 {
			return
		}
		for _, scheme := range []Compression{CompressNone, CompressGzip, CompressZstd} {
			pre := datamap.Hash(plaintext)
			sealed, err := SealChunk(plaintext, pre, neighbors, scheme)
			if err != nil {
				t.Fatalf("SealChunk(%s): %v", scheme, err)
			}
			desc := datamap.NewChunkDescriptor(uint32(len(plaintext)))
			if err := desc.MarkFresh(pre, neighbors); err != nil {
				t.Fatal(err)
			}
			desc.ContentHash = sealed.ContentHash

			got, err := OpenChunk(sealed.Ciphertext, &desc)
			if err != nil {
				t.Fatalf("OpenChunk(%s): %v", scheme, err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("round-trip mismatch (%s)", scheme)
			}
		}
	})
}

// FuzzOpenChunkNoPanic feeds arbitrary ciphertext to OpenChunk. It must
// fail cleanly, never panic.
func FuzzOpenChunkNoPanic(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, GCMTagLen))
	f.Add(bytes.Repeat([]byte{0xAA}, 64))

	f.Fuzz(func(t *testing.T, ciphertext []byte) {
		desc := datamap.NewChunkDescriptor(16)
		_ = desc.MarkFresh(datamap.Hash([]byte("pre")), [][]byte{zeroHash, zeroHash})
		desc.ContentHash = datamap.Hash(ciphertext)
		_, _ = OpenChunk(ciphertext, &desc)
	})
}
