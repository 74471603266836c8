package encrypt

import (
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/bitfsorg/selfencrypt-go/datamap"
)

const (
	// HKDFInfo is the constant info string used for chunk key derivation.
	HKDFInfo = "selfencrypt-chunk-key"

	// KeyLen is the length of the derived AES-256 key in bytes.
	KeyLen = 32

	// NonceLen is the length of the derived AES-GCM nonce in bytes.
	NonceLen = 12
)

// zeroHash stands in for the pre-hash of a predecessor that does not exist.
var zeroHash = make([]byte, datamap.HashSize)

// ChunkKey is the key material for one chunk.
type ChunkKey struct {
	Key   []byte
	Nonce []byte
}

// DeriveChunkKey derives a chunk's AES-256 key and GCM nonce.
//
//	key || nonce = HKDF-SHA512(IKM = n1 || n2 || ..., salt = preHash, info = HKDFInfo)
//
// where n1, n2, ... are the pre-hashes of the preceding chunks, nearest
// first. The result depends only on content, so nothing needs to be stored,
// and identical plaintext in an identical neighborhood encrypts identically.
// The chunk's own pre-hash as salt keeps a (key, nonce) pair from ever
// covering two different plaintexts.
func DeriveChunkKey(preHash []byte, neighbors [][]byte) (*ChunkKey, error) {
	if len(preHash) != datamap.HashSize {
		return nil, fmt.Errorf("%w: pre-hash must be %d bytes, got %d", ErrKeyDerivation, datamap.HashSize, len(preHash))
	}
	ikm := make([]byte, 0, len(neighbors)*datamap.HashSize)
	for i, n := range neighbors {
		if len(n) != datamap.HashSize {
			return nil, fmt.Errorf("%w: neighbor %d must be %d bytes, got %d", ErrKeyDerivation, i, datamap.HashSize, len(n))
		}
		ikm = append(ikm, n...)
	}

	r := hkdf.New(sha512.New, ikm, preHash, []byte(HKDFInfo))
	out := make([]byte, KeyLen+NonceLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}
	return &ChunkKey{Key: out[:KeyLen], Nonce: out[KeyLen:]}, nil
}

// NeighborHashes returns the pre-hashes of the count chunks preceding index,
// nearest first, taking zeroHash where no predecessor exists.
func NeighborHashes(preHashes [][]byte, index, count int) [][]byte {
	out := make([][]byte, count)
	for k := 1; k <= count; k++ {
		if j := index - k; j >= 0 {
			out[k-1] = preHashes[j]
		} else {
			out[k-1] = zeroHash
		}
	}
	return out
}

// preHashes collects the current pre-hash of every chunk.
func preHashes(chunks []datamap.ChunkDescriptor) [][]byte {
	out := make([][]byte, len(chunks))
	for i := range chunks {
		out[i] = chunks[i].PreHash
	}
	return out
}
