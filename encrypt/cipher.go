package encrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/bitfsorg/selfencrypt-go/datamap"
)

// GCMTagLen is the length of the GCM authentication tag in bytes.
const GCMTagLen = 16

// SealedChunk is the output of SealChunk.
type SealedChunk struct {
	// Ciphertext is AES-256-GCM(compress(plaintext)) || tag(16B).
	Ciphertext []byte

	// ContentHash is SHA-512(Ciphertext), the storage address.
	ContentHash []byte
}

// SealChunk compresses and encrypts one chunk of plaintext.
//
// Process:
//  1. Derives key and nonce from preHash and the neighbor pre-hashes
//  2. Compresses the plaintext with the given scheme
//  3. Encrypts with AES-256-GCM
//  4. Computes the content hash of the ciphertext
func SealChunk(plaintext, preHash []byte, neighbors [][]byte, scheme Compression) (*SealedChunk, error) {
	key, err := DeriveChunkKey(preHash, neighbors)
	if err != nil {
		return nil, err
	}
	frame, err := Compress(plaintext, scheme)
	if err != nil {
		return nil, fmt.Errorf("encrypt: compress chunk: %w", err)
	}
	gcm, err := newGCM(key.Key)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, key.Nonce, frame, nil)
	return &SealedChunk{
		Ciphertext:  ciphertext,
		ContentHash: datamap.Hash(ciphertext),
	}, nil
}

// OpenChunk decrypts ciphertext described by desc, using the neighbor
// snapshot recorded when it was sealed.
//
// Process:
//  1. Verifies SHA-512(ciphertext) == desc.ContentHash
//  2. Derives key and nonce from desc.PreHash and desc.StaleNeighborHash
//  3. Decrypts with AES-256-GCM and decompresses
//  4. Verifies SHA-512(plaintext) == desc.PreHash and the length equals desc.Size
//
// Every failed check is reported as ErrIntegrity.
func OpenChunk(ciphertext []byte, desc *datamap.ChunkDescriptor) ([]byte, error) {
	if len(ciphertext) < GCMTagLen {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes", ErrIntegrity, len(ciphertext))
	}
	if !bytes.Equal(datamap.Hash(ciphertext), desc.ContentHash) {
		return nil, fmt.Errorf("%w: content hash mismatch", ErrIntegrity)
	}
	key, err := DeriveChunkKey(desc.PreHash, desc.StaleNeighborHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	gcm, err := newGCM(key.Key)
	if err != nil {
		return nil, err
	}
	frame, err := gcm.Open(nil, key.Nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrIntegrity)
	}
	plaintext, err := Decompress(frame, int(desc.Size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	if len(plaintext) != int(desc.Size) {
		return nil, fmt.Errorf("%w: plaintext is %d bytes, want %d", ErrIntegrity, len(plaintext), desc.Size)
	}
	if !bytes.Equal(datamap.Hash(plaintext), desc.PreHash) {
		return nil, fmt.Errorf("%w: pre-hash mismatch", ErrIntegrity)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encrypt: AES cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encrypt: GCM creation failed: %w", err)
	}
	return gcm, nil
}
