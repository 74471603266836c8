// Package datamap describes how a logical byte stream is reconstructed from
// self-encrypted chunks.
//
// A DataMap is an ordered list of ChunkDescriptor records, one per chunk of
// the stream, or, for streams too small to chunk, the stream content itself.
// Each descriptor carries two independent state machines:
//
//	Freshness: Empty -> Outdated -> Fresh, Fresh -> Outdated
//	Storage:   Unstored -> Pending -> Stored, Stored -> Pending, Pending -> Unstored
//
// A chunk's key material is derived from its own pre-hash and the pre-hashes
// of the chunks immediately before it, so a content change must invalidate
// the chunk itself and the chunks that follow it (see Invalidate).
package datamap

import (
	"bytes"
	"crypto/sha512"
	"fmt"
)

// HashSize is the length of every digest in a DataMap (SHA-512 output = 64 bytes).
const HashSize = sha512.Size

// Hash returns the SHA-512 digest of data.
func Hash(data []byte) []byte {
	sum := sha512.Sum512(data)
	return sum[:]
}

// Freshness tracks whether a chunk's pre-hash and derived key are current.
type Freshness uint8

const (
	// Empty means the pre-hash has never been computed.
	Empty Freshness = iota
	// Outdated means the source bytes or a neighbor changed since the last computation.
	Outdated
	// Fresh means the pre-hash and neighbor snapshot are current.
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case Empty:
		return "empty"
	case Outdated:
		return "outdated"
	case Fresh:
		return "fresh"
	default:
		return fmt.Sprintf("freshness(%d)", uint8(f))
	}
}

// StorageState tracks whether a chunk's ciphertext is durably persisted.
type StorageState uint8

const (
	// Stored means the ciphertext addressed by ContentHash is persisted.
	Stored StorageState = iota
	// Pending means a store was scheduled but not confirmed.
	Pending
	// Unstored means no store has been attempted.
	Unstored
)

func (s StorageState) String() string {
	switch s {
	case Stored:
		return "stored"
	case Pending:
		return "pending"
	case Unstored:
		return "unstored"
	default:
		return fmt.Sprintf("storage(%d)", uint8(s))
	}
}

// ChunkDescriptor is the metadata record for one chunk of the stream.
type ChunkDescriptor struct {
	// ContentHash is SHA-512 of the encrypted chunk; it is the storage address.
	ContentHash []byte

	// PreHash is SHA-512 of the unencrypted source bytes.
	PreHash []byte

	// StaleNeighborHash holds the pre-hashes of the preceding chunks, nearest
	// first, as they were when this chunk's key material was last derived.
	StaleNeighborHash [][]byte

	Freshness Freshness
	Storage   StorageState

	// Size is the number of unencrypted bytes the chunk covers.
	Size uint32
}

// NewChunkDescriptor returns an Empty, Unstored descriptor covering size bytes.
func NewChunkDescriptor(size uint32) ChunkDescriptor {
	return ChunkDescriptor{
		Freshness: Empty,
		Storage:   Unstored,
		Size:      size,
	}
}

// MarkOutdated records that the chunk's bytes or key material changed.
// It is valid from every freshness state.
func (c *ChunkDescriptor) MarkOutdated() {
	c.Freshness = Outdated
}

// MarkFresh records a recomputed pre-hash together with the neighbor
// pre-hashes the key material is derived from. Only Empty and Outdated
// descriptors may become Fresh.
func (c *ChunkDescriptor) MarkFresh(preHash []byte, neighbors [][]byte) error {
	if c.Freshness == Fresh {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, Fresh, Fresh)
	}
	if len(preHash) != HashSize {
		return fmt.Errorf("%w: pre-hash must be %d bytes, got %d", ErrInvalidTransition, HashSize, len(preHash))
	}
	c.PreHash = append([]byte(nil), preHash...)
	c.StaleNeighborHash = cloneHashes(neighbors)
	c.Freshness = Fresh
	return nil
}

// NeighborsMatch reports whether the recorded neighbor snapshot equals neighbors.
func (c *ChunkDescriptor) NeighborsMatch(neighbors [][]byte) bool {
	if len(c.StaleNeighborHash) != len(neighbors) {
		return false
	}
	for i := range neighbors {
		if !bytes.Equal(c.StaleNeighborHash[i], neighbors[i]) {
			return false
		}
	}
	return true
}

// BeginStore moves the chunk to Pending. The chunk must be Fresh: storing
// stale key material would produce ciphertext nobody can decrypt.
func (c *ChunkDescriptor) BeginStore() error {
	if c.Freshness != Fresh {
		return fmt.Errorf("%w: chunk is %s", ErrNotFresh, c.Freshness)
	}
	c.Storage = Pending
	return nil
}

// ConfirmStored moves a Pending chunk to Stored.
func (c *ChunkDescriptor) ConfirmStored() error {
	if c.Storage != Pending {
		return fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, c.Storage)
	}
	c.Storage = Stored
	return nil
}

// AbandonStore moves a Pending chunk back to Unstored.
func (c *ChunkDescriptor) AbandonStore() error {
	if c.Storage != Pending {
		return fmt.Errorf("%w: abandon from %s", ErrInvalidTransition, c.Storage)
	}
	c.Storage = Unstored
	return nil
}

// Clone returns a deep copy of the descriptor.
func (c ChunkDescriptor) Clone() ChunkDescriptor {
	out := c
	out.ContentHash = cloneBytes(c.ContentHash)
	out.PreHash = cloneBytes(c.PreHash)
	out.StaleNeighborHash = cloneHashes(c.StaleNeighborHash)
	return out
}

// Invalidate marks chunks[index] Outdated together with the neighbors
// descriptors that follow it, whose key material depends on its pre-hash.
// Indices past the end of the slice are ignored. It returns the touched indices.
func Invalidate(chunks []ChunkDescriptor, index, neighbors int) []int {
	return InvalidateRange(chunks, index, index, neighbors)
}

// InvalidateRange is Invalidate for the run chunks[first..last].
func InvalidateRange(chunks []ChunkDescriptor, first, last, neighbors int) []int {
	if first < 0 {
		first = 0
	}
	end := last + neighbors
	if end >= len(chunks) {
		end = len(chunks) - 1
	}
	if first > end {
		return nil
	}
	touched := make([]int, 0, end-first+1)
	for i := first; i <= end; i++ {
		chunks[i].MarkOutdated()
		touched = append(touched, i)
	}
	return touched
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneHashes(hs [][]byte) [][]byte {
	if hs == nil {
		return nil
	}
	out := make([][]byte, len(hs))
	for i, h := range hs {
		out[i] = cloneBytes(h)
	}
	return out
}
