package datamap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helper functions ---

// makeHash creates a deterministic 64-byte digest from a seed.
func makeHash(seed byte) []byte {
	return Hash([]byte{seed})
}

// freshStored returns a Fresh, Stored descriptor whose hashes derive from seed.
func freshStored(seed byte, size uint32) ChunkDescriptor {
	return ChunkDescriptor{
		ContentHash:       makeHash(seed),
		PreHash:           makeHash(seed + 100),
		StaleNeighborHash: [][]byte{makeHash(seed + 1), makeHash(seed + 2)},
		Freshness:         Fresh,
		Storage:           Stored,
		Size:              size,
	}
}

func sampleMap() *DataMap {
	return &DataMap{Chunks: []ChunkDescriptor{
		freshStored(1, 16),
		freshStored(2, 16),
		freshStored(3, 16),
		freshStored(4, 16),
		freshStored(5, 7),
	}}
}

// --- Freshness state machine ---

func TestChunkDescriptor_NewIsEmptyUnstored(t *testing.T) {
	c := NewChunkDescriptor(10)
	assert.Equal(t, Empty, c.Freshness)
	assert.Equal(t, Unstored, c.Storage)
	assert.Equal(t, uint32(10), c.Size)
}

func TestChunkDescriptor_MarkFresh(t *testing.T) {
	tests := []struct {
		name  string
		start Freshness
		ok    bool
	}{
		{"from empty", Empty, true},
		{"from outdated", Outdated, true},
		{"from fresh", Fresh, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ChunkDescriptor{Freshness: tt.start}
			err := c.MarkFresh(makeHash(1), [][]byte{makeHash(2)})
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, Fresh, c.Freshness)
				assert.Equal(t, makeHash(1), c.PreHash)
				assert.True(t, c.NeighborsMatch([][]byte{makeHash(2)}))
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestChunkDescriptor_MarkFreshBadHash(t *testing.T) {
	c := NewChunkDescriptor(1)
	err := c.MarkFresh([]byte{1, 2, 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Empty, c.Freshness)
}

func TestChunkDescriptor_MarkFreshCopiesInputs(t *testing.T) {
	pre := makeHash(1)
	nb := [][]byte{makeHash(2)}
	c := NewChunkDescriptor(1)
	require.NoError(t, c.MarkFresh(pre, nb))

	pre[0] ^= 0xff
	nb[0][0] ^= 0xff
	assert.Equal(t, makeHash(1), c.PreHash)
	assert.Equal(t, makeHash(2), c.StaleNeighborHash[0])
}

func TestChunkDescriptor_NeighborsMatch(t *testing.T) {
	c := freshStored(1, 1)
	assert.True(t, c.NeighborsMatch([][]byte{makeHash(2), makeHash(3)}))
	assert.False(t, c.NeighborsMatch([][]byte{makeHash(3), makeHash(2)}))
	assert.False(t, c.NeighborsMatch([][]byte{makeHash(2)}))
}

// --- Storage state machine ---

func TestChunkDescriptor_StorageTransitions(t *testing.T) {
	c := NewChunkDescriptor(1)

	// Unstored chunks must be Fresh before storing.
	assert.ErrorIs(t, c.BeginStore(), ErrNotFresh)
	assert.Equal(t, Unstored, c.Storage)

	require.NoError(t, c.MarkFresh(makeHash(1), nil))
	require.NoError(t, c.BeginStore())
	assert.Equal(t, Pending, c.Storage)

	require.NoError(t, c.ConfirmStored())
	assert.Equal(t, Stored, c.Storage)

	// Stored -> Pending when the content is re-persisted.
	require.NoError(t, c.BeginStore())
	assert.Equal(t, Pending, c.Storage)

	require.NoError(t, c.AbandonStore())
	assert.Equal(t, Unstored, c.Storage)
}

func TestChunkDescriptor_InvalidStorageTransitions(t *testing.T) {
	c := freshStored(1, 1)
	assert.ErrorIs(t, c.ConfirmStored(), ErrInvalidTransition)
	assert.ErrorIs(t, c.AbandonStore(), ErrInvalidTransition)

	c.MarkOutdated()
	assert.ErrorIs(t, c.BeginStore(), ErrNotFresh)
	assert.Equal(t, Stored, c.Storage)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "empty", Empty.String())
	assert.Equal(t, "outdated", Outdated.String())
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "stored", Stored.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "unstored", Unstored.String())
	assert.Equal(t, "freshness(9)", Freshness(9).String())
}

// --- Cascade invalidation ---

func TestInvalidate(t *testing.T) {
	tests := []struct {
		name      string
		index     int
		neighbors int
		want      []int
	}{
		{"first chunk", 0, 2, []int{0, 1, 2}},
		{"middle chunk", 1, 2, []int{1, 2, 3}},
		{"clipped at end", 3, 2, []int{3, 4}},
		{"last chunk", 4, 2, []int{4}},
		{"one neighbor", 2, 1, []int{2, 3}},
		{"no neighbors", 2, 0, []int{2}},
		{"out of range", 9, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm := sampleMap()
			got := Invalidate(dm.Chunks, tt.index, tt.neighbors)
			assert.Equal(t, tt.want, got)

			touched := make(map[int]bool)
			for _, i := range got {
				touched[i] = true
			}
			for i, c := range dm.Chunks {
				if touched[i] {
					assert.Equal(t, Outdated, c.Freshness, "chunk %d", i)
				} else {
					assert.Equal(t, Fresh, c.Freshness, "chunk %d", i)
				}
				// Storage state and hashes are untouched.
				assert.Equal(t, Stored, c.Storage)
				assert.Equal(t, makeHash(byte(i+1)), c.ContentHash)
			}
		})
	}
}

func TestInvalidateRange(t *testing.T) {
	dm := sampleMap()
	got := InvalidateRange(dm.Chunks, 1, 2, 2)
	assert.Equal(t, []int{1, 2, 3, 4}, got)
	assert.Equal(t, Fresh, dm.Chunks[0].Freshness)
}

// --- DataMap ---

func TestDataMap_Equal(t *testing.T) {
	a := sampleMap()
	b := sampleMap()
	assert.True(t, a.Equal(b))

	// Working state does not take part in equality.
	b.Chunks[1].Freshness = Outdated
	b.Chunks[1].Storage = Pending
	b.Chunks[1].PreHash = makeHash(99)
	assert.True(t, a.Equal(b))

	b.Chunks[2].ContentHash = makeHash(42)
	assert.False(t, a.Equal(b))

	c := sampleMap()
	c.Chunks = c.Chunks[:4]
	assert.False(t, a.Equal(c))
}

func TestDataMap_EqualInline(t *testing.T) {
	a := &DataMap{Content: []byte("hello")}
	b := &DataMap{Content: []byte("hello")}
	c := &DataMap{Content: []byte("hellO")}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(sampleMap()))
	assert.True(t, New().Equal(New()))
	assert.False(t, a.Equal(nil))
}

func TestDataMap_SizeAndOffsets(t *testing.T) {
	dm := sampleMap()
	assert.Equal(t, uint64(71), dm.Size())
	assert.Equal(t, []uint64{0, 16, 32, 48, 64}, dm.Offsets())

	inline := &DataMap{Content: []byte("abc")}
	assert.Equal(t, uint64(3), inline.Size())
	assert.Empty(t, inline.Offsets())
}

func TestDataMap_CompleteAndPending(t *testing.T) {
	dm := sampleMap()
	assert.True(t, dm.Complete())
	assert.Empty(t, dm.Pending())

	dm.Chunks[3].Storage = Pending
	assert.False(t, dm.Complete())
	assert.Equal(t, []int{3}, dm.Pending())

	dm.Chunks[3].Storage = Stored
	dm.Chunks[0].Freshness = Outdated
	assert.False(t, dm.Complete())
}

func TestDataMap_CloneIsDeep(t *testing.T) {
	dm := sampleMap()
	cp := dm.Clone()
	require.True(t, dm.Equal(cp))

	cp.Chunks[0].ContentHash[0] ^= 0xff
	cp.Chunks[0].StaleNeighborHash[0][0] ^= 0xff
	assert.False(t, dm.Equal(cp))
	assert.True(t, bytes.Equal(makeHash(2), dm.Chunks[0].StaleNeighborHash[0]))
}
