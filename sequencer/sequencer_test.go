package sequencer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGet(t *testing.T) {
	s := New()
	require.True(t, s.Empty())

	data := []byte("hello")
	require.True(t, s.Add(10, data))
	assert.False(t, s.Empty())

	got := s.Get(10)
	assert.Equal(t, data, got)
	assert.Len(t, got, 5)
	assert.True(t, s.Empty())

	// At-most-once consumption.
	assert.Nil(t, s.Get(10))
}

func TestAdd_ZeroLength(t *testing.T) {
	s := New()
	assert.False(t, s.Add(0, nil))
	assert.False(t, s.Add(0, []byte{}))
	assert.True(t, s.Empty())
}

func TestAdd_SamePositionOverwrites(t *testing.T) {
	s := New()
	require.True(t, s.Add(4, []byte("old data")))
	require.True(t, s.Add(4, []byte("new")))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []byte("new"), s.Peek(4))
}

func TestAdd_OverlappingStartsCoexist(t *testing.T) {
	s := New()
	require.True(t, s.Add(0, []byte("abcdef")))
	require.True(t, s.Add(2, []byte("XY")))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []byte("abcdef"), s.Peek(0))
	assert.Equal(t, []byte("XY"), s.Peek(2))
}

func TestPeek(t *testing.T) {
	s := New()
	require.True(t, s.Add(3, []byte("abc")))

	assert.Equal(t, []byte("abc"), s.Peek(3))
	assert.Equal(t, []byte("abc"), s.Peek(3))
	assert.Nil(t, s.Peek(4))
	assert.Equal(t, 1, s.Len())
}

func TestPeekFirstGetFirst(t *testing.T) {
	s := New()
	_, _, ok := s.PeekFirst()
	assert.False(t, ok)
	_, _, ok = s.GetFirst()
	assert.False(t, ok)

	require.True(t, s.Add(20, []byte("c")))
	require.True(t, s.Add(5, []byte("a")))
	require.True(t, s.Add(10, []byte("b")))

	pos, data, ok := s.PeekFirst()
	require.True(t, ok)
	assert.Equal(t, uint64(5), pos)
	assert.Equal(t, []byte("a"), data)
	assert.Equal(t, 3, s.Len())

	var order []uint64
	for {
		pos, _, ok := s.GetFirst()
		if !ok {
			break
		}
		order = append(order, pos)
	}
	assert.Equal(t, []uint64{5, 10, 20}, order)
	assert.True(t, s.Empty())
}

func TestGetFirst_SmallestForAnyInsertionOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		s := New()
		positions := rng.Perm(40)
		for _, p := range positions {
			require.True(t, s.Add(uint64(p*3), []byte{byte(p)}))
		}
		// Remove a few from the middle to exercise Get alongside GetFirst.
		for _, p := range positions[:5] {
			require.NotNil(t, s.Get(uint64(p*3)))
		}

		var last uint64
		first := true
		for !s.Empty() {
			pos, data, ok := s.GetFirst()
			require.True(t, ok)
			require.Equal(t, byte(pos/3), data[0])
			if !first {
				require.Greater(t, pos, last)
			}
			last, first = pos, false
		}
	}
}

func TestEnd(t *testing.T) {
	s := New()
	assert.Equal(t, uint64(0), s.End())
	require.True(t, s.Add(0, make([]byte, 100)))
	require.True(t, s.Add(50, make([]byte, 10)))
	require.True(t, s.Add(200, make([]byte, 4)))
	assert.Equal(t, uint64(204), s.End())
}

func TestOverlapping(t *testing.T) {
	s := New()
	require.True(t, s.Add(0, []byte("aaaa")))  // [0,4)
	require.True(t, s.Add(4, []byte("bbbb")))  // [4,8)
	require.True(t, s.Add(10, []byte("cccc"))) // [10,14)
	require.True(t, s.Add(20, []byte("dddd"))) // [20,24)

	tests := []struct {
		name       string
		start, end uint64
		want       []uint64
	}{
		{"exact entry", 4, 8, []uint64{4}},
		{"adjacent not overlapping", 8, 10, nil},
		{"spans two", 3, 11, []uint64{0, 4, 10}},
		{"inside one", 11, 12, []uint64{10}},
		{"everything", 0, 100, []uint64{0, 4, 10, 20}},
		{"empty range", 5, 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []uint64
			for _, e := range s.Overlapping(tt.start, tt.end) {
				got = append(got, e.Position)
			}
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 4, s.Len())
}

func TestTruncate(t *testing.T) {
	s := New()
	require.True(t, s.Add(0, []byte("aaaa")))
	require.True(t, s.Add(6, []byte("bbbbbb")))
	require.True(t, s.Add(20, []byte("cc")))

	s.Truncate(9)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []byte("bbb"), s.Peek(6))
	assert.Nil(t, s.Peek(20))
	assert.Equal(t, uint64(9), s.End())

	s.Truncate(0)
	assert.True(t, s.Empty())
}

func TestEntryEnd(t *testing.T) {
	e := Entry{Position: 7, Data: []byte("abc")}
	assert.Equal(t, uint64(10), e.End())
}
