// Package sequencer implements a random-access write buffer keyed by stream
// offset.
//
// Entries are byte ranges that have not been folded into committed chunk
// content yet. They may arrive in any order; PeekFirst and GetFirst always
// return the entry with the smallest starting offset so a caller can drain
// the buffer in stream order. A Sequencer is not safe for concurrent use.
package sequencer

import "sort"

// Entry is one buffered range.
type Entry struct {
	Position uint64
	Data     []byte
}

// End returns the offset one past the last byte of the entry.
func (e Entry) End() uint64 {
	return e.Position + uint64(len(e.Data))
}

// Sequencer buffers byte ranges keyed by their starting offset.
type Sequencer struct {
	positions []uint64 // sorted ascending, one per entry
	entries   map[uint64][]byte
}

// New returns an empty Sequencer.
func New() *Sequencer {
	return &Sequencer{entries: make(map[uint64][]byte)}
}

// Add buffers data at position, replacing any entry starting at the same
// position. The Sequencer keeps the slice; callers must not modify it
// afterwards. Add fails only for empty data.
func (s *Sequencer) Add(position uint64, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if _, ok := s.entries[position]; !ok {
		i := s.search(position)
		s.positions = append(s.positions, 0)
		copy(s.positions[i+1:], s.positions[i:])
		s.positions[i] = position
	}
	s.entries[position] = data
	return true
}

// Peek returns the entry starting exactly at position, or nil.
func (s *Sequencer) Peek(position uint64) []byte {
	return s.entries[position]
}

// Get returns and removes the entry starting exactly at position, or nil.
func (s *Sequencer) Get(position uint64) []byte {
	data, ok := s.entries[position]
	if !ok {
		return nil
	}
	s.remove(position)
	return data
}

// PeekFirst returns the entry with the smallest starting offset.
// ok is false when the Sequencer is empty.
func (s *Sequencer) PeekFirst() (position uint64, data []byte, ok bool) {
	if len(s.positions) == 0 {
		return 0, nil, false
	}
	position = s.positions[0]
	return position, s.entries[position], true
}

// GetFirst is PeekFirst that also removes the returned entry.
func (s *Sequencer) GetFirst() (position uint64, data []byte, ok bool) {
	position, data, ok = s.PeekFirst()
	if ok {
		s.remove(position)
	}
	return position, data, ok
}

// Empty reports whether no entries remain.
func (s *Sequencer) Empty() bool {
	return len(s.positions) == 0
}

// Len returns the number of buffered entries.
func (s *Sequencer) Len() int {
	return len(s.positions)
}

// End returns the largest end offset over all entries, or 0 when empty.
func (s *Sequencer) End() uint64 {
	var end uint64
	for _, p := range s.positions {
		if e := p + uint64(len(s.entries[p])); e > end {
			end = e
		}
	}
	return end
}

// Overlapping returns, in ascending position order, every entry that shares
// at least one byte with [start, end). The entries stay buffered.
func (s *Sequencer) Overlapping(start, end uint64) []Entry {
	if start >= end {
		return nil
	}
	var out []Entry
	for _, p := range s.positions {
		if p >= end {
			break
		}
		data := s.entries[p]
		if p+uint64(len(data)) > start {
			out = append(out, Entry{Position: p, Data: data})
		}
	}
	return out
}

// Truncate drops every byte at or past size: entries starting there are
// removed and an entry crossing size is shortened.
func (s *Sequencer) Truncate(size uint64) {
	i := s.search(size)
	for _, p := range s.positions[i:] {
		delete(s.entries, p)
	}
	s.positions = s.positions[:i]
	if i > 0 {
		p := s.positions[i-1]
		if data := s.entries[p]; p+uint64(len(data)) > size {
			s.entries[p] = data[:size-p]
		}
	}
}

// search returns the index of the first position >= position.
func (s *Sequencer) search(position uint64) int {
	return sort.Search(len(s.positions), func(i int) bool { return s.positions[i] >= position })
}

func (s *Sequencer) remove(position uint64) {
	i := s.search(position)
	if i < len(s.positions) && s.positions[i] == position {
		s.positions = append(s.positions[:i], s.positions[i+1:]...)
	}
	delete(s.entries, position)
}
