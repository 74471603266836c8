package datamap

import "bytes"

// DataMap is the manifest for reconstructing a stream from stored chunks.
// Chunks and Content are mutually exclusive: a stream small enough to keep
// verbatim has Content set and no chunks.
type DataMap struct {
	Chunks  []ChunkDescriptor
	Content []byte
}

// New returns an empty DataMap.
func New() *DataMap {
	return &DataMap{}
}

// Equal reports whether two DataMaps describe the same stream: identical
// inline content and the same content hash at every chunk position. Other
// descriptor fields are working state and do not take part.
func (dm *DataMap) Equal(other *DataMap) bool {
	if dm == nil || other == nil {
		return dm == other
	}
	if !bytes.Equal(dm.Content, other.Content) || len(dm.Chunks) != len(other.Chunks) {
		return false
	}
	for i := range dm.Chunks {
		if !bytes.Equal(dm.Chunks[i].ContentHash, other.Chunks[i].ContentHash) {
			return false
		}
	}
	return true
}

// Size returns the length of the stream the map describes.
func (dm *DataMap) Size() uint64 {
	if len(dm.Chunks) == 0 {
		return uint64(len(dm.Content))
	}
	var total uint64
	for i := range dm.Chunks {
		total += uint64(dm.Chunks[i].Size)
	}
	return total
}

// Offsets returns the starting stream offset of every chunk.
func (dm *DataMap) Offsets() []uint64 {
	offsets := make([]uint64, len(dm.Chunks))
	var pos uint64
	for i := range dm.Chunks {
		offsets[i] = pos
		pos += uint64(dm.Chunks[i].Size)
	}
	return offsets
}

// Complete reports whether every chunk is Fresh and Stored, i.e. the map
// can be handed out for later reconstruction.
func (dm *DataMap) Complete() bool {
	for i := range dm.Chunks {
		if dm.Chunks[i].Freshness != Fresh || dm.Chunks[i].Storage != Stored {
			return false
		}
	}
	return true
}

// Pending returns the indices of chunks whose storage is not confirmed.
func (dm *DataMap) Pending() []int {
	var out []int
	for i := range dm.Chunks {
		if dm.Chunks[i].Storage != Stored {
			out = append(out, i)
		}
	}
	return out
}

// Clone returns a deep copy of the DataMap.
func (dm *DataMap) Clone() *DataMap {
	out := &DataMap{Content: cloneBytes(dm.Content)}
	if dm.Chunks != nil {
		out.Chunks = make([]ChunkDescriptor, len(dm.Chunks))
		for i := range dm.Chunks {
			out.Chunks[i] = dm.Chunks[i].Clone()
		}
	}
	return out
}
