package datamap

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is the leading byte of every serialized DataMap.
const FormatVersion byte = 1

// MaxNeighbors bounds the neighbor snapshot length accepted by Parse.
const MaxNeighbors = 16

type wireChunk struct {
	ContentHash []byte   `msgpack:"h"`
	PreHash     []byte   `msgpack:"p"`
	Neighbors   [][]byte `msgpack:"n,omitempty"`
	Freshness   uint8    `msgpack:"f"`
	Storage     uint8    `msgpack:"s"`
	Size        uint32   `msgpack:"z"`
}

type wireDataMap struct {
	Chunks  []wireChunk `msgpack:"c,omitempty"`
	Content []byte      `msgpack:"i,omitempty"`
}

// Serialize encodes dm as FormatVersion || msgpack(map).
// Every descriptor field is kept so Parse reproduces the working state exactly.
func Serialize(dm *DataMap) ([]byte, error) {
	if dm == nil {
		return nil, fmt.Errorf("%w: nil data map", ErrSerialization)
	}
	if len(dm.Chunks) > 0 && len(dm.Content) > 0 {
		return nil, fmt.Errorf("%w: both chunks and inline content set", ErrSerialization)
	}

	w := wireDataMap{Content: dm.Content}
	if len(dm.Chunks) > 0 {
		w.Chunks = make([]wireChunk, len(dm.Chunks))
		for i := range dm.Chunks {
			c := &dm.Chunks[i]
			w.Chunks[i] = wireChunk{
				ContentHash: c.ContentHash,
				PreHash:     c.PreHash,
				Neighbors:   c.StaleNeighborHash,
				Freshness:   uint8(c.Freshness),
				Storage:     uint8(c.Storage),
				Size:        c.Size,
			}
		}
	}

	body, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, FormatVersion)
	return append(out, body...), nil
}

// Parse decodes a DataMap produced by Serialize. Any structural problem is
// reported as ErrSerialization.
func Parse(data []byte) (*DataMap, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrSerialization)
	}
	if data[0] != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrSerialization, data[0])
	}

	r := bytes.NewReader(data[1:])
	var w wireDataMap
	if err := msgpack.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerialization, r.Len())
	}
	if len(w.Chunks) > 0 && len(w.Content) > 0 {
		return nil, fmt.Errorf("%w: both chunks and inline content set", ErrSerialization)
	}

	dm := &DataMap{}
	if len(w.Content) > 0 {
		dm.Content = w.Content
	}
	if len(w.Chunks) > 0 {
		dm.Chunks = make([]ChunkDescriptor, len(w.Chunks))
	}
	for i, wc := range w.Chunks {
		c, err := parseChunk(wc)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrSerialization, i, err)
		}
		dm.Chunks[i] = c
	}
	return dm, nil
}

func parseChunk(wc wireChunk) (ChunkDescriptor, error) {
	if wc.Freshness > uint8(Fresh) {
		return ChunkDescriptor{}, fmt.Errorf("freshness %d out of range", wc.Freshness)
	}
	if wc.Storage > uint8(Unstored) {
		return ChunkDescriptor{}, fmt.Errorf("storage state %d out of range", wc.Storage)
	}
	if wc.Size == 0 {
		return ChunkDescriptor{}, fmt.Errorf("zero size")
	}
	if len(wc.Neighbors) > MaxNeighbors {
		return ChunkDescriptor{}, fmt.Errorf("%d neighbor hashes exceeds %d", len(wc.Neighbors), MaxNeighbors)
	}
	if err := checkHash("content hash", wc.ContentHash, wc.Storage != uint8(Unstored)); err != nil {
		return ChunkDescriptor{}, err
	}
	if err := checkHash("pre-hash", wc.PreHash, wc.Freshness != uint8(Empty)); err != nil {
		return ChunkDescriptor{}, err
	}
	for j, h := range wc.Neighbors {
		if len(h) != HashSize {
			return ChunkDescriptor{}, fmt.Errorf("neighbor hash %d is %d bytes", j, len(h))
		}
	}
	return ChunkDescriptor{
		ContentHash:       wc.ContentHash,
		PreHash:           wc.PreHash,
		StaleNeighborHash: wc.Neighbors,
		Freshness:         Freshness(wc.Freshness),
		Storage:           StorageState(wc.Storage),
		Size:              wc.Size,
	}, nil
}

// checkHash accepts an absent hash unless required, and otherwise insists on HashSize bytes.
func checkHash(name string, h []byte, required bool) error {
	if len(h) == 0 && !required {
		return nil
	}
	if len(h) != HashSize {
		return fmt.Errorf("%s is %d bytes, want %d", name, len(h), HashSize)
	}
	return nil
}
