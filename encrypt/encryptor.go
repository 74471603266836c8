// Package encrypt implements self-encryption of a random-access byte stream.
//
// A SelfEncryptor splits the stream into fixed-size chunks and encrypts each
// chunk with key material derived from its own pre-hash and the pre-hashes of
// the chunks before it, so no key is ever stored: the DataMap returned by
// Finalize is enough to decrypt every chunk again. Writes that do not cover
// whole chunks are buffered in a Sequencer and folded into the chunk
// plaintext on Finalize.
package encrypt

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/selfencrypt-go/datamap"
	"github.com/bitfsorg/selfencrypt-go/sequencer"
)

// ChunkStore is the content-addressed storage the encryptor persists chunks to.
// Content hashes are 64-byte SHA-512 digests of the ciphertext.
type ChunkStore interface {
	Put(ctx context.Context, contentHash, ciphertext []byte) error
	Get(ctx context.Context, contentHash []byte) ([]byte, error)
}

// Option configures a SelfEncryptor.
type Option func(*SelfEncryptor)

// WithPolicy sets the chunking policy.
func WithPolicy(p Policy) Option {
	return func(e *SelfEncryptor) { e.policy = p }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *SelfEncryptor) {
		if l != nil {
			e.log = l
		}
	}
}

// SelfEncryptor exposes a logical byte stream backed by self-encrypted chunks.
// It is safe for concurrent use.
type SelfEncryptor struct {
	store  ChunkStore
	policy Policy
	log    *zap.Logger

	mu      sync.Mutex
	dm      *datamap.DataMap
	offsets []uint64 // start offset of every chunk
	plain   [][]byte // chunk plaintext; nil only for chunks whose ciphertext is stored
	seq     *sequencer.Sequencer
	size    uint64 // logical stream size, including staged writes
}

// New returns a SelfEncryptor over store. dm may be nil for a new, empty
// stream or a DataMap from an earlier Finalize to continue editing it; the
// encryptor takes ownership of dm and updates it in place.
func New(store ChunkStore, dm *datamap.DataMap, opts ...Option) (*SelfEncryptor, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil chunk store", ErrInvalidArgument)
	}
	e := &SelfEncryptor{
		store:  store,
		policy: DefaultPolicy(),
		log:    zap.NewNop(),
		seq:    sequencer.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.policy.Validate(); err != nil {
		return nil, err
	}

	if dm == nil {
		dm = datamap.New()
	}
	if len(dm.Chunks) > 0 && len(dm.Content) > 0 {
		return nil, fmt.Errorf("%w: data map has both chunks and inline content", ErrInvalidArgument)
	}
	for i := range dm.Chunks {
		c := &dm.Chunks[i]
		if c.Size == 0 || c.Freshness == datamap.Empty || len(c.ContentHash) != datamap.HashSize {
			return nil, fmt.Errorf("%w: chunk %d cannot be reconstructed", ErrInvalidArgument, i)
		}
	}

	// A chunk keyed under a different neighbor window must be re-keyed.
	pre := preHashes(dm.Chunks)
	for i := range dm.Chunks {
		c := &dm.Chunks[i]
		if c.Freshness == datamap.Fresh && !c.NeighborsMatch(NeighborHashes(pre, i, e.policy.Neighbors)) {
			c.MarkOutdated()
		}
	}

	e.dm = dm
	e.offsets = dm.Offsets()
	e.plain = make([][]byte, len(dm.Chunks))
	e.size = dm.Size()
	return e, nil
}

// Size returns the logical stream size, including writes not yet finalized.
func (e *SelfEncryptor) Size() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

// DataMap returns a snapshot of the current data map.
func (e *SelfEncryptor) DataMap() *datamap.DataMap {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dm.Clone()
}

// Write stores data at offset. A write covering exactly one or more whole
// chunks replaces their plaintext directly; any other write is staged in the
// sequencer until Finalize. Either way the touched chunks and their key
// dependents are marked Outdated.
func (e *SelfEncryptor) Write(offset uint64, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: zero-length write", ErrInvalidArgument)
	}
	end := offset + uint64(len(data))
	if end < offset {
		return fmt.Errorf("%w: write at %d overflows", ErrInvalidArgument, offset)
	}
	buf := append([]byte(nil), data...)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.unstage(offset, end)

	if first, last, ok := e.alignedChunks(offset, end); ok {
		for i := first; i <= last; i++ {
			lo := e.offsets[i] - offset
			hi := lo + uint64(e.dm.Chunks[i].Size)
			e.plain[i] = buf[lo:hi:hi]
		}
		e.touch(first, last)
		e.log.Debug("direct chunk write",
			zap.Uint64("offset", offset), zap.Int("first", first), zap.Int("last", last))
	} else {
		e.seq.Add(offset, buf)
		e.touchRange(offset, end)
		e.log.Debug("staged write", zap.Uint64("offset", offset), zap.Int("length", len(buf)))
	}

	if end > e.size {
		e.size = end
	}
	return nil
}

// Read returns the bytes in [offset, offset+length), clipped to the stream
// size. Staged writes are overlaid on the chunk plaintext. Either the whole
// range is returned or an error: ErrStorageUnavailable if a chunk cannot be
// fetched, ErrIntegrity if it does not decrypt to the committed content.
func (e *SelfEncryptor) Read(ctx context.Context, offset, length uint64) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if offset >= e.size || length == 0 {
		return []byte{}, nil
	}
	end := e.size
	if length < end-offset {
		end = offset + length
	}
	out := make([]byte, end-offset)

	if len(e.dm.Chunks) == 0 {
		if offset < uint64(len(e.dm.Content)) {
			copy(out, e.dm.Content[offset:])
		}
	} else {
		first, last, ok := e.chunkSpan(offset, end)
		if ok {
			var missing []int
			for i := first; i <= last; i++ {
				if e.plain[i] == nil {
					missing = append(missing, i)
				}
			}
			loaded, err := e.loadChunks(ctx, missing)
			if err != nil {
				return nil, err
			}
			for i := first; i <= last; i++ {
				p := e.plain[i]
				if p == nil {
					p = loaded[i]
				}
				copyOverlap(out, offset, p, e.offsets[i])
			}
		}
	}

	for _, entry := range e.seq.Overlapping(offset, end) {
		copyOverlap(out, offset, entry.Data, entry.Position)
	}
	return out, nil
}

// Truncate sets the stream size. Growing pads with zero bytes; shrinking
// drops staged bytes and chunks past size and shortens the chunk that
// straddles it.
func (e *SelfEncryptor) Truncate(ctx context.Context, size uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if size >= e.size {
		if size > e.size {
			e.touchRange(e.size, size)
			e.size = size
		}
		return nil
	}

	e.seq.Truncate(size)
	if committed := e.committedSize(); size < committed {
		if len(e.dm.Chunks) == 0 {
			e.dm.Content = append([]byte(nil), e.dm.Content[:size]...)
		} else if err := e.truncateChunks(ctx, size); err != nil {
			return err
		}
	}
	e.size = size
	e.log.Debug("truncated stream", zap.Uint64("size", size))
	return nil
}

func (e *SelfEncryptor) truncateChunks(ctx context.Context, size uint64) error {
	if size == 0 {
		e.dm.Chunks = nil
		e.plain = nil
		e.offsets = nil
		return nil
	}
	k := e.chunkIndex(size - 1)
	newLen := size - e.offsets[k]
	if newLen < uint64(e.dm.Chunks[k].Size) {
		if e.plain[k] == nil {
			loaded, err := e.loadChunks(ctx, []int{k})
			if err != nil {
				return err
			}
			e.plain[k] = loaded[k]
		}
		e.plain[k] = append([]byte(nil), e.plain[k][:newLen]...)
		e.dm.Chunks[k].Size = uint32(newLen)
		e.touch(k, k)
	}
	e.dm.Chunks = e.dm.Chunks[:k+1]
	e.plain = e.plain[:k+1]
	e.offsets = e.offsets[:k+1]
	return nil
}

// unstage trims staged entries overlapping [start, end) so a newer write
// over the same bytes always wins and staged entries stay disjoint.
func (e *SelfEncryptor) unstage(start, end uint64) {
	for _, entry := range e.seq.Overlapping(start, end) {
		e.seq.Get(entry.Position)
		if entry.Position < start {
			e.seq.Add(entry.Position, entry.Data[:start-entry.Position])
		}
		if entryEnd := entry.End(); entryEnd > end {
			e.seq.Add(end, entry.Data[end-entry.Position:])
		}
	}
}

// alignedChunks reports whether [start, end) covers exactly the chunks first..last.
func (e *SelfEncryptor) alignedChunks(start, end uint64) (first, last int, ok bool) {
	n := len(e.dm.Chunks)
	if n == 0 || end > e.committedSize() {
		return 0, 0, false
	}
	first = e.chunkIndex(start)
	if e.offsets[first] != start {
		return 0, 0, false
	}
	last = e.chunkIndex(end - 1)
	if e.offsets[last]+uint64(e.dm.Chunks[last].Size) != end {
		return 0, 0, false
	}
	return first, last, true
}

// touchRange marks the committed chunks whose bytes change when [start, end)
// is written. A write past the committed end grows the last chunk.
func (e *SelfEncryptor) touchRange(start, end uint64) {
	n := len(e.dm.Chunks)
	if n == 0 {
		return
	}
	committed := e.committedSize()
	if first, last, ok := e.chunkSpan(start, end); ok {
		e.touch(first, last)
	}
	if end > committed && e.dm.Chunks[n-1].Size < e.policy.ChunkSize {
		e.touch(n-1, n-1)
	}
}

// touch records a content change in chunks first..last: a scheduled store of
// their old content is abandoned, and they and their key dependents become Outdated.
func (e *SelfEncryptor) touch(first, last int) {
	for i := first; i <= last; i++ {
		if e.dm.Chunks[i].Storage == datamap.Pending {
			_ = e.dm.Chunks[i].AbandonStore()
		}
	}
	datamap.InvalidateRange(e.dm.Chunks, first, last, e.policy.Neighbors)
}

// chunkSpan returns the committed chunks overlapping [start, end).
func (e *SelfEncryptor) chunkSpan(start, end uint64) (first, last int, ok bool) {
	committed := e.committedSize()
	if len(e.dm.Chunks) == 0 || start >= committed || start >= end {
		return 0, 0, false
	}
	if end > committed {
		end = committed
	}
	return e.chunkIndex(start), e.chunkIndex(end - 1), true
}

// chunkIndex returns the chunk containing offset, which must be committed.
func (e *SelfEncryptor) chunkIndex(offset uint64) int {
	return sort.Search(len(e.offsets), func(i int) bool { return e.offsets[i] > offset }) - 1
}

// committedSize is the stream size the chunk list or inline content covers.
func (e *SelfEncryptor) committedSize() uint64 {
	n := len(e.dm.Chunks)
	if n == 0 {
		return uint64(len(e.dm.Content))
	}
	return e.offsets[n-1] + uint64(e.dm.Chunks[n-1].Size)
}

// loadChunks fetches and decrypts the given chunks in parallel. The returned
// slice is indexed by chunk position.
func (e *SelfEncryptor) loadChunks(ctx context.Context, indices []int) ([][]byte, error) {
	out := make([][]byte, len(e.dm.Chunks))
	if len(indices) == 0 {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.policy.Workers)
	for _, i := range indices {
		g.Go(func() error {
			p, err := e.loadChunk(gctx, i)
			if err != nil {
				return err
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *SelfEncryptor) loadChunk(ctx context.Context, i int) ([]byte, error) {
	c := &e.dm.Chunks[i]
	ciphertext, err := e.store.Get(ctx, c.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("%w: get chunk %d: %w", ErrStorageUnavailable, i, err)
	}
	plaintext, err := OpenChunk(ciphertext, c)
	if err != nil {
		e.log.Error("chunk failed integrity check", zap.Int("chunk", i), zap.Error(err))
		return nil, fmt.Errorf("chunk %d: %w", i, err)
	}
	return plaintext, nil
}

// copyOverlap copies the part of src (starting at stream offset srcPos) that
// falls inside dst (starting at stream offset dstPos).
func copyOverlap(dst []byte, dstPos uint64, src []byte, srcPos uint64) {
	dstEnd := dstPos + uint64(len(dst))
	srcEnd := srcPos + uint64(len(src))
	lo := max(dstPos, srcPos)
	hi := min(dstEnd, srcEnd)
	if lo >= hi {
		return
	}
	copy(dst[lo-dstPos:hi-dstPos], src[lo-srcPos:hi-srcPos])
}
