package encrypt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/selfencrypt-go/datamap"
)

// FinalizeResult is the outcome of Finalize.
type FinalizeResult struct {
	// DataMap is a snapshot of the data map after the pass.
	DataMap *datamap.DataMap

	// Pending lists the chunks whose store was not confirmed.
	Pending []int
}

// Complete reports whether every chunk was stored.
func (r *FinalizeResult) Complete() bool {
	return len(r.Pending) == 0
}

// PendingError reports the chunks Finalize could not store. It matches
// ErrStorageUnavailable under errors.Is. Calling Finalize again retries them.
type PendingError struct {
	Chunks []int
	Errs   []error
}

func (e *PendingError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s: %d chunk(s) pending: %s", ErrStorageUnavailable, len(e.Chunks), strings.Join(msgs, "; "))
}

func (e *PendingError) Unwrap() []error {
	return append([]error{ErrStorageUnavailable}, e.Errs...)
}

// Flush is Finalize.
func (e *SelfEncryptor) Flush(ctx context.Context) (*FinalizeResult, error) {
	return e.Finalize(ctx)
}

// Finalize folds every staged write into the chunk plaintext, recomputes the
// pre-hash and key material of every chunk that is not Fresh, and stores each
// chunk whose ciphertext changed or was never stored.
//
// Chunks whose store fails stay Pending and are listed in the result; the
// returned error is then a *PendingError and the result is still valid. Any
// other error (a chunk needed for re-encryption cannot be loaded) leaves the
// staged writes and the data map untouched.
//
// Streams of at most Policy.MaxInlineSize bytes are kept inline in the data
// map and touch no storage.
func (e *SelfEncryptor) Finalize(ctx context.Context) (*FinalizeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.size <= uint64(e.policy.MaxInlineSize) {
		return e.finalizeInline(ctx)
	}
	return e.finalizeChunked(ctx)
}

func (e *SelfEncryptor) finalizeInline(ctx context.Context) (*FinalizeResult, error) {
	var content []byte
	if e.size > 0 {
		content = make([]byte, e.size)
	}
	if len(e.dm.Chunks) == 0 {
		copy(content, e.dm.Content)
	} else {
		var missing []int
		for i := range e.plain {
			if e.plain[i] == nil {
				missing = append(missing, i)
			}
		}
		loaded, err := e.loadChunks(ctx, missing)
		if err != nil {
			return nil, err
		}
		for i := range e.plain {
			p := e.plain[i]
			if p == nil {
				p = loaded[i]
			}
			copyOverlap(content, 0, p, e.offsets[i])
		}
	}
	for pos, data, ok := e.seq.GetFirst(); ok; pos, data, ok = e.seq.GetFirst() {
		copyOverlap(content, 0, data, pos)
	}

	e.dm.Chunks = nil
	e.dm.Content = content
	e.plain = nil
	e.offsets = nil
	e.log.Info("finalized inline stream", zap.Uint64("size", e.size))
	return &FinalizeResult{DataMap: e.dm.Clone()}, nil
}

func (e *SelfEncryptor) finalizeChunked(ctx context.Context) (*FinalizeResult, error) {
	if len(e.dm.Chunks) == 0 && len(e.dm.Content) > 0 {
		e.chunkInlineContent()
	}

	// Load everything that will be re-encrypted or patched before changing
	// any state, so a failed load leaves the encryptor as it was.
	committed := e.committedSize()
	need := make(map[int]bool)
	for i := range e.dm.Chunks {
		c := &e.dm.Chunks[i]
		if c.Freshness != datamap.Fresh || c.Storage != datamap.Stored {
			need[i] = true
		}
	}
	for _, entry := range e.seq.Overlapping(0, committed) {
		if first, last, ok := e.chunkSpan(entry.Position, entry.End()); ok {
			for i := first; i <= min(last+e.policy.Neighbors, len(e.dm.Chunks)-1); i++ {
				need[i] = true
			}
		}
	}
	if n := len(e.dm.Chunks); n > 0 && e.size > committed && e.dm.Chunks[n-1].Size < e.policy.ChunkSize {
		need[n-1] = true
	}
	var missing []int
	for i := range need {
		if e.plain[i] == nil {
			missing = append(missing, i)
		}
	}
	e.log.Debug("finalize plan",
		zap.Int("chunks", len(e.dm.Chunks)),
		zap.Int("staged", e.seq.Len()),
		zap.Int("needed", len(need)),
		zap.Int("loading", len(missing)))
	loaded, err := e.loadChunks(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, i := range missing {
		e.plain[i] = loaded[i]
	}

	e.grow()

	for pos, data, ok := e.seq.GetFirst(); ok; pos, data, ok = e.seq.GetFirst() {
		if first, last, ok := e.chunkSpan(pos, pos+uint64(len(data))); ok {
			for i := first; i <= last; i++ {
				copyOverlap(e.plain[i], e.offsets[i], data, pos)
			}
			datamap.InvalidateRange(e.dm.Chunks, first, last, e.policy.Neighbors)
		}
	}

	errs := e.sealAndStore(ctx, e.hashOutdated())

	stored := 0
	for i := range e.dm.Chunks {
		if e.dm.Chunks[i].Storage == datamap.Stored {
			e.plain[i] = nil
			stored++
		}
	}

	result := &FinalizeResult{DataMap: e.dm.Clone(), Pending: e.dm.Pending()}
	e.log.Info("finalized chunked stream",
		zap.Uint64("size", e.size),
		zap.Int("chunks", len(e.dm.Chunks)),
		zap.Int("stored", stored),
		zap.Int("pending", len(result.Pending)))
	if len(result.Pending) > 0 {
		return result, &PendingError{Chunks: result.Pending, Errs: errs}
	}
	return result, nil
}

// chunkInlineContent turns inline content into Empty chunks.
func (e *SelfEncryptor) chunkInlineContent() {
	pieces := splitIntoChunks(e.dm.Content, int(e.policy.ChunkSize))
	e.dm.Chunks = make([]datamap.ChunkDescriptor, len(pieces))
	for i, p := range pieces {
		e.dm.Chunks[i] = datamap.NewChunkDescriptor(uint32(len(p)))
	}
	e.plain = pieces
	e.dm.Content = nil
	e.offsets = e.dm.Offsets()
}

// grow extends the chunk list with zero bytes up to the stream size: the last
// chunk is filled to ChunkSize first, then Empty chunks are appended.
func (e *SelfEncryptor) grow() {
	committed := e.committedSize()
	if e.size <= committed {
		return
	}
	chunkSize := uint64(e.policy.ChunkSize)
	if n := len(e.dm.Chunks); n > 0 {
		last := &e.dm.Chunks[n-1]
		if uint64(last.Size) < chunkSize {
			add := min(chunkSize-uint64(last.Size), e.size-committed)
			e.plain[n-1] = append(e.plain[n-1], make([]byte, add)...)
			last.Size += uint32(add)
			committed += add
		}
	}
	for committed < e.size {
		size := min(chunkSize, e.size-committed)
		e.dm.Chunks = append(e.dm.Chunks, datamap.NewChunkDescriptor(uint32(size)))
		e.plain = append(e.plain, make([]byte, size))
		committed += size
	}
	e.offsets = e.dm.Offsets()
}

// hashOutdated computes, in parallel, the pre-hash of every chunk that is not
// Fresh and returns the pre-hashes of all chunks as they will be after sealing.
func (e *SelfEncryptor) hashOutdated() [][]byte {
	pre := preHashes(e.dm.Chunks)
	var g errgroup.Group
	g.SetLimit(e.policy.Workers)
	for i := range e.dm.Chunks {
		if e.dm.Chunks[i].Freshness == datamap.Fresh {
			continue
		}
		g.Go(func() error {
			pre[i] = datamap.Hash(e.plain[i])
			return nil
		})
	}
	_ = g.Wait()
	return pre
}

// sealAndStore re-keys every chunk that is not Fresh and stores every chunk
// whose ciphertext is not confirmed stored. A chunk that re-encrypts to the
// ciphertext it already has in storage is left alone. Store failures leave
// the chunk Pending and are returned.
func (e *SelfEncryptor) sealAndStore(ctx context.Context, pre [][]byte) []error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	g.SetLimit(e.policy.Workers)

	for i := range e.dm.Chunks {
		c := &e.dm.Chunks[i]
		if c.Freshness == datamap.Fresh && c.Storage == datamap.Stored {
			continue
		}
		g.Go(func() error {
			neighbors := NeighborHashes(pre, i, e.policy.Neighbors)
			if c.Freshness != datamap.Fresh {
				if err := c.MarkFresh(pre[i], neighbors); err != nil {
					fail(fmt.Errorf("chunk %d: %w", i, err))
					return nil
				}
			}
			sealed, err := SealChunk(e.plain[i], c.PreHash, c.StaleNeighborHash, e.policy.Compression)
			if err != nil {
				c.MarkOutdated()
				fail(fmt.Errorf("chunk %d: %w", i, err))
				return nil
			}
			if c.Storage == datamap.Stored && bytes.Equal(sealed.ContentHash, c.ContentHash) {
				return nil
			}
			c.ContentHash = sealed.ContentHash
			if err := c.BeginStore(); err != nil {
				fail(fmt.Errorf("chunk %d: %w", i, err))
				return nil
			}
			if err := e.store.Put(ctx, sealed.ContentHash, sealed.Ciphertext); err != nil {
				e.log.Warn("chunk store failed", zap.Int("chunk", i), zap.Error(err))
				fail(fmt.Errorf("chunk %d: %w", i, err))
				return nil
			}
			_ = c.ConfirmStored()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// splitIntoChunks splits data into fixed-size pieces; the last may be shorter.
func splitIntoChunks(data []byte, chunkSize int) [][]byte {
	var chunks [][]byte
	for i := 0; i < len(data); i += chunkSize {
		end := min(i+chunkSize, len(data))
		chunk := make([]byte, end-i)
		copy(chunk, data[i:end])
		chunks = append(chunks, chunk)
	}
	return chunks
}
