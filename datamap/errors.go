package datamap

import "errors"

var (
	// ErrSerialization indicates a malformed or unsupported DataMap encoding.
	ErrSerialization = errors.New("datamap: malformed serialized data map")

	// ErrNotFresh indicates a storage transition was requested for a chunk
	// whose pre-hash or neighbor key material is not current.
	ErrNotFresh = errors.New("datamap: chunk key material is not fresh")

	// ErrInvalidTransition indicates a state change the chunk state machines do not allow.
	ErrInvalidTransition = errors.New("datamap: invalid state transition")
)
