package encrypt

import "errors"

var (
	// ErrInvalidArgument indicates a malformed call, e.g. a zero-length write.
	ErrInvalidArgument = errors.New("encrypt: invalid argument")

	// ErrIntegrity indicates stored ciphertext does not decrypt to the content
	// the data map commits to. It is never tolerated silently.
	ErrIntegrity = errors.New("encrypt: chunk integrity check failed")

	// ErrStorageUnavailable indicates the chunk store failed a Put or Get.
	// Affected chunks stay Pending and can be retried.
	ErrStorageUnavailable = errors.New("encrypt: chunk storage unavailable")

	// ErrInvalidPolicy indicates a chunking or key-derivation policy value is out of range.
	ErrInvalidPolicy = errors.New("encrypt: invalid policy")

	// ErrKeyDerivation indicates HKDF key derivation failed.
	ErrKeyDerivation = errors.New("encrypt: HKDF key derivation failed")

	// ErrUnsupportedCompression indicates an unknown compression scheme.
	ErrUnsupportedCompression = errors.New("encrypt: unsupported compression scheme")

	// ErrDecompressedTooLarge indicates decompressed data exceeds the chunk size.
	ErrDecompressedTooLarge = errors.New("encrypt: decompressed data exceeds maximum size")
)
