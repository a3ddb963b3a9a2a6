// Package errs defines the sentinel error values that cross component
// boundaries in the tree-broadcast subsystem. Call sites switch on these
// with errors.Is rather than inspecting message text.
package errs

import "errors"

var (
	// ErrTooLargeForCache is returned by NewBroadcast when is_local is true
	// and the local cache's Put refuses the value as larger than its
	// admission size, so there is no peer path to fall back on.
	ErrTooLargeForCache = errors.New("treebcast: value too large for local cache")

	// ErrBadBlock is returned by the block client when a reply's index does
	// not match the index it requested.
	ErrBadBlock = errors.New("treebcast: block index mismatch")

	// ErrTransferFailed is returned by the block client on any socket or
	// protocol failure while pulling blocks from a seeder.
	ErrTransferFailed = errors.New("treebcast: block transfer failed")

	// ErrDecodeError is returned by the block codec when blocks are missing
	// or the underlying value codec fails to reassemble them.
	ErrDecodeError = errors.New("treebcast: block decode failed")

	// ErrFallbackUnavailable is returned by the filesystem fallback when the
	// work directory is unconfigured or the requested file does not exist.
	ErrFallbackUnavailable = errors.New("treebcast: fallback unavailable")

	// ErrBroadcastUnavailable is the terminal error surfaced to a handle's
	// caller when both the peer path and the fallback path have failed.
	ErrBroadcastUnavailable = errors.New("treebcast: broadcast unavailable")

	// ErrUnknownBroadcast is returned by the tracker lookup path when an id
	// has no registered guide.
	ErrUnknownBroadcast = errors.New("treebcast: unknown broadcast id")
)
