package ccts

import "errors"

// Storage errors are fatal to the store instance: any operation that
// surfaces one should be treated by the caller as a reason to restart
// the process against the same data directory (initialize reconstructs
// consistent state from the KV alone).
var (
	ErrStorageFailure = errors.New("ccts: storage failure")
	ErrNotInitialized = errors.New("ccts: store not initialized")
	// ErrReorgTooDeep is returned when PutBlocks cannot locate a common
	// ancestor with the previously tracked chain within maxReorgDepth. The
	// store's view of SeenInBlock transfers can no longer be trusted
	// incrementally; the caller must resync from a trusted checkpoint
	// before retrying.
	ErrReorgTooDeep = errors.New("ccts: reorg exceeds maximum depth")
)

// Protocol errors (invalid merge requests, unknown deposit ids) are
// never raised to callers — they are no-ops that return the current
// state, handled inline where they occur rather than as sentinel errors.
