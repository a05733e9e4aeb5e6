package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and transport layers return
// these (optionally wrapped) so callers can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrBusUnavailable: broker connection down or publish not acknowledged
// - ErrStoreUnavailable: persistence or query backend unreachable
// - ErrInvalidState: entity in wrong state for requested operation
var (
	ErrNotFound         = errors.New("not found")
	ErrBusUnavailable   = errors.New("bus unavailable")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidState     = errors.New("invalid state")
)
