package chain

import "errors"

// Reported errors. The caller decides whether to retry or drop the offending
// block; nothing is swallowed.
var (
	// ErrParentMismatch is returned when the liquid head is empty and the
	// incoming block does not reference the last persisted block.
	ErrParentMismatch = errors.New("block references incorrect parent")
	// ErrReferenceUnknown is returned when a liquid block exists but the
	// incoming block references neither its base nor any microblock signature.
	ErrReferenceUnknown = errors.New("liquid block exists, reference unknown")
	// ErrNoBase is returned on microblock append when there is no liquid block.
	ErrNoBase = errors.New("no liquid block to extend")
	// ErrWrongGenerator is returned when a microblock generator differs from
	// the liquid base generator.
	ErrWrongGenerator = errors.New("microblock generator does not match base generator")
	// ErrBlockMicroFork is returned when the first microblock does not
	// reference the liquid base signature.
	ErrBlockMicroFork = errors.New("microblock does not reference liquid base")
	// ErrMicroMicroFork is returned when a subsequent microblock does not
	// reference the current liquid tip signature.
	ErrMicroMicroFork = errors.New("microblock does not reference liquid tip")
	// ErrStoreEmpty is returned when discarding from an empty store.
	ErrStoreEmpty = errors.New("block store is empty")
)

// Fatal errors. These indicate state corruption and must reach an operator.
var (
	// ErrInvalidForgedSignature means the block synthesized from the liquid
	// prefix failed the signature self-check: the liquid head is corrupt.
	ErrInvalidForgedSignature = errors.New("forged block signature is invalid")
	// ErrStoreInconsistent means the persisted index cardinalities diverged;
	// the store refuses to open.
	ErrStoreInconsistent = errors.New("block store indices are inconsistent")
)

// IsFatal reports whether err is one of the error kinds that indicate
// corrupted state rather than a rejectable input.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidForgedSignature) || errors.Is(err, ErrStoreInconsistent)
}
