package chain

import (
	"fmt"

	"github.com/nereus-network/nereus/internal/types"
)

type (
	// BlockDiff is the opaque state diff produced by the consensus validator
	// callback; the chain core passes it through untouched.
	BlockDiff = any

	// MicroBlockValidator decides whether a microblock is consensus-valid
	// against the liquid base with the given timestamp.
	MicroBlockValidator func(mb *types.MicroBlock, baseTimestamp int64) (BlockDiff, error)

	// LiquidHead holds the mutable chain tip: at most one base block plus a
	// chain of microblocks extending it. Microblocks are kept newest-first for
	// O(1) tip access; all public contracts are stated chronologically.
	//
	// LiquidHead is not synchronized; the NG writer serializes access.
	LiquidHead struct {
		base   *types.Block
		micros []*types.MicroBlock // newest first
	}
)

func NewLiquidHead() *LiquidHead {
	return &LiquidHead{}
}

func (h *LiquidHead) IsEmpty() bool {
	return h.base == nil
}

func (h *LiquidHead) Base() *types.Block {
	return h.base
}

// MicroBlocks returns the microblocks in chronological order.
func (h *LiquidHead) MicroBlocks() []*types.MicroBlock {
	out := make([]*types.MicroBlock, len(h.micros))
	for i, mb := range h.micros {
		out[len(out)-1-i] = mb
	}
	return out
}

// SetBase replaces the whole liquid state with the given base block.
func (h *LiquidHead) SetBase(b *types.Block) {
	h.base = b
	h.micros = nil
}

// Clear empties the liquid head.
func (h *LiquidHead) Clear() {
	h.base = nil
	h.micros = nil
}

// TipID returns the id a child block must reference to extend the full liquid
// chain: the newest total microblock signature, or the base id.
func (h *LiquidHead) TipID() (types.BlockID, bool) {
	if h.base == nil {
		return types.BlockID{}, false
	}
	if len(h.micros) > 0 {
		return h.micros[0].TotalResBlockSig, true
	}
	return h.base.UniqueID(), true
}

// Contains reports whether id is the base id or any total microblock
// signature of the liquid chain.
func (h *LiquidHead) Contains(id types.BlockID) bool {
	if h.base == nil {
		return false
	}
	if h.base.UniqueID() == id {
		return true
	}
	for _, mb := range h.micros {
		if mb.TotalResBlockSig == id {
			return true
		}
	}
	return false
}

// AppendMicro validates the chaining of mb against the current tip and, when
// the consensus validator accepts it, makes mb the new tip. Returns the diff
// produced by the validator.
func (h *LiquidHead) AppendMicro(mb *types.MicroBlock, validate MicroBlockValidator) (BlockDiff, error) {
	if h.base == nil {
		return nil, ErrNoBase
	}
	if mb.Generator != h.base.Generator() {
		return nil, fmt.Errorf("got generator %s, base generator is %s: %w",
			mb.Generator, h.base.Generator(), ErrWrongGenerator)
	}
	if len(h.micros) == 0 {
		if mb.PrevResBlockSig != h.base.UniqueID() {
			return nil, fmt.Errorf("references %s, base is %s: %w",
				mb.PrevResBlockSig, h.base.UniqueID(), ErrBlockMicroFork)
		}
	} else if mb.PrevResBlockSig != h.micros[0].TotalResBlockSig {
		return nil, fmt.Errorf("references %s, tip is %s: %w",
			mb.PrevResBlockSig, h.micros[0].TotalResBlockSig, ErrMicroMicroFork)
	}
	diff, err := validate(mb, h.base.Timestamp)
	if err != nil {
		return nil, err
	}
	h.micros = append([]*types.MicroBlock{mb}, h.micros...)
	return diff, nil
}

// BestLiquidBlock materializes the full liquid chain as a single block value:
// the base with signature overridden to the newest total microblock signature
// and all microblock transactions appended in order.
func (h *LiquidHead) BestLiquidBlock() *types.Block {
	if h.base == nil {
		return nil
	}
	if len(h.micros) == 0 {
		best := *h.base
		return &best
	}
	forged, _, _ := h.ForgePrefixEndingAt(h.micros[0].TotalResBlockSig)
	return forged
}

// ForgePrefixEndingAt synthesizes a finalized block from the base plus the
// microblock prefix ending at the given total signature. Returns the forged
// block value and the discarded microblock suffix in chronological order;
// ok is false when id is not part of the liquid chain.
func (h *LiquidHead) ForgePrefixEndingAt(id types.BlockID) (forged *types.Block, discarded []*types.MicroBlock, ok bool) {
	if h.base == nil {
		return nil, nil, false
	}
	found := h.base.UniqueID() == id
	sig := h.base.SignerData.Signature
	txs := append([]types.Transaction{}, h.base.Transactions...)
	for _, mb := range h.MicroBlocks() {
		if found {
			discarded = append(discarded, mb)
			continue
		}
		txs = append(txs, mb.Transactions...)
		if mb.TotalResBlockSig == id {
			found = true
			sig = id
		}
	}
	if !found {
		return nil, nil, false
	}
	b := *h.base
	b.SignerData.Signature = sig
	b.Transactions = txs
	return &b, discarded, true
}
