package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/nereus-network/nereus/internal/logger"
	"github.com/nereus-network/nereus/internal/metrics"
	"github.com/nereus-network/nereus/internal/types"
)

var log = logger.CreateForPackage()

type (
	// BlockValidator decides whether a block is consensus-valid in the current
	// chain state. The diff it produces is opaque to the chain core.
	BlockValidator func(b *types.Block) (BlockDiff, error)

	// SignatureValidator verifies a block signature. Signature crypto lives in
	// a collaborator; the chain core only invokes it on forged blocks as a
	// self-check.
	SignatureValidator func(b *types.Block) error

	// MicroSignatureValidator verifies microblock signatures before a
	// microblock is chained onto the liquid block.
	MicroSignatureValidator func(mb *types.MicroBlock) error

	// NGWriter presents the persisted history and the liquid head as a single
	// chain and makes block/microblock appends atomic. A block referencing a
	// non-newest microblock signature finalizes ("forges") the prefix up to
	// that signature and reports the suffix transactions as discarded, so they
	// can return to the mempool instead of triggering a network rollback.
	NGWriter struct {
		mu    sync.RWMutex
		store *HistoryStore
		head  *LiquidHead

		verifySignature      SignatureValidator
		verifyMicroSignature MicroSignatureValidator

		blockMicroFork  *metrics.Counter
		microMicroFork  *metrics.Counter
		microblockFork  *metrics.Counter
		microForkHeight *metrics.Histogram
		forgeBlockTime  *metrics.Histogram
	}

	Option func(*NGWriter)
)

// WithSignatureValidator installs the forged-block signature self-check.
// Without it forged blocks are not cryptographically re-verified.
func WithSignatureValidator(v SignatureValidator) Option {
	return func(w *NGWriter) {
		w.verifySignature = v
	}
}

// WithMicroSignatureValidator installs microblock signature verification.
func WithMicroSignatureValidator(v MicroSignatureValidator) Option {
	return func(w *NGWriter) {
		w.verifyMicroSignature = v
	}
}

func NewNGWriter(store *HistoryStore, rec *metrics.Recorder, opts ...Option) *NGWriter {
	w := &NGWriter{
		store:           store,
		head:            NewLiquidHead(),
		blockMicroFork:  rec.Counter("block-micro-fork"),
		microMicroFork:  rec.Counter("micro-micro-fork"),
		microblockFork:  rec.Counter("microblock-fork"),
		microForkHeight: rec.Histogram("microblock-fork-height"),
		forgeBlockTime:  rec.Histogram("forge-block-time"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// AppendBlock makes b the new liquid base. When a liquid block exists, the
// microblock prefix b references is forged into the persisted history first;
// the suffix transactions are returned so the caller can restore them to the
// mempool.
func (w *NGWriter) AppendBlock(b *types.Block, validate BlockValidator) (BlockDiff, []types.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.head.IsEmpty() {
		if lastID, ok := w.store.LastBlockID(); ok && lastID != b.Reference {
			return nil, nil, fmt.Errorf("expected parent %s, block references %s: %w", lastID, b.Reference, ErrParentMismatch)
		}
		diff, err := validate(b)
		if err != nil {
			return nil, nil, err
		}
		w.head.SetBase(b)
		log.Debug("appended block %s as liquid base at height %d", b.UniqueID(), w.heightLocked())
		return diff, nil, nil
	}

	start := time.Now()
	forged, discardedMicros, ok := w.head.ForgePrefixEndingAt(b.Reference)
	w.forgeBlockTime.Update(time.Since(start).Milliseconds())
	if !ok {
		return nil, nil, fmt.Errorf("block references %s: %w", b.Reference, ErrReferenceUnknown)
	}
	if w.verifySignature != nil {
		if err := w.verifySignature(forged); err != nil {
			return nil, nil, fmt.Errorf("%v: %w", err, ErrInvalidForgedSignature)
		}
	}
	diff, err := validate(b)
	if err != nil {
		return nil, nil, err
	}
	if err := w.store.Append(forged); err != nil {
		return nil, nil, fmt.Errorf("persisting forged block failed, %w", err)
	}
	var discardedTxs []types.Transaction
	for _, mb := range discardedMicros {
		discardedTxs = append(discardedTxs, mb.Transactions...)
	}
	if len(discardedMicros) > 0 {
		w.microblockFork.Inc(1)
		w.microForkHeight.Update(int64(len(discardedMicros)))
		log.Info("microblock fork: forged %s, discarded %d microblocks (%d transactions)",
			forged.UniqueID(), len(discardedMicros), len(discardedTxs))
	}
	w.head.SetBase(b)
	return diff, discardedTxs, nil
}

// AppendMicroBlock extends the liquid block with mb.
func (w *NGWriter) AppendMicroBlock(mb *types.MicroBlock, validate MicroBlockValidator) (BlockDiff, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.verifyMicroSignature != nil {
		if err := w.verifyMicroSignature(mb); err != nil {
			return nil, fmt.Errorf("microblock signature check failed: %w", err)
		}
	}
	diff, err := w.head.AppendMicro(mb, validate)
	if err != nil {
		switch {
		case errors.Is(err, ErrBlockMicroFork):
			w.blockMicroFork.Inc(1)
		case errors.Is(err, ErrMicroMicroFork):
			w.microMicroFork.Inc(1)
		}
		return nil, err
	}
	log.Debug("appended microblock %s (%d transactions)", mb.TotalResBlockSig, len(mb.Transactions))
	return diff, nil
}

// DiscardBlock drops the liquid block if one exists (returning its base
// transactions), otherwise it removes the last persisted block.
func (w *NGWriter) DiscardBlock() ([]types.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.head.IsEmpty() {
		txs := w.head.Base().Transactions
		w.head.Clear()
		return txs, nil
	}
	if _, err := w.store.DiscardLast(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Height returns the chain height including the liquid block.
func (w *NGWriter) Height() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.heightLocked()
}

func (w *NGWriter) heightLocked() uint64 {
	h := w.store.Height()
	if !w.head.IsEmpty() {
		h++
	}
	return h
}

// HeightOf returns the height of the block with the given id, counting the
// liquid block as one above the persisted tip.
func (w *NGWriter) HeightOf(id types.BlockID) (uint64, bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if height, found, err := w.store.HeightOf(id); err != nil || found {
		return height, found, err
	}
	if w.head.Contains(id) {
		return w.store.Height() + 1, true, nil
	}
	return 0, false, nil
}

// ScoreOf returns the cumulative chain score at the block with the given id.
func (w *NGWriter) ScoreOf(id types.BlockID) (*uint256.Int, bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if score, found, err := w.store.ScoreOf(id); err != nil || found {
		return score, found, err
	}
	if w.head.Contains(id) {
		return new(uint256.Int).Add(w.store.Score(), w.head.Base().Score()), true, nil
	}
	return nil, false, nil
}

// LastBlockID returns the id of the current tip: the liquid tip signature
// when a liquid block exists, otherwise the persisted tip id.
func (w *NGWriter) LastBlockID() (types.BlockID, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if id, ok := w.head.TipID(); ok {
		return id, true
	}
	return w.store.LastBlockID()
}

// LastBlockIDs returns up to n tip-first block ids across the liquid head and
// the persisted history.
func (w *NGWriter) LastBlockIDs(n int) ([]types.BlockID, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if id, ok := w.head.TipID(); ok {
		if n <= 0 {
			return nil, nil
		}
		rest, err := w.store.LastBlockIDs(n - 1)
		if err != nil {
			return nil, err
		}
		return append([]types.BlockID{id}, rest...), nil
	}
	return w.store.LastBlockIDs(n)
}

// BestLiquidBlock returns the materialized liquid block, or nil when the
// liquid head is empty.
func (w *NGWriter) BestLiquidBlock() *types.Block {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.head.BestLiquidBlock()
}
