package chain

import (
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/nereus-network/nereus/internal/keyvaluedb/memorydb"
	"github.com/nereus-network/nereus/internal/metrics"
	"github.com/nereus-network/nereus/internal/types"
)

func initWriter(t *testing.T, opts ...Option) (*NGWriter, *metrics.Recorder) {
	t.Helper()
	store, err := NewHistoryStore(memorydb.New())
	require.NoError(t, err)
	rec := metrics.NewRecorder()
	return NewNGWriter(store, rec, opts...), rec
}

// initLiquidWriter appends a base block and three microblocks m1..m3.
func initLiquidWriter(t *testing.T, w *NGWriter) (*types.Block, []*types.MicroBlock) {
	t.Helper()
	gen := testKey("generator")
	base := testBlock(types.BlockID{}, gen, 1, 1000, testTx("base-0"))
	_, _, err := w.AppendBlock(base, alwaysValid(nil))
	require.NoError(t, err)

	micros := make([]*types.MicroBlock, 0, 3)
	prev := base.UniqueID()
	for i := 1; i <= 3; i++ {
		mb := testMicro(gen, prev, testTx(fmt.Sprintf("m%d-tx", i)))
		_, err := w.AppendMicroBlock(mb, alwaysValidMicro(nil))
		require.NoError(t, err)
		micros = append(micros, mb)
		prev = mb.TotalResBlockSig
	}
	return base, micros
}

func TestAppendBlockEmptyChain(t *testing.T) {
	w, _ := initWriter(t)
	base := testBlock(types.BlockID{}, testKey("generator"), 1, 1000)
	diff, discarded, err := w.AppendBlock(base, alwaysValid("the diff"))
	require.NoError(t, err)
	require.Equal(t, "the diff", diff)
	require.Empty(t, discarded)
	require.EqualValues(t, 1, w.Height())

	lastID, ok := w.LastBlockID()
	require.True(t, ok)
	require.Equal(t, base.UniqueID(), lastID)
}

func TestAppendBlockParentMismatch(t *testing.T) {
	w, _ := initWriter(t)
	gen := testKey("generator")
	base := testBlock(types.BlockID{}, gen, 1, 1000)
	_, _, err := w.AppendBlock(base, alwaysValid(nil))
	require.NoError(t, err)
	// persist the liquid base so the parent check runs against the store
	next := testBlock(base.UniqueID(), gen, 1, 2000)
	_, _, err = w.AppendBlock(next, alwaysValid(nil))
	require.NoError(t, err)
	_, err = w.DiscardBlock() // drop liquid "next", store tip is "base"
	require.NoError(t, err)

	orphan := testBlock(types.Hash([]byte("elsewhere")), gen, 1, 3000)
	_, _, err = w.AppendBlock(orphan, alwaysValid(nil))
	require.ErrorIs(t, err, ErrParentMismatch)
	require.False(t, IsFatal(err))
}

// A block referencing a non-newest microblock signature finalizes the prefix
// and discards the suffix transactions.
func TestAppendBlockForgesPrefix(t *testing.T) {
	w, rec := initWriter(t)
	base, micros := initLiquidWriter(t, w)

	next := testBlock(micros[1].TotalResBlockSig, testKey("generator"), 2, 2000, testTx("next-0"))
	diff, discarded, err := w.AppendBlock(next, alwaysValid("diff"))
	require.NoError(t, err)
	require.Equal(t, "diff", diff)
	require.Equal(t, []string{"m3-tx"}, func() []string {
		ids := make([]string, 0, len(discarded))
		for _, tx := range discarded {
			ids = append(ids, string(tx.ID))
		}
		return ids
	}())

	// the forged block is persisted with the referenced signature and the
	// prefix transactions in order
	store := w.store
	require.EqualValues(t, 1, store.Height())
	forged, err := store.BlockAt(1)
	require.NoError(t, err)
	require.Equal(t, micros[1].TotalResBlockSig, forged.UniqueID())
	require.Equal(t, base.Reference, forged.Reference)
	require.Equal(t, []string{"base-0", "m1-tx", "m2-tx"}, txIDs(t, forged.Transactions))

	// the new block is the liquid base now
	require.EqualValues(t, 2, w.Height())
	lastID, ok := w.LastBlockID()
	require.True(t, ok)
	require.Equal(t, next.UniqueID(), lastID)

	require.EqualValues(t, 1, rec.Counter("microblock-fork").Count())
	require.EqualValues(t, 1, rec.Histogram("microblock-fork-height").Count())
	require.EqualValues(t, 1, rec.Histogram("microblock-fork-height").Sum())
	require.NotZero(t, rec.Histogram("forge-block-time").Count())
}

// Extending the newest microblock discards nothing and is not a fork.
func TestAppendBlockOnLiquidTip(t *testing.T) {
	w, rec := initWriter(t)
	_, micros := initLiquidWriter(t, w)

	next := testBlock(micros[2].TotalResBlockSig, testKey("generator"), 2, 2000)
	_, discarded, err := w.AppendBlock(next, alwaysValid(nil))
	require.NoError(t, err)
	require.Empty(t, discarded)
	require.Zero(t, rec.Counter("microblock-fork").Count())
}

func TestAppendBlockReferenceUnknown(t *testing.T) {
	w, _ := initWriter(t)
	initLiquidWriter(t, w)

	stranger := testBlock(types.Hash([]byte("other fork")), testKey("generator"), 2, 2000)
	_, _, err := w.AppendBlock(stranger, alwaysValid(nil))
	require.ErrorIs(t, err, ErrReferenceUnknown)
	// liquid state is untouched
	require.EqualValues(t, 1, w.Height())
}

func TestAppendBlockValidatorErrorSurfacedVerbatim(t *testing.T) {
	w, _ := initWriter(t)
	_, micros := initLiquidWriter(t, w)

	wantErr := fmt.Errorf("consensus rejected")
	next := testBlock(micros[2].TotalResBlockSig, testKey("generator"), 2, 2000)
	_, _, err := w.AppendBlock(next, func(*types.Block) (BlockDiff, error) { return nil, wantErr })
	require.ErrorIs(t, err, wantErr)
	// nothing was persisted
	require.EqualValues(t, 0, w.store.Height())
}

func TestAppendBlockInvalidForgedSignature(t *testing.T) {
	w, _ := initWriter(t, WithSignatureValidator(func(b *types.Block) error {
		return fmt.Errorf("bad signature")
	}))
	_, micros := initLiquidWriter(t, w)

	next := testBlock(micros[0].TotalResBlockSig, testKey("generator"), 2, 2000)
	_, _, err := w.AppendBlock(next, alwaysValid(nil))
	require.ErrorIs(t, err, ErrInvalidForgedSignature)
	require.True(t, IsFatal(err))
}

func TestAppendMicroBlockForkMetrics(t *testing.T) {
	w, rec := initWriter(t)
	base, micros := initLiquidWriter(t, w)
	gen := testKey("generator")

	// first-micro fork: does not reference the base
	head2, rec2 := initWriter(t)
	b2 := testBlock(types.BlockID{}, gen, 1, 1000)
	_, _, err := head2.AppendBlock(b2, alwaysValid(nil))
	require.NoError(t, err)
	_, err = head2.AppendMicroBlock(testMicro(gen, types.Hash([]byte("fork"))), alwaysValidMicro(nil))
	require.ErrorIs(t, err, ErrBlockMicroFork)
	require.EqualValues(t, 1, rec2.Counter("block-micro-fork").Count())

	// micro-micro fork: references the base instead of the tip
	_, err = w.AppendMicroBlock(testMicro(gen, base.UniqueID()), alwaysValidMicro(nil))
	require.ErrorIs(t, err, ErrMicroMicroFork)
	require.EqualValues(t, 1, rec.Counter("micro-micro-fork").Count())

	// still chained correctly afterwards
	_, err = w.AppendMicroBlock(testMicro(gen, micros[2].TotalResBlockSig), alwaysValidMicro(nil))
	require.NoError(t, err)
}

func TestAppendMicroBlockSignatureValidator(t *testing.T) {
	wantErr := fmt.Errorf("bad microblock signature")
	w, _ := initWriter(t, WithMicroSignatureValidator(func(mb *types.MicroBlock) error {
		return wantErr
	}))
	base := testBlock(types.BlockID{}, testKey("generator"), 1, 1000)
	_, _, err := w.AppendBlock(base, alwaysValid(nil))
	require.NoError(t, err)

	mb := testMicro(testKey("generator"), base.UniqueID())
	_, err = w.AppendMicroBlock(mb, alwaysValidMicro(nil))
	require.ErrorIs(t, err, wantErr)
}

func TestDiscardBlock(t *testing.T) {
	w, _ := initWriter(t)
	base, _ := initLiquidWriter(t, w)

	// liquid block present: its base transactions come back
	txs, err := w.DiscardBlock()
	require.NoError(t, err)
	require.Equal(t, txIDs(t, base.Transactions), txIDs(t, txs))
	require.EqualValues(t, 0, w.Height())

	// empty everything: discard reports the empty store
	_, err = w.DiscardBlock()
	require.ErrorIs(t, err, ErrStoreEmpty)
}

func TestHeightAndScoreAcrossLiquid(t *testing.T) {
	w, _ := initWriter(t)
	base, micros := initLiquidWriter(t, w)

	// persist the liquid block by extending the chain
	next := testBlock(micros[2].TotalResBlockSig, testKey("generator"), 5, 2000)
	_, _, err := w.AppendBlock(next, alwaysValid(nil))
	require.NoError(t, err)
	require.EqualValues(t, 2, w.Height())

	// persisted block
	height, found, err := w.HeightOf(micros[2].TotalResBlockSig)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 1, height)

	// liquid base and its microblock signatures share the liquid height/score
	gen := testKey("generator")
	mb := testMicro(gen, next.UniqueID(), testTx("liquid-tx"))
	_, err = w.AppendMicroBlock(mb, alwaysValidMicro(nil))
	require.NoError(t, err)
	for _, id := range []types.BlockID{next.UniqueID(), mb.TotalResBlockSig} {
		height, found, err = w.HeightOf(id)
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, 2, height)

		score, found, err := w.ScoreOf(id)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint256.NewInt(base.BlockScore+next.BlockScore), score)
	}

	ids, err := w.LastBlockIDs(3)
	require.NoError(t, err)
	require.Equal(t, []types.BlockID{mb.TotalResBlockSig, micros[2].TotalResBlockSig}, ids[:2])
}
