package chain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nereus-network/nereus/internal/types"
)

// initLiquidHead builds a head with a base block and n chained microblocks,
// one transaction each.
func initLiquidHead(t *testing.T, n int) (*LiquidHead, *types.Block, []*types.MicroBlock) {
	t.Helper()
	gen := testKey("generator")
	base := testBlock(types.BlockID{}, gen, 1, 1000, testTx("base-0"), testTx("base-1"))
	head := NewLiquidHead()
	head.SetBase(base)

	micros := make([]*types.MicroBlock, 0, n)
	prev := base.UniqueID()
	for i := 0; i < n; i++ {
		mb := testMicro(gen, prev, testTx(fmt.Sprintf("micro-%d", i)))
		_, err := head.AppendMicro(mb, alwaysValidMicro(nil))
		require.NoError(t, err)
		micros = append(micros, mb)
		prev = mb.TotalResBlockSig
	}
	return head, base, micros
}

func TestAppendMicroNoBase(t *testing.T) {
	head := NewLiquidHead()
	mb := testMicro(testKey("generator"), types.Hash([]byte("x")))
	_, err := head.AppendMicro(mb, alwaysValidMicro(nil))
	require.ErrorIs(t, err, ErrNoBase)
}

func TestAppendMicroWrongGenerator(t *testing.T) {
	head, base, _ := initLiquidHead(t, 0)
	mb := testMicro(testKey("impostor"), base.UniqueID())
	_, err := head.AppendMicro(mb, alwaysValidMicro(nil))
	require.ErrorIs(t, err, ErrWrongGenerator)
}

func TestAppendMicroBlockMicroFork(t *testing.T) {
	head, _, _ := initLiquidHead(t, 0)
	mb := testMicro(testKey("generator"), types.Hash([]byte("not the base")))
	_, err := head.AppendMicro(mb, alwaysValidMicro(nil))
	require.ErrorIs(t, err, ErrBlockMicroFork)
}

func TestAppendMicroMicroMicroFork(t *testing.T) {
	head, base, _ := initLiquidHead(t, 2)
	// references the base instead of the newest microblock
	mb := testMicro(testKey("generator"), base.UniqueID())
	_, err := head.AppendMicro(mb, alwaysValidMicro(nil))
	require.ErrorIs(t, err, ErrMicroMicroFork)
}

func TestAppendMicroValidatorRejects(t *testing.T) {
	head, _, micros := initLiquidHead(t, 1)
	mb := testMicro(testKey("generator"), micros[0].TotalResBlockSig)
	wantErr := fmt.Errorf("consensus says no")
	_, err := head.AppendMicro(mb, func(*types.MicroBlock, int64) (BlockDiff, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	// rejected microblock is not retained
	require.Len(t, head.MicroBlocks(), 1)
}

func TestAppendMicroValidatorSeesBaseTimestamp(t *testing.T) {
	head, base, _ := initLiquidHead(t, 0)
	mb := testMicro(testKey("generator"), base.UniqueID())
	var gotTimestamp int64
	_, err := head.AppendMicro(mb, func(_ *types.MicroBlock, baseTimestamp int64) (BlockDiff, error) {
		gotTimestamp = baseTimestamp
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, base.Timestamp, gotTimestamp)
}

func TestBestLiquidBlock(t *testing.T) {
	head, base, micros := initLiquidHead(t, 3)
	best := head.BestLiquidBlock()
	require.Equal(t, micros[2].TotalResBlockSig, best.UniqueID())
	require.Equal(t, base.Reference, best.Reference)
	require.Equal(t,
		[]string{"base-0", "base-1", "micro-0", "micro-1", "micro-2"},
		txIDs(t, best.Transactions))
	// the base itself is untouched
	require.Len(t, base.Transactions, 2)

	headNoMicros, baseNoMicros, _ := initLiquidHead(t, 0)
	require.Equal(t, baseNoMicros.UniqueID(), headNoMicros.BestLiquidBlock().UniqueID())
}

func TestForgePrefixRoundTrip(t *testing.T) {
	const n = 4
	for k := 0; k < n; k++ {
		k := k
		t.Run(fmt.Sprintf("prefix ending at micro %d", k), func(t *testing.T) {
			head, base, micros := initLiquidHead(t, n)
			forged, discarded, ok := head.ForgePrefixEndingAt(micros[k].TotalResBlockSig)
			require.True(t, ok)
			require.Equal(t, micros[k].TotalResBlockSig, forged.UniqueID())
			require.Len(t, forged.Transactions, len(base.Transactions)+k+1)
			require.Len(t, discarded, n-k-1)
			for i, mb := range discarded {
				require.Equal(t, micros[k+1+i].TotalResBlockSig, mb.TotalResBlockSig)
			}
		})
	}
}

func TestForgePrefixAtBase(t *testing.T) {
	head, base, micros := initLiquidHead(t, 2)
	forged, discarded, ok := head.ForgePrefixEndingAt(base.UniqueID())
	require.True(t, ok)
	require.Equal(t, base.UniqueID(), forged.UniqueID())
	require.Equal(t, txIDs(t, base.Transactions), txIDs(t, forged.Transactions))
	require.Len(t, discarded, len(micros))
}

func TestForgePrefixUnknownID(t *testing.T) {
	head, _, _ := initLiquidHead(t, 2)
	_, _, ok := head.ForgePrefixEndingAt(types.Hash([]byte("unknown")))
	require.False(t, ok)
}

func TestSetBaseClearsMicros(t *testing.T) {
	head, _, _ := initLiquidHead(t, 2)
	next := testBlock(types.Hash([]byte("whatever")), testKey("generator"), 1, 2000)
	head.SetBase(next)
	require.Empty(t, head.MicroBlocks())
	tip, ok := head.TipID()
	require.True(t, ok)
	require.Equal(t, next.UniqueID(), tip)
}
