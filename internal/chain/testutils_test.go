package chain

import (
	"testing"

	"github.com/nereus-network/nereus/internal/types"
	"github.com/nereus-network/nereus/internal/util"
)

func testKey(name string) types.PublicKey {
	var key types.PublicKey
	copy(key[:], name)
	return key
}

func testTx(id string) types.Transaction {
	return types.Transaction{ID: []byte(id), Body: []byte("body-" + id)}
}

func testBlock(reference types.BlockID, generator types.PublicKey, score uint64, timestamp int64, txs ...types.Transaction) *types.Block {
	sig := types.Hash(reference[:], generator[:], util.Uint64ToBytes(uint64(timestamp)))
	return &types.Block{
		Version:      types.NGBlockVersion,
		Timestamp:    timestamp,
		Reference:    reference,
		SignerData:   types.SignerData{Generator: generator, Signature: sig},
		BlockScore:   score,
		Transactions: txs,
	}
}

func testMicro(generator types.PublicKey, prev types.BlockID, txs ...types.Transaction) *types.MicroBlock {
	chunks := [][]byte{prev[:], generator[:]}
	for _, tx := range txs {
		chunks = append(chunks, tx.ID)
	}
	return &types.MicroBlock{
		Generator:        generator,
		Transactions:     txs,
		PrevResBlockSig:  prev,
		TotalResBlockSig: types.Hash(chunks...),
	}
}

func alwaysValid(diff BlockDiff) BlockValidator {
	return func(b *types.Block) (BlockDiff, error) {
		return diff, nil
	}
}

func alwaysValidMicro(diff BlockDiff) MicroBlockValidator {
	return func(mb *types.MicroBlock, baseTimestamp int64) (BlockDiff, error) {
		return diff, nil
	}
}

func txIDs(t *testing.T, txs []types.Transaction) []string {
	t.Helper()
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, string(tx.ID))
	}
	return ids
}
