package types

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
)

// Block versions. NG capable blocks may be extended with microblocks.
const (
	LegacyBlockVersion uint8 = 2
	NGBlockVersion     uint8 = 3
)

type (
	// Transaction is an opaque transaction as handed over by the parser
	// collaborator. The core never interprets Body.
	Transaction struct {
		ID        []byte
		Body      []byte
		Timestamp int64
	}

	// SignerData carries the block producer identity and the chain signature.
	SignerData struct {
		Generator PublicKey
		Signature BlockID
	}

	// Block is a produced block. Reference points to the parent block id.
	Block struct {
		Version      uint8
		Timestamp    int64
		Reference    BlockID
		SignerData   SignerData
		BlockScore   uint64
		Transactions []Transaction
	}

	// MicroBlock extends the liquid block: it references the current total
	// chain signature and produces a new one.
	MicroBlock struct {
		Generator        PublicKey
		Transactions     []Transaction
		PrevResBlockSig  BlockID
		TotalResBlockSig BlockID
	}
)

// UniqueID is the block identity used for chaining and store indexing. It is
// the chain signature value: a block forged from microblocks takes the
// referenced total signature as its own id.
func (x *Block) UniqueID() BlockID {
	return x.SignerData.Signature
}

func (x *Block) Generator() PublicKey {
	return x.SignerData.Generator
}

// Score returns the block score as a big integer for cumulative chain score
// arithmetic.
func (x *Block) Score() *uint256.Int {
	return uint256.NewInt(x.BlockScore)
}

// Bytes returns the canonical binary form of the block.
func (x *Block) Bytes() ([]byte, error) {
	return cbor.Marshal(x)
}

func BlockFromBytes(data []byte) (*Block, error) {
	b := &Block{}
	if err := cbor.Unmarshal(data, b); err != nil {
		return nil, err
	}
	return b, nil
}
