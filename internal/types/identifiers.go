package types

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	BlockIDLength   = 32
	PublicKeyLength = 32
)

type (
	// BlockID identifies a block or a microblock chain signature. Equality is
	// by bytes; the zero value means "no id".
	BlockID [BlockIDLength]byte

	// PublicKey is an account/generator public key. Key derivation and
	// signature verification live in the crypto collaborator; the core only
	// compares and renders keys.
	PublicKey [PublicKeyLength]byte
)

func BlockIDFromBytes(b []byte) (BlockID, error) {
	var id BlockID
	if len(b) != BlockIDLength {
		return id, fmt.Errorf("invalid block id length %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id BlockID) Bytes() []byte {
	return bytes.Clone(id[:])
}

func (id BlockID) IsZero() bool {
	return id == BlockID{}
}

func (id BlockID) String() string {
	return base58.Encode(id[:])
}

func (id BlockID) MarshalBinary() ([]byte, error) {
	return bytes.Clone(id[:]), nil
}

func (id *BlockID) UnmarshalBinary(data []byte) error {
	if len(data) != BlockIDLength {
		return fmt.Errorf("invalid block id length %d", len(data))
	}
	copy(id[:], data)
	return nil
}

func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var key PublicKey
	if len(b) != PublicKeyLength {
		return key, fmt.Errorf("invalid public key length %d", len(b))
	}
	copy(key[:], b)
	return key, nil
}

func (k PublicKey) Bytes() []byte {
	return bytes.Clone(k[:])
}

func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

func (k PublicKey) MarshalBinary() ([]byte, error) {
	return bytes.Clone(k[:]), nil
}

func (k *PublicKey) UnmarshalBinary(data []byte) error {
	if len(data) != PublicKeyLength {
		return fmt.Errorf("invalid public key length %d", len(data))
	}
	copy(k[:], data)
	return nil
}

// Hash derives a chain id from the given chunks. Producers use it to derive
// block and microblock chaining signatures; the core itself never recomputes
// ids from content.
func Hash(chunks ...[]byte) BlockID {
	h, _ := blake2b.New256(nil)
	for _, c := range chunks {
		h.Write(c)
	}
	var id BlockID
	copy(id[:], h.Sum(nil))
	return id
}
