package chain

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/nereus-network/nereus/internal/keyvaluedb"
	"github.com/nereus-network/nereus/internal/types"
	"github.com/nereus-network/nereus/internal/util"
)

// Key prefixes of the four persisted maps. Heights are big-endian uint64 so
// the key space iterates in chain order.
const (
	prefixBlocks            = 'b'
	prefixSignatures        = 's'
	prefixSignaturesReverse = 'r'
	prefixScore             = 'c'
)

type (
	// HistoryStore is the durable append-only log of finalized blocks: block
	// bodies by height, signature<->height indices and the cumulative chain
	// score, all committed in one transaction per mutation.
	//
	// HistoryStore is not safe for concurrent use on its own; the NG writer
	// serializes access for the whole chain subsystem.
	HistoryStore struct {
		db     keyvaluedb.KeyValueDB
		height uint64
		lastID types.BlockID
		score  *uint256.Int
	}

	scoreRecord struct {
		Score []byte
	}
)

// NewHistoryStore opens the store on db, verifying that the four indices have
// equal cardinality and recovering the tip height, id and cumulative score.
// Opening fails with ErrStoreInconsistent when the indices diverge.
func NewHistoryStore(db keyvaluedb.KeyValueDB) (*HistoryStore, error) {
	if db == nil {
		return nil, errors.New("storage is nil")
	}
	s := &HistoryStore{db: db, score: uint256.NewInt(0)}
	counts := make([]uint64, 4)
	for i, prefix := range []byte{prefixBlocks, prefixSignatures, prefixSignaturesReverse, prefixScore} {
		n, err := countWithPrefix(db, prefix)
		if err != nil {
			return nil, fmt.Errorf("block store open failed, %w", err)
		}
		counts[i] = n
	}
	for _, n := range counts[1:] {
		if n != counts[0] {
			return nil, fmt.Errorf("index cardinality mismatch %v: %w", counts, ErrStoreInconsistent)
		}
	}
	s.height = counts[0]
	if s.height > 0 {
		found, err := db.Read(signatureKey(s.height), &s.lastID)
		if err != nil || !found {
			return nil, fmt.Errorf("block store tip signature read failed (found=%v), %w", found, err)
		}
		var rec scoreRecord
		if found, err = db.Read(scoreKey(s.height), &rec); err != nil || !found {
			return nil, fmt.Errorf("block store tip score read failed (found=%v), %w", found, err)
		}
		s.score = util.BytesToUint256(rec.Score)
	}
	return s, nil
}

// Height returns the number of persisted blocks.
func (s *HistoryStore) Height() uint64 {
	return s.height
}

// Score returns the cumulative chain score at the tip.
func (s *HistoryStore) Score() *uint256.Int {
	return s.score.Clone()
}

// LastBlockID returns the tip block id, or false when the store is empty.
func (s *HistoryStore) LastBlockID() (types.BlockID, bool) {
	if s.height == 0 {
		return types.BlockID{}, false
	}
	return s.lastID, true
}

// Append persists b as the new tip. The block must reference the current tip
// (or the store must be empty); all four indices are written in a single
// committed transaction.
func (s *HistoryStore) Append(b *types.Block) error {
	if b == nil {
		return errors.New("block is nil")
	}
	if s.height > 0 && b.Reference != s.lastID {
		return fmt.Errorf("expected parent %s, block references %s: %w", s.lastID, b.Reference, ErrParentMismatch)
	}
	newHeight := s.height + 1
	newScore := new(uint256.Int).Add(s.score, b.Score())

	tx, err := s.db.StartTx()
	if err != nil {
		return fmt.Errorf("block store tx start failed, %w", err)
	}
	id := b.UniqueID()
	if err = writeAll(tx,
		write{blockKey(newHeight), b},
		write{signatureKey(newHeight), &id},
		write{signatureReverseKey(id), newHeight},
		write{scoreKey(newHeight), &scoreRecord{Score: util.Uint256ToBytes(newScore)}},
	); err != nil {
		return errors.Join(fmt.Errorf("block store append failed, %w", err), tx.Rollback())
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("block store commit failed, %w", err)
	}
	s.height = newHeight
	s.lastID = id
	s.score = newScore
	return nil
}

// DiscardLast removes the tip block and returns it.
func (s *HistoryStore) DiscardLast() (*types.Block, error) {
	if s.height == 0 {
		return nil, ErrStoreEmpty
	}
	last, err := s.BlockAt(s.height)
	if err != nil {
		return nil, err
	}
	// resolve the new tip before mutating
	newHeight := s.height - 1
	newID := types.BlockID{}
	newScore := uint256.NewInt(0)
	if newHeight > 0 {
		if found, err := s.db.Read(signatureKey(newHeight), &newID); err != nil || !found {
			return nil, fmt.Errorf("parent signature read failed (found=%v), %w", found, err)
		}
		var rec scoreRecord
		if found, err := s.db.Read(scoreKey(newHeight), &rec); err != nil || !found {
			return nil, fmt.Errorf("parent score read failed (found=%v), %w", found, err)
		}
		newScore = util.BytesToUint256(rec.Score)
	}

	tx, err := s.db.StartTx()
	if err != nil {
		return nil, fmt.Errorf("block store tx start failed, %w", err)
	}
	for _, key := range [][]byte{blockKey(s.height), signatureKey(s.height), signatureReverseKey(s.lastID), scoreKey(s.height)} {
		if err = tx.Delete(key); err != nil {
			return nil, errors.Join(fmt.Errorf("block store discard failed, %w", err), tx.Rollback())
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("block store commit failed, %w", err)
	}
	s.height = newHeight
	s.lastID = newID
	s.score = newScore
	return last, nil
}

// BlockAt returns the block at the given height (1-based).
func (s *HistoryStore) BlockAt(height uint64) (*types.Block, error) {
	b := &types.Block{}
	found, err := s.db.Read(blockKey(height), b)
	if err != nil {
		return nil, fmt.Errorf("block read failed, %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no block at height %d", height)
	}
	return b, nil
}

// BlockBytes returns the canonical binary form of the block at the given
// height.
func (s *HistoryStore) BlockBytes(height uint64) ([]byte, error) {
	b, err := s.BlockAt(height)
	if err != nil {
		return nil, err
	}
	return b.Bytes()
}

// HeightOf returns the height of the block with the given id, or false when
// the id is not persisted.
func (s *HistoryStore) HeightOf(id types.BlockID) (uint64, bool, error) {
	var height uint64
	found, err := s.db.Read(signatureReverseKey(id), &height)
	if err != nil {
		return 0, false, fmt.Errorf("height read failed, %w", err)
	}
	return height, found, nil
}

// ScoreOf returns the cumulative chain score at the block with the given id.
func (s *HistoryStore) ScoreOf(id types.BlockID) (*uint256.Int, bool, error) {
	height, found, err := s.HeightOf(id)
	if err != nil || !found {
		return nil, false, err
	}
	var rec scoreRecord
	if found, err = s.db.Read(scoreKey(height), &rec); err != nil || !found {
		return nil, false, fmt.Errorf("score read failed (found=%v), %w", found, err)
	}
	return util.BytesToUint256(rec.Score), true, nil
}

// LastBlockIDs returns up to n block ids from the tip downwards.
func (s *HistoryStore) LastBlockIDs(n int) ([]types.BlockID, error) {
	ids := make([]types.BlockID, 0, n)
	for h := s.height; h > 0 && len(ids) < n; h-- {
		var id types.BlockID
		found, err := s.db.Read(signatureKey(h), &id)
		if err != nil || !found {
			return nil, fmt.Errorf("signature read at height %d failed (found=%v), %w", h, found, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GeneratedBy returns ids of the blocks generated by the given account in the
// height range [from, to].
func (s *HistoryStore) GeneratedBy(account types.PublicKey, from, to uint64) ([]types.BlockID, error) {
	var ids []types.BlockID
	for h := util.Max(from, 1); h <= util.Min(to, s.height); h++ {
		b, err := s.BlockAt(h)
		if err != nil {
			return nil, err
		}
		if b.Generator() == account {
			ids = append(ids, b.UniqueID())
		}
	}
	return ids, nil
}

type write struct {
	key   []byte
	value any
}

func writeAll(tx keyvaluedb.DBTransaction, writes ...write) error {
	for _, w := range writes {
		if err := tx.Write(w.key, w.value); err != nil {
			return err
		}
	}
	return nil
}

func countWithPrefix(db keyvaluedb.KeyValueDB, prefix byte) (n uint64, err error) {
	it := db.Find([]byte{prefix})
	defer func() { err = errors.Join(err, it.Close()) }()
	for ; it.Valid() && len(it.Key()) > 0 && it.Key()[0] == prefix; it.Next() {
		n++
	}
	return n, err
}

func blockKey(height uint64) []byte {
	return append([]byte{prefixBlocks}, util.Uint64ToBytes(height)...)
}

func signatureKey(height uint64) []byte {
	return append([]byte{prefixSignatures}, util.Uint64ToBytes(height)...)
}

func signatureReverseKey(id types.BlockID) []byte {
	return append([]byte{prefixSignaturesReverse}, id[:]...)
}

func scoreKey(height uint64) []byte {
	return append([]byte{prefixScore}, util.Uint64ToBytes(height)...)
}
