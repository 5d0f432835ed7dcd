package pebbledb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

var ErrNotFound = entities.ErrStoreEntityNotFound

const (
	lastProcessedSlotKey = 0x00
	skippedSlotKey       = 0x01
)

// Store keeps per pipeline status. It is informational only, the pipelines never resume from it.
type Store struct {
	db *pebble.DB
}

func NewProcessorStore(storeDir string) (*Store, error) {
	db, err := pebble.Open(filepath.Join(storeDir, "withdrawals-publisher-store"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %v", err)
	}

	return &Store{db: db}, nil
}

func pipelineKey(prefix byte, pipeline string) []byte {
	key := []byte{prefix}
	key = append(key, pipeline...)
	return append(key, 0x00)
}

func (ps *Store) SetLastProcessedSlot(pipeline string, slot uint64) error {
	key := pipelineKey(lastProcessedSlotKey, pipeline)

	var value []byte
	value = binary.BigEndian.AppendUint64(value, slot)

	err := ps.db.Set(key, value, pebble.Sync)
	if err != nil {
		return fmt.Errorf("setting last processed slot: %v", err)
	}

	return nil
}

func (ps *Store) GetLastProcessedSlot(pipeline string) (uint64, error) {
	key := pipelineKey(lastProcessedSlotKey, pipeline)

	value, closer, err := ps.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("getting last processed slot: %v", err)
	}
	defer closer.Close()

	return binary.BigEndian.Uint64(value), nil
}

func (ps *Store) AddSkippedSlot(pipeline string, slot uint64, reason string) error {
	key := pipelineKey(skippedSlotKey, pipeline)
	key = binary.BigEndian.AppendUint64(key, slot)

	err := ps.db.Set(key, []byte(reason), pebble.Sync)
	if err != nil {
		return fmt.Errorf("adding skipped slot [%d]: %v", slot, err)
	}

	return nil
}

// GetSkippedSlots returns the skipped slots of a pipeline in ascending order.
func (ps *Store) GetSkippedSlots(pipeline string) ([]entities.SkippedSlot, error) {
	lowerBound := pipelineKey(skippedSlotKey, pipeline)
	upperBound := append(pipelineKey(skippedSlotKey, pipeline)[:len(lowerBound)-1], 0x01)

	iter, err := ps.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
	if err != nil {
		return nil, fmt.Errorf("creating iterator: %v", err)
	}
	defer iter.Close()

	skipped := make([]entities.SkippedSlot, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()

		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("getting value from iter: %v", err)
		}

		skipped = append(skipped, entities.SkippedSlot{
			Slot:   binary.BigEndian.Uint64(key[len(lowerBound):]),
			Reason: string(value),
		})
	}

	return skipped, nil
}

func (ps *Store) Close() error {
	return ps.db.Close()
}
