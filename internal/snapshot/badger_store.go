// internal/snapshot/badger_store.go
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"semtree/internal/errors"
	"semtree/internal/tree"
)

const (
	latestKey  = "snapshot:latest"
	passPrefix = "snapshot:pass:"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// BadgerStore keeps snapshots in BadgerDB as zstd-compressed JSON blobs.
// The latest snapshot lives under a fixed key; every pass is also retained
// under its own id for later inspection.
type BadgerStore struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &BadgerStore{db: db, enc: enc, dec: dec}, nil
}

func (s *BadgerStore) Save(snap *tree.Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("snapshot id cannot be empty")
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid snapshot: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	blob := s.enc.EncodeAll(data, nil)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(latestKey), blob); err != nil {
			return err
		}
		return txn.Set([]byte(passPrefix+snap.ID), blob)
	})
}

// Load returns the latest snapshot, or nil if nothing was saved yet. A
// snapshot that decodes but fails structural validation is surfaced as a
// SnapshotCorrupt error; the caller must not run a pass against it.
func (s *BadgerStore) Load() (*tree.Snapshot, error) {
	snap, err := s.load(latestKey)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadPass returns the snapshot produced by a specific pass.
func (s *BadgerStore) LoadPass(passID string) (*tree.Snapshot, error) {
	snap, err := s.load(passPrefix + passID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("no snapshot for pass %s", passID)
	}
	return snap, nil
}

// PassInfo summarizes one retained pass.
type PassInfo struct {
	ID       string `json:"id"`
	RootHash string `json:"root_hash"`
	Nodes    int    `json:"nodes"`
}

// History lists retained passes, newest first.
func (s *BadgerStore) History() ([]PassInfo, error) {
	type entry struct {
		info PassInfo
		at   int64
	}
	var entries []entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(passPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				snap, err := s.decode(val)
				if err != nil {
					return err
				}
				entries = append(entries, entry{
					info: PassInfo{
						ID:       snap.ID,
						RootHash: snap.RootHash,
						Nodes:    len(snap.Nodes),
					},
					at: snap.CreatedAt.UnixNano(),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing passes: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].at > entries[j].at })
	infos := make([]PassInfo, len(entries))
	for i, e := range entries {
		infos[i] = e.info
	}
	return infos, nil
}

// Close releases compression resources.
func (s *BadgerStore) Close() {
	s.enc.Close()
	s.dec.Close()
}

func (s *BadgerStore) load(key string) (*tree.Snapshot, error) {
	var blob []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	snap, err := s.decode(blob)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *BadgerStore) decode(blob []byte) (*tree.Snapshot, error) {
	data := blob
	if bytes.HasPrefix(blob, zstdMagic) {
		var err error
		data, err = s.dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, errors.SnapshotCorrupt("decompressing snapshot: %v", err)
		}
	}

	var snap tree.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.SnapshotCorrupt("decoding snapshot: %v", err)
	}
	return &snap, nil
}
