package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/imago-ai/imago/pkg/types"
)

var (
	badgerGraphPrefix = []byte("g/")
	badgerSuperPrefix = []byte("s/")
	badgerIDPrefix    = []byte("id/")
)

// BadgerLog is the embedded RecordLog backend. Graph and supersession
// records are stored under sequence-ordered keys so replay preserves append
// order; a secondary id index supports compaction removal.
type BadgerLog struct {
	db       *badger.DB
	graphSeq *badger.Sequence
	superSeq *badger.Sequence
}

// NewBadgerLog opens (or creates) a badger database at path.
func NewBadgerLog(path string) (*BadgerLog, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger record log: %w", err)
	}

	graphSeq, err := db.GetSequence([]byte("seq/graph"), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open graph sequence: %w", err)
	}
	superSeq, err := db.GetSequence([]byte("seq/super"), 128)
	if err != nil {
		graphSeq.Release()
		db.Close()
		return nil, fmt.Errorf("failed to open supersession sequence: %w", err)
	}

	return &BadgerLog{db: db, graphSeq: graphSeq, superSeq: superSeq}, nil
}

func seqKey(prefix []byte, seq uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

func (l *BadgerLog) AppendGraph(ctx context.Context, g *types.Graph) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode graph record: %w", err)
	}
	seq, err := l.graphSeq.Next()
	if err != nil {
		return fmt.Errorf("failed to advance graph sequence: %w", err)
	}

	key := seqKey(badgerGraphPrefix, seq)
	return l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, payload); err != nil {
			return err
		}
		// id index maps graph id to its log key for compaction removal.
		return txn.Set(append(append([]byte(nil), badgerIDPrefix...), g.ID...), key)
	})
}

func (l *BadgerLog) AppendSupersession(ctx context.Context, s types.Supersession) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode supersession record: %w", err)
	}
	seq, err := l.superSeq.Next()
	if err != nil {
		return fmt.Errorf("failed to advance supersession sequence: %w", err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seqKey(badgerSuperPrefix, seq), payload)
	})
}

func (l *BadgerLog) ReplayGraphs(ctx context.Context, fn func(*types.Graph) error) error {
	return l.replay(ctx, badgerGraphPrefix, func(val []byte) error {
		var g types.Graph
		if err := json.Unmarshal(val, &g); err != nil {
			return fmt.Errorf("failed to decode graph record: %w", err)
		}
		return fn(&g)
	})
}

func (l *BadgerLog) ReplaySupersessions(ctx context.Context, fn func(types.Supersession) error) error {
	return l.replay(ctx, badgerSuperPrefix, func(val []byte) error {
		var s types.Supersession
		if err := json.Unmarshal(val, &s); err != nil {
			return fmt.Errorf("failed to decode supersession record: %w", err)
		}
		return fn(s)
	})
}

func (l *BadgerLog) replay(ctx context.Context, prefix []byte, fn func([]byte) error) error {
	return l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *BadgerLog) RemoveGraphs(ctx context.Context, graphIDs []string) error {
	for _, id := range graphIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		idKey := append(append([]byte(nil), badgerIDPrefix...), id...)
		err := l.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(idKey)
			if err == badger.ErrKeyNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			logKey, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(logKey); err != nil {
				return err
			}
			return txn.Delete(idKey)
		})
		if err != nil {
			return fmt.Errorf("failed to remove graph %s: %w", id, err)
		}
	}
	return nil
}

func (l *BadgerLog) Close() error {
	if err := l.graphSeq.Release(); err != nil {
		l.db.Close()
		return err
	}
	if err := l.superSeq.Release(); err != nil {
		l.db.Close()
		return err
	}
	return l.db.Close()
}
