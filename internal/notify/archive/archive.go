// Package archive keeps finalized calls in a local badger database so they
// can be listed and inspected offline with `livecall history`.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/TF-SoftwareEmergentes/livecall/internal/notify"
)

// ErrNotFound is returned by Get for an unknown session.
var ErrNotFound = errors.New("call not found in archive")

var keyPrefix = []byte("call/")

// Config configures the archive.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
}

// Archive stores call summaries keyed by session ID. The recording itself is
// not archived.
type Archive struct {
	db *badger.DB
}

// Open opens or creates the archive.
func Open(cfg Config) (*Archive, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("archive requires a path")
		}
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	return &Archive{db: db}, nil
}

func key(sessionID string) []byte {
	return append(append([]byte{}, keyPrefix...), sessionID...)
}

func encode(call *notify.CallCompleted) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(call); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*notify.CallCompleted, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	var call notify.CallCompleted
	if err := dec.Decode(&call); err != nil {
		return nil, err
	}
	return &call, nil
}

// Notify stores the call, replacing any earlier entry for the same session.
func (a *Archive) Notify(ctx context.Context, call *notify.CallCompleted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(call)
	if err != nil {
		return fmt.Errorf("archive: encode call: %w", err)
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(call.SessionID), data)
	})
}

// Get returns the archived call for sessionID.
func (a *Archive) Get(sessionID string) (*notify.CallCompleted, error) {
	var call *notify.CallCompleted
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var derr error
			call, derr = decode(val)
			return derr
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", sessionID, err)
	}
	return call, nil
}

// List returns archived calls, most recently finalized first. A limit of
// zero or less returns all of them.
func (a *Archive) List(limit int) ([]*notify.CallCompleted, error) {
	var calls []*notify.CallCompleted
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				call, err := decode(val)
				if err != nil {
					return err
				}
				calls = append(calls, call)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}

	sort.Slice(calls, func(i, j int) bool {
		return calls[i].FinalizedAt.After(calls[j].FinalizedAt)
	})
	if limit > 0 && len(calls) > limit {
		calls = calls[:limit]
	}
	return calls, nil
}

// Delete removes an archived call.
func (a *Archive) Delete(sessionID string) error {
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(sessionID))
	})
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

var _ notify.Notifier = (*Archive)(nil)
