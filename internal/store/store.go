// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

// Package store persists the serializable part of the node tree in BadgerDB.
//
// A snapshot is the whole configured tree (endpoints, servers, items and
// their attributes) encoded as JSON under a single key. The previous
// snapshot is kept under a second key so a corrupt write can be rolled back
// by hand. Secret attributes are sealed with a Cipher before they are
// written.
package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/metrics"
	"github.com/tomtom215/opclink/internal/nodetree"
)

// Key layout.
const (
	keyCurrent  = "snapshot:current"
	keyPrevious = "snapshot:previous"
)

// sealedPrefix marks an attribute value produced by Cipher.Encrypt.
const sealedPrefix = "enc:"

// snapshotVersion is bumped when the record layout changes.
const snapshotVersion = 1

var (
	// ErrNoSnapshot is returned by Load on an empty store.
	ErrNoSnapshot = errors.New("no snapshot stored")

	// ErrNilTree is returned by New without a tree.
	ErrNilTree = errors.New("node tree cannot be nil")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

// Cipher seals secret attribute values.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Config configures the BadgerDB instance.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM.
	InMemory bool

	// SyncWrites fsyncs every snapshot.
	SyncWrites bool

	// SecretAttributes are sealed with the Cipher. Defaults to "password".
	SecretAttributes []string
}

// record is the stored form of a snapshot.
type record struct {
	Version int                `json:"version"`
	SavedAt time.Time          `json:"saved_at"`
	Nodes   int                `json:"nodes"`
	Tree    *nodetree.Snapshot `json:"tree"`
}

// Store snapshots a Tree into BadgerDB.
type Store struct {
	db      *badger.DB
	tree    *nodetree.Tree
	cipher  Cipher
	secrets map[string]struct{}

	mu      sync.Mutex
	lastSum [sha256.Size]byte
	saved   bool
	closed  bool
}

// Open opens (or creates) the database described by cfg and binds it to
// tree. cipher may be nil, in which case secrets are stored in clear text.
func Open(cfg Config, tree *nodetree.Tree, cipher Cipher) (*Store, error) {
	if tree == nil {
		return nil, ErrNilTree
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Compression = options.Snappy
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := New(db, tree, cipher, cfg.SecretAttributes)
	if cipher == nil {
		logging.Warn().Msg("No credential secret configured, endpoint passwords are stored unencrypted")
	}
	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Snapshot store opened")
	return s, nil
}

// New wraps an open database. The caller keeps ownership of db only if it
// never calls Close on the returned Store.
func New(db *badger.DB, tree *nodetree.Tree, cipher Cipher, secretAttrs []string) *Store {
	if len(secretAttrs) == 0 {
		secretAttrs = []string{"password"}
	}
	secrets := make(map[string]struct{}, len(secretAttrs))
	for _, a := range secretAttrs {
		secrets[a] = struct{}{}
	}
	return &Store{db: db, tree: tree, cipher: cipher, secrets: secrets}
}

// SaveSnapshot writes the serializable tree. A snapshot identical to the
// last one written by this Store is skipped.
func (s *Store) SaveSnapshot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := s.tree.Snapshot(s.tree.Root())
	if err != nil {
		return fmt.Errorf("snapshot tree: %w", err)
	}

	// Sealed secrets differ on every save, so compare the clear tree.
	plain, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	sum := sha256.Sum256(plain)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.saved && sum == s.lastSum {
		return nil
	}

	nodes := 0
	if err := s.walkSecrets(snap, s.seal, &nodes); err != nil {
		metrics.RecordSnapshot(err)
		return err
	}

	data, err := json.Marshal(record{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Nodes:   nodes,
		Tree:    snap,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyCurrent))
		switch {
		case err == nil:
			prev, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read current snapshot: %w", err)
			}
			if err := txn.Set([]byte(keyPrevious), prev); err != nil {
				return fmt.Errorf("set previous snapshot: %w", err)
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("get current snapshot: %w", err)
		}
		return txn.Set([]byte(keyCurrent), data)
	})
	metrics.RecordSnapshot(err)
	if err != nil {
		return err
	}
	s.lastSum = sum
	s.saved = true
	logging.Debug().Int("nodes", nodes).Int("bytes", len(data)).Msg("Tree snapshot saved")
	return nil
}

// Load returns the latest snapshot with secrets unsealed. A secret that
// cannot be unsealed, for example after the credential secret changed, is
// cleared and logged.
func (s *Store) Load(ctx context.Context) (*nodetree.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.read(keyCurrent)
	if err != nil {
		return nil, err
	}
	nodes := 0
	_ = s.walkSecrets(rec.Tree, func(v string) (string, error) {
		plain, err := s.unseal(v)
		if err != nil {
			logging.Warn().Err(err).Msg("Stored credential could not be decrypted, clearing it")
			return "", nil
		}
		return plain, nil
	}, &nodes)
	return rec.Tree, nil
}

// Restore loads the latest snapshot into the tree root. It reports false
// when the store is empty.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	snap, err := s.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.tree.LoadChildren(s.tree.Root(), snap); err != nil {
		return false, fmt.Errorf("load snapshot into tree: %w", err)
	}
	logging.Info().Int("connections", len(snap.Children)).Msg("Tree restored from snapshot")
	return true, nil
}

// SavedAt returns when the current snapshot was written.
func (s *Store) SavedAt() (time.Time, error) {
	rec, err := s.read(keyCurrent)
	if err != nil {
		return time.Time{}, err
	}
	return rec.SavedAt, nil
}

// Close flushes and closes the database. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) read(key string) (*record, error) {
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSnapshot
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	if rec.Tree == nil {
		return nil, ErrNoSnapshot
	}
	return &rec, nil
}

// walkSecrets rewrites every non-empty secret attribute below snap with fn
// and counts the visited nodes.
func (s *Store) walkSecrets(snap *nodetree.Snapshot, fn func(string) (string, error), count *int) error {
	if snap == nil {
		return nil
	}
	*count++
	for k, v := range snap.Attributes {
		if _, secret := s.secrets[k]; !secret || v == "" {
			continue
		}
		nv, err := fn(v)
		if err != nil {
			return fmt.Errorf("attribute %q of %q: %w", k, snap.Name, err)
		}
		snap.Attributes[k] = nv
	}
	for _, c := range snap.Children {
		if err := s.walkSecrets(c, fn, count); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seal(v string) (string, error) {
	if s.cipher == nil || strings.HasPrefix(v, sealedPrefix) {
		return v, nil
	}
	sealed, err := s.cipher.Encrypt(v)
	if err != nil {
		return "", err
	}
	return sealedPrefix + sealed, nil
}

func (s *Store) unseal(v string) (string, error) {
	if !strings.HasPrefix(v, sealedPrefix) {
		return v, nil
	}
	if s.cipher == nil {
		return "", errors.New("value is encrypted but no cipher is configured")
	}
	return s.cipher.Decrypt(strings.TrimPrefix(v, sealedPrefix))
}
