// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory persists conversation artifacts with BadgerDB.
//
// The sink stores thoughts, dialog turns and tool calls keyed by thread
// ID plus a per-thread sequence number, so reading a thread back returns
// entries in exactly the order the orchestrator wrote them. Writes are
// synchronous; ordering within a thread comes from the orchestrator
// calling sequentially, not from sleeps or background flushing.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianSim/pkg/validation"
)

// Entry kinds stored by the sink.
const (
	KindThought = "thought"
	KindDialog  = "dialog"
	KindTool    = "tool"
)

// Entry is one persisted conversation artifact.
type Entry struct {
	// Kind is one of KindThought, KindDialog, KindTool.
	Kind string `json:"kind"`

	// Role is set for dialog entries ("Human" or "AI").
	Role string `json:"role,omitempty"`

	// Name and Args are set for tool entries.
	Name string `json:"name,omitempty"`
	Args string `json:"args,omitempty"`

	// Text is the thought, dialog content, or tool output.
	Text string `json:"text"`

	// CreatedAt is the wall-clock write time in Unix milliseconds.
	CreatedAt int64 `json:"created_at"`
}

// Config holds configuration for the memory sink's BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable synchronous writes.
func DefaultConfig() Config {
	return Config{SyncWrites: true}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Sink is a BadgerDB-backed MemorySink.
//
// Thread Safety: Safe for concurrent use across sessions. Writes under
// the same thread ID preserve the caller's order through the per-thread
// sequence counter; the orchestrator writes sequentially within a
// session, so no cross-session locking is needed.
type Sink struct {
	db  *badger.DB
	seq sync.Map // threadID -> *atomic.Uint64
}

// Open creates and opens the sink with the given configuration.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory when
//	InMemory is set. Creates the directory if it doesn't exist.
//
// Outputs:
//   - *Sink: The opened sink. Caller must call Close when done.
//   - error: Non-nil when the path is missing or the database cannot be
//     opened.
func Open(cfg Config) (*Sink, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent memory sink")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create memory sink directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open memory sink database: %w", err)
	}
	return &Sink{db: db}, nil
}

// Close releases the underlying database.
func (s *Sink) Close() error {
	return s.db.Close()
}

// InsertThought persists one user-agent rationale.
func (s *Sink) InsertThought(threadID, text string) error {
	return s.insert(threadID, Entry{Kind: KindThought, Text: text})
}

// InsertDialog persists one dialog turn under its speaker role.
func (s *Sink) InsertDialog(threadID, role, text string) error {
	return s.insert(threadID, Entry{Kind: KindDialog, Role: role, Text: text})
}

// InsertTool persists one reconstructed tool call.
func (s *Sink) InsertTool(threadID, name, argsJSON, output string) error {
	return s.insert(threadID, Entry{Kind: KindTool, Name: name, Args: argsJSON, Text: output})
}

// ReadThread returns every entry written under a thread ID, in write
// order. Returns an empty slice for unknown threads.
func (s *Sink) ReadThread(threadID string) ([]Entry, error) {
	if err := validation.ValidateThreadID(threadID); err != nil {
		return nil, fmt.Errorf("memory sink read rejected: %w", err)
	}

	prefix := []byte(fmt.Sprintf("dialog/%s/", threadID))
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 64})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("decode entry %s: %w", it.Item().Key(), err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// insert writes one entry under the thread's next sequence number.
func (s *Sink) insert(threadID string, entry Entry) error {
	if err := validation.ValidateThreadID(threadID); err != nil {
		return fmt.Errorf("memory sink write rejected: %w", err)
	}

	counter, _ := s.seq.LoadOrStore(threadID, &atomic.Uint64{})
	seq := counter.(*atomic.Uint64).Add(1)

	entry.CreatedAt = time.Now().UnixMilli()
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode memory entry: %w", err)
	}

	// Fixed-width sequence keeps lexicographic key order equal to write
	// order within a thread.
	key := fmt.Sprintf("dialog/%s/%012d", threadID, seq)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("write memory entry %s: %w", key, err)
	}
	return nil
}
