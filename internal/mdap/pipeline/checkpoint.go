// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

const checkpointKey = "mdap:checkpoint"

// Checkpoint is the durable snapshot Pause writes. Nothing in the
// pipeline reads it back: Resume continues the in-process run, so a
// paused run is not restored after a process restart.
type Checkpoint struct {
	State        State  `json:"state"`
	Predecessor  State  `json:"predecessor"`
	Task         string `json:"task"`
	Language     string `json:"language"`
	Requirements []string `json:"requirements"`
	Functions    []byte `json:"functions"` // json-encoded []context.FunctionRecord
	Code         map[string]string `json:"code"`
}

// Store persists and retrieves the single active Checkpoint for a
// pipeline run. Backed by badger so it survives process restarts,
// matching the durability the CLI's pause/resume contract requires.
type Store struct {
	db *badger.DB
}

// OpenStore opens (creating if absent) a badger database at dir.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open checkpoint store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes cp as the active checkpoint, replacing any prior one.
func (s *Store) Save(cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("pipeline: marshal checkpoint: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(checkpointKey), data)
	})
}

// Load reads back the active checkpoint, if any.
func (s *Store) Load() (Checkpoint, bool, error) {
	var cp Checkpoint
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(checkpointKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("pipeline: load checkpoint: %w", err)
	}
	return cp, found, nil
}

// Clear removes the active checkpoint, e.g. after a user-initiated
// cancel.
func (s *Store) Clear() error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(checkpointKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}
