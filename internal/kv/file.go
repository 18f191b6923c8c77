// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zihtlabs/zihtchat/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// File is a Store that keeps one JSON file per key under a base directory.
// Writes go through an atomic write-fsync-rename sequence, so a crash never
// leaves a partially written value behind.
type File struct {
	// BaseDir is the directory holding one file per key.
	// Default: ~/.zihtchat/state/
	BaseDir string
}

// NewFile creates a file-backed store under the user's home directory.
func NewFile() (*File, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewFileWithDir(filepath.Join(homeDir, ".zihtchat", "state"))
}

// NewFileWithDir creates a file-backed store under a custom directory.
func NewFileWithDir(baseDir string) (*File, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &File{BaseDir: baseDir}, nil
}

// Get returns the value for key, or ErrKeyNotFound.
func (f *File) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set overwrites the value for key.
func (f *File) Set(key string, value []byte) error {
	return util.AtomicWriteFile(f.filePath(key), value, 0644)
}

// Delete removes key. A missing file is not an error.
func (f *File) Delete(key string) error {
	if err := os.Remove(f.filePath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close is a no-op for the file store.
func (f *File) Close() error {
	return nil
}

// filePath returns the file path for a logical key. Path separators are
// replaced so a key can never address a file outside the base directory.
func (f *File) filePath(key string) string {
	key = strings.ReplaceAll(key, string(os.PathSeparator), "_")
	key = strings.ReplaceAll(key, "/", "_")
	return filepath.Join(f.BaseDir, fmt.Sprintf("%s.json", key))
}
