// Package memory implements an in-memory blob Store. It backs the report
// archiver in tests, where archived trace reports and recall plans must be
// written and listed without touching the filesystem.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"tracecore/internal/blob/core"
)

type archivedBlob struct {
	info    core.Info
	payload []byte
}

// Store holds blobs in process memory. Like every tracecore blob backend it
// refuses to overwrite: archived artifacts are immutable once written.
type Store struct {
	mu       sync.RWMutex
	archived map[string]archivedBlob
}

// New returns an empty in-memory blob store.
func New() *Store { return &Store{archived: make(map[string]archivedBlob)} }

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores a new blob. A key that already exists is rejected so a
// re-archived report can never silently replace the original.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.archived[key]; exists {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	info := core.Info{
		Key:          key,
		Size:         int64(len(payload)),
		ContentType:  opts.ContentType,
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.archived[key] = archivedBlob{info: info, payload: payload}
	return info, nil
}

// Get returns blob metadata and a reader over a copy of its content.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	blob, ok := s.archived[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("blob %s not found", key)
	}
	payload := make([]byte, len(blob.payload))
	copy(payload, blob.payload)
	info := blob.info
	info.Metadata = cloneMetadata(info.Metadata)
	return info, io.NopCloser(bytes.NewReader(payload)), nil
}

// Head returns blob metadata without the content.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	blob, ok := s.archived[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, fmt.Errorf("blob %s not found", key)
	}
	info := blob.info
	info.Metadata = cloneMetadata(info.Metadata)
	return info, nil
}

// Delete removes the blob, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.archived[key]
	if ok {
		delete(s.archived, key)
	}
	return ok, nil
}

// List returns the blobs under prefix ordered by key, matching the
// timestamped layout the archiver uses (oldest first).
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.archived))
	for key, blob := range s.archived {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		info := blob.info
		info.Metadata = cloneMetadata(info.Metadata)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL is unsupported: there is no address outside the process.
func (s *Store) PresignURL(_ context.Context, _ string, _ core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
