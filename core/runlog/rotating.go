package runlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingJSONLStore stores records in a JSONL file with automatic rotation.
type RotatingJSONLStore struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewRotatingJSONLStore creates a store with rotation options in megabytes
// and days.
func NewRotatingJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &RotatingJSONLStore{logger: lj, path: path}, nil
}

// Append writes the record and triggers rotation if needed.
func (s *RotatingJSONLStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.NewEncoder(s.logger).Encode(rec)
}

// Query reads the current file and every rotated backup, oldest record
// first.
func (s *RotatingJSONLStore) Query(ctx context.Context, q Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ext := filepath.Ext(s.path)
	backups, err := filepath.Glob(s.path[:len(s.path)-len(ext)] + "-*" + ext)
	if err != nil {
		return nil, err
	}
	var res []Record
	for _, name := range append(backups, s.path) {
		f, err := os.Open(name)
		if err != nil {
			continue
		}
		res, err = scan(ctx, f, q, res)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}
	byTime(res)
	return res, nil
}

// Close closes the underlying writer.
func (s *RotatingJSONLStore) Close() error { return s.logger.Close() }
