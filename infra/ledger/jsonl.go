package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	coreledger "github.com/kilianp07/gridmarket/core/ledger"
)

// JSONLStore appends postings to a JSON lines file, one posting per line.
type JSONLStore struct {
	path string
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewJSONLStore creates the file if needed and indexes the posting IDs it
// already holds.
func NewJSONLStore(path string) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if cerr := f.Close(); cerr != nil {
		return nil, cerr
	}
	s := &JSONLStore{path: path, seen: make(map[string]struct{})}
	existing, err := s.scan(coreledger.Query{})
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		s.seen[p.ID] = struct{}{}
	}
	return s, nil
}

func (s *JSONLStore) Append(_ context.Context, postings []coreledger.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	written := make([]string, 0, len(postings))
	for _, p := range postings {
		if _, ok := s.seen[p.ID]; ok {
			continue
		}
		if err := enc.Encode(p); err != nil {
			return err
		}
		written = append(written, p.ID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, id := range written {
		s.seen[id] = struct{}{}
	}
	return nil
}

func (s *JSONLStore) Query(_ context.Context, q coreledger.Query) ([]coreledger.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan(q)
}

// scan skips lines that do not decode.
func (s *JSONLStore) scan(q coreledger.Query) ([]coreledger.Posting, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var res []coreledger.Posting
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var p coreledger.Posting
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			continue
		}
		if q.Match(p) {
			res = append(res, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *JSONLStore) Close() error { return nil }
