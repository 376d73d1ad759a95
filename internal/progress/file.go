package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const DefaultPath = "progress.json"

// FileStore keeps every record in a single JSON array file. Each Append rewrites the file
// atomically: temp file in the same directory, fsync, rename.
type FileStore struct {
	path    string
	log     logrus.FieldLogger
	records []Record
	loaded  bool
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string, log logrus.FieldLogger) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FileStore{path: path, log: log.WithField("progress", path)}, nil
}

func (s *FileStore) Path() string { return s.path }

// Load reads the file. A missing or unparsable file yields an empty set.
func (s *FileStore) Load(context.Context) (Set, error) {
	s.records = s.read()
	s.loaded = true

	set := make(Set, len(s.records))
	for _, r := range s.records {
		set.Add(r.Key())
	}
	return set, nil
}

func (s *FileStore) read() []Record {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.log.WithError(err).Warn("progress file unreadable; starting fresh")
		return nil
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		s.log.WithError(err).Warn("progress file corrupt; starting fresh")
		return nil
	}
	return records
}

func (s *FileStore) Append(_ context.Context, r Record) error {
	if !s.loaded {
		s.records = s.read()
		s.loaded = true
	}
	next := append(s.records, r)
	if err := s.write(next); err != nil {
		return err
	}
	s.records = next
	return nil
}

func (s *FileStore) write(records []Record) error {
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp progress file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write progress: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close progress: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace progress file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
