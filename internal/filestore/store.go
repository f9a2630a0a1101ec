// Package filestore keeps timer state and the session log in a single YAML
// file. It is used by the command-line host, where each invocation is a
// fresh process.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"focustimer/internal/model"
)

const (
	defaultDirName  = "focustimer"
	defaultFileName = "state.yaml"
	corruptSuffix   = ".corrupt"
)

type entry struct {
	Value     string    `yaml:"value"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

type sessionEntry struct {
	ID              string            `yaml:"id"`
	SubjectID       *string           `yaml:"subject_id,omitempty"`
	Mode            model.SessionMode `yaml:"mode"`
	DurationSeconds int               `yaml:"duration_seconds"`
	CompletedAt     time.Time         `yaml:"completed_at"`
}

type fileData struct {
	Entries  map[string]entry `yaml:"entries"`
	Sessions []sessionEntry   `yaml:"sessions,omitempty"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the state file location under the user config dir.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, defaultDirName, defaultFileName), nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return "", false, err
	}
	e, ok := data.Entries[key]
	return e.Value, ok, nil
}

func (s *Store) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data.Entries[key] = entry{Value: value, UpdatedAt: time.Now().UTC()}
	return s.save(data)
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := data.Entries[key]; !ok {
		return nil
	}
	delete(data.Entries, key)
	return s.save(data)
}

func (s *Store) RecordSession(_ context.Context, record model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data.Sessions = append(data.Sessions, sessionEntry{
		ID:              record.ID,
		SubjectID:       record.SubjectID,
		Mode:            record.Mode,
		DurationSeconds: record.DurationSeconds,
		CompletedAt:     record.CompletedAt.UTC(),
	})
	return s.save(data)
}

// Sessions returns up to limit logged sessions, newest first.
func (s *Store) Sessions(limit int) ([]model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(data.Sessions, func(i, j int) bool {
		return data.Sessions[i].CompletedAt.After(data.Sessions[j].CompletedAt)
	})
	if limit > 0 && len(data.Sessions) > limit {
		data.Sessions = data.Sessions[:limit]
	}

	records := make([]model.SessionRecord, 0, len(data.Sessions))
	for _, session := range data.Sessions {
		records = append(records, model.SessionRecord{
			ID:              session.ID,
			SubjectID:       session.SubjectID,
			Mode:            session.Mode,
			DurationSeconds: session.DurationSeconds,
			CompletedAt:     session.CompletedAt,
			CreatedAt:       session.CompletedAt,
		})
	}
	return records, nil
}

// load reads the state file. An unparsable file is moved aside to
// <path>.corrupt and treated as empty so later writes succeed.
func (s *Store) load() (fileData, error) {
	data := fileData{Entries: make(map[string]entry)}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return data, nil
		}
		return data, fmt.Errorf("read state file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		aside := s.path + corruptSuffix
		log.Printf("warning: state file %s is unreadable, moving it to %s: %v", s.path, aside, err)
		if err := os.Rename(s.path, aside); err != nil {
			return fileData{}, fmt.Errorf("move aside corrupt state file: %w", err)
		}
		return fileData{Entries: make(map[string]entry)}, nil
	}
	if data.Entries == nil {
		data.Entries = make(map[string]entry)
	}
	return data, nil
}

// save writes through a temp file so a crash never leaves a torn file.
func (s *Store) save(data fileData) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	serialized, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal state yaml: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, serialized, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
