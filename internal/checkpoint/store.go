// Package checkpoint persists dispatch progress snapshots so interrupted
// runs can resume.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ExamMailer/internal/models"
)

// Store reads and writes checkpoint files under a single root directory.
// One JSON document per session; saves for the same session overwrite.
type Store struct {
	root string
	log  *zap.Logger
}

// New creates the root directory if needed.
func New(root string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint root: %w", err)
	}
	return &Store{root: root, log: log}, nil
}

// Path returns the checkpoint file path for a session.
func (s *Store) Path(sessionID string) string {
	return filepath.Join(s.root, "checkpoint_"+sessionID+".json")
}

// Save writes the checkpoint atomically: the document goes to a temp file
// in the same directory and is renamed into place, so a concurrent reader
// never observes a half-written file. If the rename has not happened the
// prior checkpoint stays authoritative.
func (s *Store) Save(cp models.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	target := s.Path(cp.SessionID)
	tmp, err := os.CreateTemp(s.root, "checkpoint_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load reads one checkpoint file.
func (s *Store) Load(path string) (models.Checkpoint, error) {
	var cp models.Checkpoint
	data, err := os.ReadFile(path)
	if err != nil {
		return cp, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("decode checkpoint %s: %w", filepath.Base(path), err)
	}
	return cp, nil
}

// LoadLatestResumable scans checkpoints newest-first and returns the first
// whose status is in_progress or crashed. A nil checkpoint with nil error
// means there is no resumable work.
func (s *Store) LoadLatestResumable() (*models.Checkpoint, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint root: %w", err)
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "checkpoint_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(s.root, name),
			modTime: info.ModTime().UnixNano(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})

	for _, c := range candidates {
		cp, err := s.Load(c.path)
		if err != nil {
			s.log.Warn("skipping unreadable checkpoint",
				zap.String("path", c.path),
				zap.Error(err),
			)
			continue
		}
		if cp.Resumable() {
			return &cp, nil
		}
	}
	return nil, nil
}

// Clear marks a session's checkpoint as cleared in place so it is never
// offered as resumable again. Best-effort: failures are logged, not raised.
func (s *Store) Clear(sessionID string) {
	path := s.Path(sessionID)
	cp, err := s.Load(path)
	if err != nil {
		s.log.Warn("clear checkpoint: load failed", zap.String("path", path), zap.Error(err))
		return
	}
	cp.Status = models.CheckpointCleared
	if err := s.Save(cp); err != nil {
		s.log.Warn("clear checkpoint: save failed", zap.String("path", path), zap.Error(err))
	}
}
