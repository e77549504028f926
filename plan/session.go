// Package plan implements the Plan Session Store: an immutable frozen
// snapshot paired with a mutable workspace, an append-only execution log,
// and a drift score measuring how far the workspace has diverged from its
// frozen baseline.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Metadata is the persisted record for one plan session, written to
// plan_metadata.json at the session root.
type Metadata struct {
	ID        string     `json:"id"`
	Task      string     `json:"task"`
	CreatedAt time.Time  `json:"created_at"`
	FrozenAt  *time.Time `json:"frozen_at,omitempty"`
}

// Event is one append-only entry in execution_log.jsonl.
type Event struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Payload any       `json:"payload,omitempty"`
}

// Session is one on-disk plan directory:
//
//	plan_<id>/
//	  plan_metadata.json
//	  workspace/        mutable, owned by the executing agent
//	  frozen/           immutable snapshot, populated by Finalize
//	  execution_log.jsonl
//	  plan_diff.json    written by Diff
type Session struct {
	Root     string
	Metadata Metadata
}

func dirName(id string) string { return "plan_" + id }

// Create allocates a new session under baseDir and returns it. The
// workspace directory is created empty; callers populate it directly on
// disk before calling Finalize.
func Create(baseDir, id, task string, now time.Time) (*Session, error) {
	root := filepath.Join(baseDir, dirName(id))
	if err := os.MkdirAll(filepath.Join(root, "workspace"), 0o755); err != nil {
		return nil, fmt.Errorf("plan: creating workspace: %w", err)
	}

	s := &Session{
		Root: root,
		Metadata: Metadata{
			ID:        id,
			Task:      task,
			CreatedAt: now,
		},
	}
	if err := s.writeMetadata(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads an existing session from root.
func Open(root string) (*Session, error) {
	b, err := os.ReadFile(filepath.Join(root, "plan_metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("plan: reading metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(b, &md); err != nil {
		return nil, fmt.Errorf("plan: decoding metadata: %w", err)
	}
	return &Session{Root: root, Metadata: md}, nil
}

// Latest returns the session under baseDir whose directory name sorts last
// lexicographically, or nil if none exist. Creation time is not consulted.
func Latest(baseDir string) (*Session, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plan: listing %q: %w", baseDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	return Open(filepath.Join(baseDir, names[len(names)-1]))
}

// WorkspaceDir returns the mutable directory the executing agent writes
// into.
func (s *Session) WorkspaceDir() string { return filepath.Join(s.Root, "workspace") }

// FrozenDir returns the immutable snapshot directory, valid only after
// Finalize.
func (s *Session) FrozenDir() string { return filepath.Join(s.Root, "frozen") }

// Finalize copies the current workspace into frozen/, rejecting a second
// call: a session is frozen exactly once.
func (s *Session) Finalize(now time.Time) error {
	if s.Metadata.FrozenAt != nil {
		return fmt.Errorf("plan: session %q is already frozen", s.Metadata.ID)
	}
	if err := copyTree(s.WorkspaceDir(), s.FrozenDir()); err != nil {
		return fmt.Errorf("plan: freezing workspace: %w", err)
	}
	s.Metadata.FrozenAt = &now
	return s.writeMetadata()
}

// LogEvent appends one line to execution_log.jsonl.
func (s *Session) LogEvent(kind string, payload any, at time.Time) error {
	f, err := os.OpenFile(filepath.Join(s.Root, "execution_log.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("plan: opening execution log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	return enc.Encode(Event{At: at, Kind: kind, Payload: payload})
}

func (s *Session) writeMetadata() error {
	b, err := json.MarshalIndent(s.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("plan: encoding metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Root, "plan_metadata.json"), b, 0o644); err != nil {
		return fmt.Errorf("plan: writing metadata: %w", err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, b, info.Mode())
	})
}
