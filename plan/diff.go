package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
)

// Diff is the task-level comparison between frozen/plan.json and
// workspace/plan.json: which task ids were added, removed, or changed
// since freezing, plus a divergence score in [0, 1].
type Diff struct {
	TasksAdded    []string `json:"tasks_added"`
	TasksRemoved  []string `json:"tasks_removed"`
	TasksModified []string `json:"tasks_modified"`
	Divergence    float64  `json:"divergence_score"`
}

// planFile is the on-disk shape of plan.json: a task list, each task an
// arbitrary object identified by its "id" field.
type planFile struct {
	Tasks []map[string]any `json:"tasks"`
}

// Diff compares the session's frozen plan.json against its current
// workspace plan.json and writes the result to plan_diff.json. Finalize
// must have been called first.
func (s *Session) Diff() (Diff, error) {
	if s.Metadata.FrozenAt == nil {
		return Diff{}, fmt.Errorf("plan: session %q has not been finalized, nothing to diff against", s.Metadata.ID)
	}

	frozen, err := readTasks(s.FrozenDir())
	if err != nil {
		return Diff{}, fmt.Errorf("plan: reading frozen plan.json: %w", err)
	}
	workspace, err := readTasks(s.WorkspaceDir())
	if err != nil {
		return Diff{}, fmt.Errorf("plan: reading workspace plan.json: %w", err)
	}

	var added, removed, modified []string
	for id, task := range workspace {
		frozenTask, ok := frozen[id]
		if !ok {
			added = append(added, id)
			continue
		}
		if !reflect.DeepEqual(frozenTask, task) {
			modified = append(modified, id)
		}
	}
	for id := range frozen {
		if _, ok := workspace[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(modified)

	divergence := 0.0
	if len(frozen) > 0 {
		divergence = float64(len(added)+len(removed)+len(modified)) / float64(len(frozen))
	} else if len(added)+len(modified) > 0 {
		divergence = 1
	}
	if divergence > 1 {
		divergence = 1
	}

	d := Diff{
		TasksAdded:    added,
		TasksRemoved:  removed,
		TasksModified: modified,
		Divergence:    divergence,
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return Diff{}, fmt.Errorf("plan: encoding diff: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Root, "plan_diff.json"), b, 0o644); err != nil {
		return Diff{}, fmt.Errorf("plan: writing plan_diff.json: %w", err)
	}
	return d, nil
}

// readTasks loads dir/plan.json and indexes its tasks by id. A missing
// file (workspace or frozen not yet populated with a plan) reads as no
// tasks rather than an error.
func readTasks(dir string) (map[string]map[string]any, error) {
	b, err := os.ReadFile(filepath.Join(dir, "plan.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[string]any{}, nil
		}
		return nil, err
	}
	var pf planFile
	if err := json.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Join(dir, "plan.json"), err)
	}
	out := make(map[string]map[string]any, len(pf.Tasks))
	for _, task := range pf.Tasks {
		out[taskID(task)] = task
	}
	return out, nil
}

// taskID normalizes a task's "id" field to a string key: JSON numbers
// decode as float64, so an integer id like 1 and "1" compare equal.
func taskID(task map[string]any) string {
	switch v := task["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
