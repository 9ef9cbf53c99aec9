package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/insightloom-cli/internal/pipeline"
	"github.com/KaramelBytes/insightloom-cli/internal/utils"
)

const runExt = ".json"

// ErrNotFound is returned when no saved run matches an ID.
var ErrNotFound = errors.New("run not found")

// Store keeps analysis runs as one JSON file per run under Dir.
type Store struct {
	Dir string
}

// Entry is the listing view of a saved run.
type Entry struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
	Rows      int       `json:"rows"`
	Quality   float64   `json:"quality"`
	Findings  int       `json:"findings"`
	Actions   int       `json:"actions"`
	Fallback  bool      `json:"report_fallback"`
}

// DefaultDir returns ~/.insightloom/runs.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".insightloom", "runs"), nil
}

// Open returns a store rooted at dir, or DefaultDir when dir is empty.
func Open(dir string) (*Store, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &Store{Dir: dir}, nil
}

// Save writes the run atomically and returns its path.
func (s *Store) Save(run *pipeline.AnalysisRun) (string, error) {
	if run == nil || run.ID == "" {
		return "", errors.New("run has no id")
	}
	data, err := utils.PrettyJSON(run)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, run.ID+runExt)
	if err := utils.SafeWriteFile(path, data); err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return path, nil
}

// Load reads a run by full ID or unique ID prefix.
func (s *Store) Load(id string) (*pipeline.AnalysisRun, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	var match []string
	for _, have := range ids {
		if have == id {
			match = []string{have}
			break
		}
		if strings.HasPrefix(have, id) {
			match = append(match, have)
		}
	}
	switch len(match) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
	default:
		return nil, fmt.Errorf("ambiguous run id %q matches %d runs", id, len(match))
	}
	return s.read(match[0])
}

// List returns saved runs, newest first. Unreadable files are skipped.
func (s *Store) List() ([]Entry, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		run, err := s.read(id)
		if err != nil {
			continue
		}
		out = append(out, Entry{
			ID:        run.ID,
			Source:    run.Source,
			StartedAt: run.StartedAt,
			Rows:      run.Rows,
			Quality:   run.Quality.Score,
			Findings:  len(run.Findings),
			Actions:   len(run.Actions),
			Fallback:  run.ReportFallback,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// Delete removes a saved run by full ID.
func (s *Store) Delete(id string) error {
	err := os.Remove(filepath.Join(s.Dir, id+runExt))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

func (s *Store) ids() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), runExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), runExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) read(id string) (*pipeline.AnalysisRun, error) {
	b, err := os.ReadFile(filepath.Join(s.Dir, id+runExt))
	if err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}
	var run pipeline.AnalysisRun
	if err := json.Unmarshal(b, &run); err != nil {
		return nil, fmt.Errorf("parse run %s: %w", id, err)
	}
	return &run, nil
}
