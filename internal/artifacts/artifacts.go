// Package artifacts is an append-only directory store for generated pipeline
// documents.
//
// Files are named {name}_{20060102_150405}.json in UTC. A file is never
// overwritten: a second save within the same second gets a -N suffix.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/christy136/AutoFlowAI/internal/generator"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

const (
	fallbackName = "GeneratedPipeline"
	stampLayout  = "20060102_150405"
	maxSuffix    = 1000
)

// Store writes artifacts into a single directory.
type Store struct {
	dir   string
	now   func() time.Time
	write func(*os.File, []byte) (int, error)
}

// NewStore creates a store rooted at dir. If dir is empty, "output" is used.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "output"
	}
	return &Store{
		dir:   dir,
		now:   func() time.Time { return time.Now().UTC() },
		write: (*os.File).Write,
	}
}

func (s *Store) Dir() string { return s.dir }

// Entry describes one stored artifact.
type Entry struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Save writes the artifact as indented JSON and returns its path.
func (s *Store) Save(a *models.PipelineArtifact) (string, error) {
	if a == nil {
		return "", errors.New("artifact is nil")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	base := generator.Sanitize(a.Name, fallbackName) + "_" + s.now().UTC().Format(stampLayout)
	for i := 0; i < maxSuffix; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		path := filepath.Join(s.dir, name+".json")

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", fmt.Errorf("create artifact file: %w", err)
		}
		if _, err := s.write(f, data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write artifact %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("close artifact %s: %w", path, err)
		}

		log.Debug().Str("path", path).Str("pipeline", a.Name).Msg("Saved pipeline artifact")
		return path, nil
	}
	return "", fmt.Errorf("no free artifact file name for %s", base)
}

// Load reads an artifact document from path.
func Load(path string) (*models.PipelineArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a models.PipelineArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	return &a, nil
}

// List returns stored artifacts, newest first.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	out := []Entry{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Path:    filepath.Join(s.dir, e.Name()),
			Name:    strings.TrimSuffix(e.Name(), ".json"),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Name > out[j].Name
		}
		return out[i].ModTime.After(out[j].ModTime)
	})
	return out, nil
}
