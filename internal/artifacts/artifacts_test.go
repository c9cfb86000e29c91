package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christy136/AutoFlowAI/internal/generator"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestSave_NameAndLoad(t *testing.T) {
	s := newTestStore(t)
	a := generator.Generate(&models.PipelineConfig{Name: "Copy Sales"})

	path, err := s.Save(a)
	require.NoError(t, err)
	assert.Equal(t, "Copy_Sales_20250102_030405.json", filepath.Base(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, a.Name, got.Name)
	require.NotNil(t, got.Properties)
	assert.Len(t, got.Properties.Activities, 1)
}

func TestSave_SameSecondNeverOverwrites(t *testing.T) {
	s := newTestStore(t)
	a := &models.PipelineArtifact{Name: "p"}

	p1, err := s.Save(a)
	require.NoError(t, err)
	p2, err := s.Save(a)
	require.NoError(t, err)
	p3, err := s.Save(a)
	require.NoError(t, err)

	assert.Equal(t, "p_20250102_030405.json", filepath.Base(p1))
	assert.Equal(t, "p_20250102_030405-1.json", filepath.Base(p2))
	assert.Equal(t, "p_20250102_030405-2.json", filepath.Base(p3))

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestSave_UnnamedFallsBack(t *testing.T) {
	s := newTestStore(t)
	path, err := s.Save(&models.PipelineArtifact{Name: "!!"})
	require.NoError(t, err)
	assert.Equal(t, "GeneratedPipeline_20250102_030405.json", filepath.Base(path))
}

func TestList_MissingDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope"))
	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSave_FailedWriteLeavesNoFile(t *testing.T) {
	s := newTestStore(t)
	s.write = func(f *os.File, data []byte) (int, error) {
		n, _ := f.Write(data[:len(data)/2])
		return n, errors.New("disk full")
	}

	_, err := s.Save(&models.PipelineArtifact{Name: "Copy_Sales"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
