package corpus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/medsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/logger"
)

func newIndex() *index.Index {
	return index.New(index.WithLogger(logger.Discard()))
}

func TestLoadJSON(t *testing.T) {
	c, err := LoadFile(filepath.Join("testdata", "corpus.json"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Documents())

	idx := newIndex()
	require.NoError(t, c.Apply(idx))
	a1, ok := idx.GetByID("a1")
	require.True(t, ok)
	assert.Equal(t, index.CategoryConditions, a1.Category)
	assert.True(t, a1.Metadata.Verified)
	assert.Equal(t, "gastrointestinal", a1.Metadata.BodySystem)
}

func TestLoadYAML(t *testing.T) {
	c, err := LoadFile(filepath.Join("testdata", "corpus.yaml"))
	require.NoError(t, err)

	idx := newIndex()
	require.NoError(t, c.Apply(idx))
	s1, ok := idx.GetByID("s1")
	require.True(t, ok)
	assert.Equal(t, index.CategorySymptoms, s1.Category)
	assert.Equal(t, 1200.0, s1.Metadata.Popularity)
	assert.True(t, s1.Metadata.HasAgeGroup("Child"))
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), s1.LastUpdated.UTC())

	l1, ok := idx.GetByID("l1")
	require.True(t, ok)
	assert.Equal(t, index.CategoryLabTests, l1.Category)
}

func TestLoadExportBlob(t *testing.T) {
	src := newIndex()
	src.Add(index.Record{ID: "x", Title: "Heart", Category: index.CategoryAnatomy})
	blob, err := src.Export()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, c.Export)

	dst := newIndex()
	require.NoError(t, c.Apply(dst))
	assert.Equal(t, src.GetAll(), dst.GetAll())
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name, data, ext string
	}{
		{"bad json", "{", ".json"},
		{"bad yaml", "symptoms: [", ".yaml"},
		{"unknown category", `{"astrology": [{"id": "z"}]}`, ".json"},
		{"empty id", `{"symptoms": [{"title": "no id"}]}`, ".json"},
		{"empty", `{}`, ".json"},
		{"broken export", `{"version": 7, "records": []}`, ".json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.ext)
			require.Error(t, err)
			assert.True(t, apperrors.IsFormat(err))
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join("testdata", "missing.json"))
	assert.Error(t, err)
}
