// Package corpus loads record files into an index. A corpus file is either
// a JSON or YAML mapping of category to record list, or an index export
// blob.
package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/medsearch/pkg/errors"
)

// Corpus is a parsed corpus file. Exactly one of Sources and Export is set.
type Corpus struct {
	Sources map[index.Category][]index.Record
	Export  string
}

// Documents returns the number of records in the categorized sources.
// Export blobs report zero until applied.
func (c *Corpus) Documents() int {
	n := 0
	for _, recs := range c.Sources {
		n += len(recs)
	}
	return n
}

// Apply replaces the contents of idx with the corpus.
func (c *Corpus) Apply(idx *index.Index) error {
	if c.Export != "" {
		return idx.Import(c.Export)
	}
	return idx.BuildFromSources(c.Sources)
}

// LoadFile reads and parses the corpus file at path.
func LoadFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data. ext selects YAML for ".yaml" and ".yml"; anything else
// is treated as JSON.
func Parse(data []byte, ext string) (*Corpus, error) {
	var sources map[index.Category][]index.Record
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &sources); err != nil {
			return nil, apperrors.Format("decoding yaml corpus: %v", err)
		}
	default:
		if index.IsExport(data) {
			if _, err := index.ParseExport(string(data)); err != nil {
				return nil, err
			}
			return &Corpus{Export: string(data)}, nil
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&sources); err != nil {
			return nil, apperrors.Format("decoding json corpus: %v", err)
		}
	}

	if len(sources) == 0 {
		return nil, apperrors.Format("corpus contains no categories")
	}
	for cat, recs := range sources {
		if !cat.Valid() {
			return nil, apperrors.Format("unknown category %q", cat)
		}
		for i, rec := range recs {
			if rec.ID == "" {
				return nil, apperrors.Format("%s record %d has an empty id", cat, i)
			}
		}
	}
	return &Corpus{Sources: sources}, nil
}
