package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/medsearch/pkg/errors"
)

// ExportVersion identifies the export envelope layout.
const ExportVersion = 1

// exportEnvelope is the persisted layout. The term structure is derived
// data and is rebuilt on import.
type exportEnvelope struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Records    []Record  `json:"records"`
}

// Export serialises the record set, ordered by id.
func (idx *Index) Export() (string, error) {
	env := exportEnvelope{
		Version:    ExportVersion,
		ExportedAt: idx.now().UTC(),
		Records:    idx.GetAll(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshaling index export: %w", err)
	}
	return string(data), nil
}

// Import replaces the corpus with the records in blob and rebuilds the term
// structure. The blob is fully parsed and validated before any state
// changes; on failure the index is untouched and the returned error
// satisfies errors.Is(err, apperrors.ErrInvalidFormat).
func (idx *Index) Import(blob string) error {
	records, err := ParseExport(blob)
	if err != nil {
		return err
	}

	staged := make(map[string]*Record, len(records))
	for _, rec := range records {
		cp := rec.clone()
		staged[cp.ID] = &cp
	}

	idx.mu.Lock()
	idx.records = staged
	idx.rebuildLocked()
	stats := idx.commitLocked()
	idx.mu.Unlock()

	idx.logger.Info("index imported", "documents", stats.DocumentCount, "terms", stats.TermCount)
	idx.notify("import", stats)
	return nil
}

// ParseExport decodes and validates an export blob without touching any
// index.
func ParseExport(blob string) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(blob)))
	dec.DisallowUnknownFields()

	var env struct {
		Version    *int      `json:"version"`
		ExportedAt time.Time `json:"exportedAt"`
		Records    *[]Record `json:"records"`
	}
	if err := dec.Decode(&env); err != nil {
		return nil, apperrors.Format("decoding index export: %v", err)
	}
	if dec.More() {
		return nil, apperrors.Format("trailing data after index export")
	}
	if env.Version == nil || env.Records == nil {
		return nil, apperrors.Format("index export missing version or records")
	}
	if *env.Version != ExportVersion {
		return nil, apperrors.Format("unsupported index export version %d", *env.Version)
	}
	for i := range *env.Records {
		if err := (*env.Records)[i].Validate(); err != nil {
			return nil, apperrors.Format("record %d: %v", i, err)
		}
	}
	return *env.Records, nil
}

// IsExport reports whether data looks like an export envelope, as opposed to
// some other JSON document.
func IsExport(data []byte) bool {
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Version != nil
}
