// Package index owns the searchable corpus and its inverted term structure.
// Records are stored by id; every mutation keeps the term → posting map in
// step with the records' current text so no stale ids remain. No scoring
// logic lives here.
package index

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/medsearch/pkg/errors"
)

// Stats summarises the current index contents.
type Stats struct {
	DocumentCount  int              `json:"document_count"`
	TermCount      int              `json:"term_count"`
	CategoryCounts map[Category]int `json:"category_counts"`
	ApproxBytes    int64            `json:"approx_bytes"`
	LastIndexed    time.Time        `json:"last_indexed"`
}

// Observer is notified after every mutation with the operation name and the
// resulting stats. pkg/metrics.Metrics satisfies it via an adapter in cmd.
type Observer func(op string, stats Stats)

// Option configures an Index.
type Option func(*Index)

// WithTokenizer overrides the tokenisation options.
func WithTokenizer(opts tokenizer.Options) Option {
	return func(idx *Index) { idx.tokOpts = opts }
}

// WithClock overrides the time source used for LastIndexed.
func WithClock(now func() time.Time) Option {
	return func(idx *Index) { idx.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// WithObserver registers a mutation observer.
func WithObserver(obs Observer) Option {
	return func(idx *Index) { idx.observer = obs }
}

// Index is the in-memory corpus plus its inverted term index. It is safe for
// concurrent use: reads share a lock, mutations are serialised.
type Index struct {
	mu         sync.RWMutex
	records    map[string]*Record
	terms      map[string]map[string]*Posting
	docTerms   map[string][]string
	stats      Stats
	generation uint64

	tokOpts  tokenizer.Options
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
}

// New creates an empty Index.
func New(opts ...Option) *Index {
	idx := &Index{
		records:  make(map[string]*Record),
		terms:    make(map[string]map[string]*Posting),
		docTerms: make(map[string][]string),
		tokOpts:  tokenizer.DefaultOptions(),
		now:      time.Now,
		logger:   slog.Default().With("component", "index"),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.stats = idx.computeStats()
	return idx
}

// Add inserts rec, fully replacing any record with the same id. An invalid
// record is rejected and the index is left unchanged.
func (idx *Index) Add(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	idx.mu.Lock()
	idx.addLocked(rec.clone())
	stats := idx.commitLocked()
	idx.mu.Unlock()

	idx.logger.Debug("record indexed", "id", rec.ID, "terms", stats.TermCount)
	idx.notify("add", stats)
	return nil
}

// AddMany inserts every record, in order, as one mutation. The batch is
// validated first; one invalid record rejects all of them.
func (idx *Index) AddMany(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	for i := range recs {
		if err := recs[i].Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	idx.mu.Lock()
	for _, rec := range recs {
		idx.addLocked(rec.clone())
	}
	stats := idx.commitLocked()
	idx.mu.Unlock()

	idx.logger.Info("records indexed", "count", len(recs), "documents", stats.DocumentCount, "terms", stats.TermCount)
	idx.notify("add_many", stats)
	return nil
}

// Remove deletes the record and every term reference it contributed.
// It reports whether a record was removed.
func (idx *Index) Remove(id string) bool {
	idx.mu.Lock()
	removed := idx.removeLocked(id)
	var stats Stats
	if removed {
		stats = idx.commitLocked()
	}
	idx.mu.Unlock()

	if removed {
		idx.logger.Debug("record removed", "id", id)
		idx.notify("remove", stats)
	}
	return removed
}

// Update replaces the record with the same id by removing it and adding rec,
// re-tokenizing all of its text. An invalid record is rejected.
func (idx *Index) Update(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	idx.mu.Lock()
	idx.removeLocked(rec.ID)
	idx.addLocked(rec.clone())
	stats := idx.commitLocked()
	idx.mu.Unlock()

	idx.notify("update", stats)
	return nil
}

// UpdateMetadata replaces the stored record without touching the term
// structure when its title, description, content and keywords are unchanged;
// otherwise it behaves like Update. It fails with apperrors.ErrRecordNotFound
// when the id is unknown.
func (idx *Index) UpdateMetadata(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	idx.mu.Lock()
	existing, ok := idx.records[rec.ID]
	if !ok {
		idx.mu.Unlock()
		return apperrors.NotFound("record %q not found", rec.ID)
	}
	op := "update_metadata"
	if existing.sameText(&rec) {
		cp := rec.clone()
		idx.records[rec.ID] = &cp
	} else {
		op = "update"
		idx.removeLocked(rec.ID)
		idx.addLocked(rec.clone())
	}
	stats := idx.commitLocked()
	idx.mu.Unlock()

	idx.notify(op, stats)
	return nil
}

// Rebuild discards the term structure and re-tokenizes every held record.
func (idx *Index) Rebuild() {
	idx.mu.Lock()
	idx.rebuildLocked()
	stats := idx.commitLocked()
	idx.mu.Unlock()

	idx.logger.Info("index rebuilt", "documents", stats.DocumentCount, "terms", stats.TermCount)
	idx.notify("rebuild", stats)
}

// BuildFromSources replaces the corpus with the given categorized record
// lists. Each record takes its category from its source key. Categories are
// applied in sorted order so a duplicated id resolves deterministically. An
// invalid category key or record id rejects the build and leaves the index
// unchanged.
func (idx *Index) BuildFromSources(sources map[Category][]Record) error {
	keys := slices.Sorted(maps.Keys(sources))

	staged := make(map[string]*Record)
	for _, cat := range keys {
		for i, rec := range sources[cat] {
			cp := rec.clone()
			cp.Category = cat
			if err := cp.Validate(); err != nil {
				return fmt.Errorf("%s record %d: %w", cat, i, err)
			}
			staged[cp.ID] = &cp
		}
	}

	idx.mu.Lock()
	idx.records = staged
	idx.rebuildLocked()
	stats := idx.commitLocked()
	idx.mu.Unlock()

	idx.logger.Info("index built from sources", "sources", len(keys), "documents", stats.DocumentCount)
	idx.notify("build", stats)
	return nil
}

// GetAll returns a copy of every record ordered by id.
func (idx *Index) GetAll() []Record {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.collectLocked(func(*Record) bool { return true })
}

// GetByCategory returns the records in category c ordered by id.
func (idx *Index) GetByCategory(c Category) []Record {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.collectLocked(func(r *Record) bool { return r.Category == c })
}

// GetByID returns a copy of the record with the given id.
func (idx *Index) GetByID(id string) (Record, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// AllTerms returns every distinct indexed term in lexical order.
func (idx *Index) AllTerms() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return slices.Sorted(maps.Keys(idx.terms))
}

// Lookup returns the postings for one normalised term ordered by record id.
func (idx *Index) Lookup(term string) PostingList {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	docs, exists := idx.terms[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		p := *posting
		p.Positions = slices.Clone(posting.Positions)
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// Snapshot returns every term with its postings, both sorted.
func (idx *Index) Snapshot() []TermEntry {
	terms := idx.AllTerms()
	entries := make([]TermEntry, 0, len(terms))
	for _, term := range terms {
		entries = append(entries, TermEntry{Term: term, Postings: idx.Lookup(term)})
	}
	return entries
}

// Stats returns the statistics computed after the last mutation.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s := idx.stats
	s.CategoryCounts = maps.Clone(idx.stats.CategoryCounts)
	return s
}

// Generation increases on every mutation; equal generations imply equal
// contents.
func (idx *Index) Generation() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.generation
}

// Len returns the number of records.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

func (idx *Index) addLocked(rec Record) {
	if _, exists := idx.records[rec.ID]; exists {
		idx.removeLocked(rec.ID)
	}
	idx.records[rec.ID] = &rec
	idx.indexLocked(&rec)
}

func (idx *Index) indexLocked(rec *Record) {
	tokens := tokenizer.TokenizeWith(rec.indexText(), idx.tokOpts)
	termData := make(map[string]*Posting)
	order := make([]string, 0)
	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &Posting{
				DocID:     rec.ID,
				Positions: make([]int, 0, 4),
			}
			termData[token.Term] = p
			order = append(order, token.Term)
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Position)
	}
	for term, posting := range termData {
		docs, exists := idx.terms[term]
		if !exists {
			docs = make(map[string]*Posting)
			idx.terms[term] = docs
		}
		docs[rec.ID] = posting
	}
	idx.docTerms[rec.ID] = order
}

func (idx *Index) removeLocked(id string) bool {
	if _, exists := idx.records[id]; !exists {
		return false
	}
	for _, term := range idx.docTerms[id] {
		docs := idx.terms[term]
		delete(docs, id)
		if len(docs) == 0 {
			delete(idx.terms, term)
		}
	}
	delete(idx.docTerms, id)
	delete(idx.records, id)
	return true
}

func (idx *Index) rebuildLocked() {
	idx.terms = make(map[string]map[string]*Posting)
	idx.docTerms = make(map[string][]string, len(idx.records))
	for _, rec := range idx.records {
		idx.indexLocked(rec)
	}
}

func (idx *Index) collectLocked(keep func(*Record) bool) []Record {
	ids := slices.Sorted(maps.Keys(idx.records))
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec := idx.records[id]
		if keep(rec) {
			out = append(out, rec.clone())
		}
	}
	return out
}

// commitLocked bumps the generation and recomputes stats.
func (idx *Index) commitLocked() Stats {
	idx.generation++
	idx.stats = idx.computeStats()
	s := idx.stats
	s.CategoryCounts = maps.Clone(idx.stats.CategoryCounts)
	return s
}

func (idx *Index) computeStats() Stats {
	s := Stats{
		DocumentCount:  len(idx.records),
		TermCount:      len(idx.terms),
		CategoryCounts: make(map[Category]int),
		LastIndexed:    idx.now(),
	}
	for _, rec := range idx.records {
		s.CategoryCounts[rec.Category]++
		s.ApproxBytes += rec.approxSize()
	}
	for term, docs := range idx.terms {
		for id, posting := range docs {
			s.ApproxBytes += int64(len(term) + len(id) + len(posting.Positions)*8 + 64)
		}
	}
	return s
}

func (idx *Index) notify(op string, stats Stats) {
	if idx.observer != nil {
		idx.observer(op, stats)
	}
}
