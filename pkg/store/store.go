package store

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/arma3-tools/pbocache/pkg/extset"
	"github.com/arma3-tools/pbocache/pkg/logger"
)

const indexVersion = 1

/* Structs */

// Record is the persisted cache state for one archive. It is replaced
// wholesale on a successful extraction; a failed extraction only flips
// the failure fields and leaves the last successful state intact.
type Record struct {
	Path          string    `json:"path"`
	Kind          string    `json:"kind"`
	Signature     string    `json:"signature"`
	Size          int64     `json:"size"`
	ModTime       time.Time `json:"mod_time"`
	Extensions    []string  `json:"extensions"`
	CacheDir      string    `json:"cache_dir"`
	Outputs       []string  `json:"outputs"`
	Failed        bool      `json:"failed"`
	FailureReason string    `json:"failure_reason,omitempty"`
	ExtractedAt   time.Time `json:"extracted_at"`
}

type index struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// Store is the in-memory resident archive index with JSON persistence.
// The reverse output-to-archive mapping is derived from the records,
// never stored, so the two cannot diverge.
type Store struct {
	path string
	log  *logrus.Entry

	mu      sync.RWMutex
	records map[string]Record
	sources map[string]string
}

/* Public */

func New(indexPath string) *Store {
	return &Store{
		path:    indexPath,
		log:     logger.GetLogger("store"),
		records: make(map[string]Record),
		sources: make(map[string]string),
	}
}

// Load reads the index from disk. A missing file yields an empty
// store; an unparseable file is logged and replaced by an empty store
// rather than aborting the run.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Debugf("No existing index at %q, starting empty", s.path)
			return nil
		}
		return errors.Wrapf(err, "read index: %q", s.path)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		s.log.WithError(err).Warnf("Failed parsing index %q, starting with a fresh one", s.path)
		s.records = make(map[string]Record)
		s.sources = make(map[string]string)
		return nil
	}

	s.records = make(map[string]Record, len(idx.Records))
	s.sources = make(map[string]string)
	for _, rec := range idx.Records {
		s.records[rec.Path] = rec
		s.indexOutputs(rec)
	}

	s.log.Debugf("Loaded %d archive records from %q", len(s.records), s.path)
	return nil
}

// Save writes the index atomically: a temporary file in the same
// directory is renamed over the previous one, so a crash mid-write
// leaves the old complete state in place.
func (s *Store) Save() error {
	s.mu.RLock()
	idx := index{Version: indexVersion, Records: make([]Record, 0, len(s.records))}
	for _, rec := range s.records {
		idx.Records = append(idx.Records, rec)
	}
	s.mu.RUnlock()

	sort.Slice(idx.Records, func(i, j int) bool {
		return idx.Records[i].Path < idx.Records[j].Path
	})

	data, err := json.MarshalIndent(&idx, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal index")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create index directory")
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.Wrapf(err, "write index: %q", tmpPath)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.Wrapf(err, "replace index: %q", s.path)
	}

	s.log.Debugf("Saved %d archive records to %q", len(idx.Records), s.path)
	return nil
}

func (s *Store) Get(archivePath string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[archivePath]
	return rec, ok
}

// Put replaces the record for an archive. Partial patches do not
// exist; callers construct the full replacement record.
func (s *Store) Put(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.records[rec.Path]; ok {
		s.dropOutputs(old)
	}

	s.records[rec.Path] = rec
	s.indexOutputs(rec)
}

// MarkFailed records an extraction failure. An existing record keeps
// its last successful outputs, signature and extensions; only the
// failure note changes. Without a prior record a failed stub is
// created so the failure reason survives a save.
func (s *Store) MarkFailed(archivePath string, kind string, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[archivePath]
	if !ok {
		rec = Record{Path: archivePath, Kind: kind}
	}
	rec.Failed = true
	rec.FailureReason = reason
	s.records[archivePath] = rec
}

func (s *Store) Remove(archivePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[archivePath]
	if !ok {
		return false
	}

	s.dropOutputs(rec)
	delete(s.records, archivePath)
	return true
}

// FindSource maps a cache-relative output path back to the archive it
// was extracted from.
func (s *Store) FindSource(outputPath string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[filepath.ToSlash(outputPath)]
	return src, ok
}

// Outputs enumerates cache-relative output paths, optionally narrowed
// to one kind and an extension set. This is the file-discovery entry
// point downstream analyzers use.
func (s *Store) Outputs(kind string, exts extset.Set) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, rec := range s.records {
		if kind != "" && rec.Kind != kind {
			continue
		}
		for _, rel := range rec.Outputs {
			if exts.Len() > 0 && !exts.Contains(pathExt(rel)) {
				continue
			}
			out = append(out, path.Join(rec.CacheDir, rel))
		}
	}

	sort.Strings(out)
	return out
}

func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})
	return records
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

/* Private */

// callers hold s.mu
func (s *Store) indexOutputs(rec Record) {
	for _, rel := range rec.Outputs {
		s.sources[path.Join(rec.CacheDir, rel)] = rec.Path
	}
}

// callers hold s.mu
func (s *Store) dropOutputs(rec Record) {
	for _, rel := range rec.Outputs {
		delete(s.sources, path.Join(rec.CacheDir, rel))
	}
}

func pathExt(rel string) string {
	ext := path.Ext(rel)
	if ext == "" {
		return ""
	}
	return ext[1:]
}
