package manager

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/arma3-tools/pbocache/pkg/expression"
	"github.com/arma3-tools/pbocache/pkg/extset"
	"github.com/arma3-tools/pbocache/pkg/logger"
	"github.com/arma3-tools/pbocache/pkg/processor"
	"github.com/arma3-tools/pbocache/pkg/scanner"
	"github.com/arma3-tools/pbocache/pkg/store"
)

/* Structs */

type Options struct {
	CacheDir     string
	Workers      int
	Timeout      time.Duration
	BinaryConfig processor.BinaryConfigMode
	Skip         []string
	DryRun       bool
}

// Summary is the run-level result; per-archive failures are aggregated
// here instead of aborting the run.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Failures  map[string]string

	Files   int
	Bytes   uint64
	Elapsed time.Duration
}

type Manager struct {
	cacheDir string
	workers  int
	timeout  time.Duration
	dryRun   bool

	store *store.Store
	proc  *processor.Processor
	skip  []expression.CompiledExpression
	log   *logrus.Entry
}

// staleArchive is one unit of extraction work. Signature may already
// be known when the decision pass had to hash the archive.
type staleArchive struct {
	archive   scanner.Archive
	pathKey   string
	signature string
}

/* Public */

func New(opts Options, st *store.Store) (*Manager, error) {
	skip, err := expression.Compile(opts.Skip)
	if err != nil {
		return nil, errors.Wrap(err, "compile skip expressions")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Manager{
		cacheDir: opts.CacheDir,
		workers:  workers,
		timeout:  timeout,
		dryRun:   opts.DryRun,
		store:    st,
		proc:     processor.New(opts.BinaryConfig),
		skip:     skip,
		log:      logger.GetLogger("manager"),
	}, nil
}

// Process scans the roots for archives of the given kind and extracts
// every archive whose content signature or requested extension set
// differs from its stored record. Unchanged archives are cache hits.
// The store is saved once at the end of the run.
func (m *Manager) Process(ctx context.Context, roots []string, kind scanner.Kind, extensions []string, force bool) (*Summary, error) {
	start := time.Now()
	requested := extset.New(extensions...)
	summary := &Summary{Failures: make(map[string]string)}

	archives := scanner.Scan(roots, kind)
	m.log.Infof("Scanned %d roots: %d archives", len(roots), len(archives))

	stale := m.decide(archives, kind, requested, force, summary)
	m.log.Infof("Classified archives: %d stale / %d cache hits", len(stale), summary.Skipped)

	if m.dryRun {
		for _, w := range stale {
			m.log.Warnf("Dry-run enabled, would extract: %q", w.archive.Path)
		}
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	var mu sync.Mutex

	g := &errgroup.Group{}
	g.SetLimit(m.workers)

	for _, w := range stale {
		w := w
		g.Go(func() error {
			m.extractOne(ctx, w, kind, requested, summary, &mu)
			return nil
		})
	}
	_ = g.Wait()

	if err := m.store.Save(); err != nil {
		return summary, errors.Wrap(err, "save store")
	}

	summary.Elapsed = time.Since(start)
	return summary, nil
}

// Purge removes records, and their cached output directories, for
// archives that no longer exist on disk. Records are never removed
// implicitly by Process.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	removed := 0

	for _, rec := range m.store.All() {
		select {
		case <-ctx.Done():
			return removed, ctx.Err()
		default:
		}

		if _, err := os.Stat(rec.Path); err == nil || !os.IsNotExist(err) {
			continue
		}

		if m.dryRun {
			m.log.Warnf("Dry-run enabled, would purge: %q", rec.Path)
			continue
		}

		if rec.CacheDir != "" {
			cachePath := filepath.Join(m.cacheDir, filepath.FromSlash(rec.CacheDir))
			if err := os.RemoveAll(cachePath); err != nil {
				m.log.WithError(err).Warnf("Failed removing cache directory: %q", cachePath)
			}
		}

		m.store.Remove(rec.Path)
		m.log.Infof("Purged record for missing archive: %q", rec.Path)
		removed++
	}

	if removed > 0 {
		if err := m.store.Save(); err != nil {
			return removed, errors.Wrap(err, "save store")
		}
	}

	return removed, nil
}

// FindSource maps an extracted file back to its source archive. Both
// absolute paths under the cache root and cache-relative paths work.
func (m *Manager) FindSource(outputPath string) (string, bool) {
	if filepath.IsAbs(outputPath) {
		rel, err := filepath.Rel(m.cacheDir, outputPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", false
		}
		outputPath = rel
	}
	return m.store.FindSource(filepath.ToSlash(outputPath))
}

// Outputs enumerates currently cached output paths for a kind,
// optionally narrowed by extension.
func (m *Manager) Outputs(kind scanner.Kind, extensions []string) []string {
	return m.store.Outputs(string(kind), extset.New(extensions...))
}

/* Private */

// decide classifies each discovered archive as cache-hit or stale.
// Size+mtime act as a cheap pre-check; content is only hashed when the
// pre-check fails, and a matching hash refreshes the pre-check pair.
func (m *Manager) decide(archives []scanner.Archive, kind scanner.Kind, requested extset.Set, force bool, summary *Summary) []staleArchive {
	var stale []staleArchive

	for _, a := range archives {
		if m.skipByExpression(&a, kind) {
			summary.Skipped++
			continue
		}

		pathKey := normalizePath(a.Path)

		rec, ok := m.store.Get(pathKey)
		if !force && ok && !rec.Failed && requested.EqualSlice(rec.Extensions) {
			if a.Size == rec.Size && a.ModTime.Equal(rec.ModTime) {
				summary.Skipped++
				continue
			}

			sig, err := fileSignature(a.Path)
			if err != nil {
				m.log.WithError(err).Warnf("Failed hashing archive, treating as stale: %q", a.Path)
				stale = append(stale, staleArchive{archive: a, pathKey: pathKey})
				continue
			}

			if sig == rec.Signature {
				// content unchanged under a new mtime; refresh the
				// pre-check pair so the next run skips hashing
				rec.Size = a.Size
				rec.ModTime = a.ModTime
				m.store.Put(rec)
				summary.Skipped++
				continue
			}

			stale = append(stale, staleArchive{archive: a, pathKey: pathKey, signature: sig})
			continue
		}

		stale = append(stale, staleArchive{archive: a, pathKey: pathKey})
	}

	return stale
}

func (m *Manager) extractOne(ctx context.Context, w staleArchive, kind scanner.Kind, requested extset.Set, summary *Summary, mu *sync.Mutex) {
	actx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cacheDir := cacheDirFor(w.archive)
	targetDir := filepath.Join(m.cacheDir, filepath.FromSlash(cacheDir))

	outcome := m.proc.Extract(actx, w.archive.Path, targetDir, requested)

	for _, warning := range outcome.Warnings {
		m.log.Warnf("Archive %q: %s", w.archive.Path, warning)
	}

	if outcome.Err != nil {
		m.log.WithError(outcome.Err).Errorf("Failed extracting archive: %q", w.archive.Path)
		m.store.MarkFailed(w.pathKey, string(kind), outcome.Err.Error())

		mu.Lock()
		summary.Failed++
		summary.Failures[w.archive.Path] = outcome.Err.Error()
		mu.Unlock()
		return
	}

	sig := w.signature
	if sig == "" {
		var err error
		if sig, err = fileSignature(w.archive.Path); err != nil {
			m.log.WithError(err).Errorf("Failed hashing archive: %q", w.archive.Path)
			m.store.MarkFailed(w.pathKey, string(kind), err.Error())

			mu.Lock()
			summary.Failed++
			summary.Failures[w.archive.Path] = err.Error()
			mu.Unlock()
			return
		}
	}

	m.store.Put(store.Record{
		Path:        w.pathKey,
		Kind:        string(kind),
		Signature:   sig,
		Size:        w.archive.Size,
		ModTime:     w.archive.ModTime,
		Extensions:  requested.Canonical(),
		CacheDir:    cacheDir,
		Outputs:     outcome.Outputs,
		ExtractedAt: time.Now(),
	})

	var bytes uint64
	for _, rel := range outcome.Outputs {
		if info, err := os.Stat(filepath.Join(targetDir, filepath.FromSlash(rel))); err == nil {
			bytes += uint64(info.Size())
		}
	}

	mu.Lock()
	summary.Succeeded++
	summary.Files += len(outcome.Outputs)
	summary.Bytes += bytes
	mu.Unlock()

	m.log.Debugf("Extracted %d files from: %q", len(outcome.Outputs), w.archive.Path)
}

func (m *Manager) skipByExpression(a *scanner.Archive, kind scanner.Kind) bool {
	if len(m.skip) == 0 {
		return false
	}

	env := expression.Archive{
		Name:    strings.TrimSuffix(filepath.Base(a.Path), filepath.Ext(a.Path)),
		Path:    a.Path,
		Kind:    string(kind),
		Size:    a.Size,
		AgeDays: time.Since(a.ModTime).Hours() / 24,
	}

	match, reason, err := expression.CheckArchiveSingleMatchWithReason(&env, m.skip)
	if err != nil {
		m.log.WithError(err).Warnf("Failed evaluating skip expressions for: %q", a.Path)
		return false
	}
	if match {
		m.log.Debugf("Skipping archive %q, matched filter: %q", a.Path, reason)
	}
	return match
}

// cacheDirFor mirrors the archive's path relative to its scan root
// under the kind's cache subdirectory, minus the container extension.
func cacheDirFor(a scanner.Archive) string {
	rel := strings.TrimSuffix(a.RelPath, filepath.Ext(a.RelPath))
	return path.Join(a.Kind.CacheSubdir(), filepath.ToSlash(rel))
}

func fileSignature(archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", errors.Wrapf(err, "open archive: %q", archivePath)
	}
	defer f.Close()

	dgst, err := digest.FromReader(f)
	if err != nil {
		return "", errors.Wrapf(err, "hash archive: %q", archivePath)
	}
	return dgst.String(), nil
}

func normalizePath(archivePath string) string {
	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return filepath.Clean(archivePath)
	}
	return abs
}
