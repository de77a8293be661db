package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/arma3-tools/pbocache/pkg/logger"
)

/* Structs */

// Kind classifies what the archives under a set of roots contain. It
// only selects which default extension filter callers apply later; the
// scanner itself does not inspect archive contents.
type Kind string

const (
	KindGameData Kind = "game-data"
	KindMission  Kind = "mission"
)

// Archive describes one discovered archive file.
type Archive struct {
	Path    string
	RelPath string
	Size    int64
	ModTime time.Time
	Kind    Kind
}

/* Vars */

var (
	log = logger.GetLogger("scanner")
)

/* Public */

func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(value)) {
	case KindGameData:
		return KindGameData, true
	case KindMission:
		return KindMission, true
	default:
		return "", false
	}
}

// CacheSubdir returns the cache directory name archives of this kind
// are extracted under.
func (k Kind) CacheSubdir() string {
	if k == KindMission {
		return "missions"
	}
	return "gamedata"
}

// Scan recurses through the given roots and returns every .pbo file
// found, sorted by path so repeated scans of an unchanged tree compare
// identically. Unreadable directories are logged and skipped.
func Scan(roots []string, kind Kind) []Archive {
	var (
		archives []Archive
		mu       sync.Mutex
	)

	conf := fastwalk.Config{
		Follow: true,
	}

	for _, root := range roots {
		root := filepath.Clean(root)

		if _, err := os.Stat(root); err != nil {
			log.WithError(err).Warnf("Skipping scan root: %q", root)
			continue
		}

		err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.WithError(err).Warnf("Skipping unreadable path: %q", path)
				return nil
			}

			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pbo") {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				log.WithError(err).Warnf("Failed to stat archive: %q", path)
				return nil
			}

			relPath, err := filepath.Rel(root, path)
			if err != nil {
				relPath = filepath.Base(path)
			}

			mu.Lock()
			archives = append(archives, Archive{
				Path:    path,
				RelPath: relPath,
				Size:    info.Size(),
				ModTime: info.ModTime(),
				Kind:    kind,
			})
			mu.Unlock()
			return nil
		})
		if err != nil {
			log.WithError(err).Errorf("Failed walking scan root: %q", root)
		}
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Path < archives[j].Path
	})

	log.Debugf("Found %d archives across %d roots", len(archives), len(roots))
	return archives
}
