package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestScan_FindsArchivesRecursively(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "mod_a.pbo"), []byte("a"))
	writeFile(t, filepath.Join(root, "addons", "mod_b.pbo"), []byte("bb"))
	writeFile(t, filepath.Join(root, "addons", "readme.txt"), []byte("not an archive"))
	writeFile(t, filepath.Join(root, "MOD_C.PBO"), []byte("ccc"))

	archives := Scan([]string{root}, KindGameData)

	require.Len(t, archives, 3)

	// sorted by path
	assert.Equal(t, filepath.Join(root, "MOD_C.PBO"), archives[0].Path)
	assert.Equal(t, filepath.Join(root, "addons", "mod_b.pbo"), archives[1].Path)
	assert.Equal(t, filepath.Join(root, "mod_a.pbo"), archives[2].Path)

	assert.Equal(t, filepath.Join("addons", "mod_b.pbo"), archives[1].RelPath)
	assert.Equal(t, int64(2), archives[1].Size)
	assert.Equal(t, KindGameData, archives[1].Kind)
	assert.False(t, archives[1].ModTime.IsZero())
}

func TestScan_MissingRootSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "mod_a.pbo"), []byte("a"))

	archives := Scan([]string{filepath.Join(root, "does-not-exist"), root}, KindMission)

	require.Len(t, archives, 1)
	assert.Equal(t, KindMission, archives[0].Kind)
}

func TestScan_Deterministic(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"z.pbo", "a.pbo", "m.pbo"} {
		writeFile(t, filepath.Join(root, name), []byte(name))
	}

	first := Scan([]string{root}, KindGameData)
	second := Scan([]string{root}, KindGameData)

	assert.Equal(t, first, second)
}

func TestParseKind(t *testing.T) {
	kind, ok := ParseKind("game-data")
	assert.True(t, ok)
	assert.Equal(t, KindGameData, kind)

	kind, ok = ParseKind("Mission")
	assert.True(t, ok)
	assert.Equal(t, KindMission, kind)

	_, ok = ParseKind("other")
	assert.False(t, ok)
}

func TestKindCacheSubdir(t *testing.T) {
	assert.Equal(t, "gamedata", KindGameData.CacheSubdir())
	assert.Equal(t, "missions", KindMission.CacheSubdir())
}
