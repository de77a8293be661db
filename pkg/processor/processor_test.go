package processor

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/pbo"

	"github.com/arma3-tools/pbocache/pkg/extset"
)

func packArchive(t *testing.T, dir string, name string, files map[string][]byte) string {
	t.Helper()

	inputs := make([]pbo.Input, 0, len(files))
	for entryPath, data := range files {
		entryPath, data := entryPath, data
		inputs = append(inputs, pbo.Input{
			Path: entryPath,
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		})
	}

	archivePath := filepath.Join(dir, name)
	_, err := pbo.PackFile(context.Background(), archivePath, inputs, pbo.PackOptions{})
	require.NoError(t, err)
	return archivePath
}

func readOutput(t *testing.T, targetDir string, relPath string) []byte {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(targetDir, filepath.FromSlash(relPath)))
	require.NoError(t, err)
	return data
}

func TestParseBinaryConfigMode(t *testing.T) {
	mode, ok := ParseBinaryConfigMode("")
	assert.True(t, ok)
	assert.Equal(t, ModeText, mode)

	mode, ok = ParseBinaryConfigMode("Binary")
	assert.True(t, ok)
	assert.Equal(t, ModeBinary, mode)

	mode, ok = ParseBinaryConfigMode("both")
	assert.True(t, ok)
	assert.Equal(t, ModeBoth, mode)

	_, ok = ParseBinaryConfigMode("all")
	assert.False(t, ok)
}

func TestExtract_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	archive := packArchive(t, dir, "mod_a.pbo", map[string][]byte{
		"script.sqf":        []byte("hint \"hello\";"),
		"ui\\dialog.hpp":    []byte("class Dialog {};"),
		"textures\\bark.paa": {0x01, 0x02},
	})

	target := t.TempDir()
	outcome := New(ModeText).Extract(context.Background(), archive, target, extset.New("sqf", "hpp"))

	require.NoError(t, outcome.Err)
	assert.Empty(t, outcome.Warnings)
	assert.Equal(t, []string{"script.sqf", "ui/dialog.hpp"}, outcome.Outputs)

	assert.Equal(t, []byte("hint \"hello\";"), readOutput(t, target, "script.sqf"))
	assert.Equal(t, []byte("class Dialog {};"), readOutput(t, target, "ui/dialog.hpp"))
}

func TestExtract_EmptyFilterTakesEverything(t *testing.T) {
	dir := t.TempDir()
	archive := packArchive(t, dir, "mod_a.pbo", map[string][]byte{
		"script.sqf": []byte("x"),
		"bark.paa":   {0x01},
	})

	target := t.TempDir()
	outcome := New(ModeText).Extract(context.Background(), archive, target, extset.New())

	require.NoError(t, outcome.Err)
	assert.Equal(t, []string{"bark.paa", "script.sqf"}, outcome.Outputs)
}

func TestExtract_ConfigAliasing_TextualRequest(t *testing.T) {
	dir := t.TempDir()
	archive := packArchive(t, dir, "mod_a.pbo", map[string][]byte{
		"config.bin": []byte("class CfgPatches {};"),
		"other.bin":  {0xde, 0xad},
		"script.sqf": []byte("true"),
	})

	// requesting cpp pulls config.bin in and renames it; other.bin is
	// dropped because bin itself was never requested
	target := t.TempDir()
	outcome := New(ModeText).Extract(context.Background(), archive, target, extset.New("cpp", "sqf"))

	require.NoError(t, outcome.Err)
	assert.Equal(t, []string{"config.cpp", "script.sqf"}, outcome.Outputs)
	assert.Equal(t, []byte("class CfgPatches {};"), readOutput(t, target, "config.cpp"))

	_, err := os.Stat(filepath.Join(target, "config.bin"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(target, "other.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtract_ConfigAliasing_NestedDirectory(t *testing.T) {
	dir := t.TempDir()
	archive := packArchive(t, dir, "mod_a.pbo", map[string][]byte{
		"addons\\core\\config.bin": []byte("class X {};"),
	})

	target := t.TempDir()
	outcome := New(ModeText).Extract(context.Background(), archive, target, extset.New("cpp"))

	require.NoError(t, outcome.Err)
	assert.Equal(t, []string{"addons/core/config.cpp"}, outcome.Outputs)
}

func TestExtract_RapifiedConfigPlaceholder(t *testing.T) {
	rapified := append([]byte{0x00, 'r', 'a', 'P'}, 0x00, 0x01, 0x02)

	dir := t.TempDir()
	archive := packArchive(t, dir, "mod_a.pbo", map[string][]byte{
		"config.bin": rapified,
	})

	target := t.TempDir()
	outcome := New(ModeText).Extract(context.Background(), archive, target, extset.New("cpp"))

	require.NoError(t, outcome.Err)
	assert.Equal(t, []string{"config.cpp"}, outcome.Outputs)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "no decoder")

	data := readOutput(t, target, "config.cpp")
	assert.Contains(t, string(data), "Binary config detected")
}

func TestExtract_ModeBinaryKeepsConfigBin(t *testing.T) {
	dir := t.TempDir()
	archive := packArchive(t, dir, "mod_a.pbo", map[string][]byte{
		"config.bin": []byte("class X {};"),
	})

	target := t.TempDir()
	outcome := New(ModeBinary).Extract(context.Background(), archive, target, extset.New("cpp", "bin"))

	require.NoError(t, outcome.Err)
	assert.Equal(t, []string{"config.bin"}, outcome.Outputs)
}

func TestExtract_ModeBothEmitsBothForms(t *testing.T) {
	dir := t.TempDir()
	archive := packArchive(t, dir, "mod_a.pbo", map[string][]byte{
		"config.bin": []byte("class X {};"),
	})

	target := t.TempDir()
	outcome := New(ModeBoth).Extract(context.Background(), archive, target, extset.New("cpp", "bin"))

	require.NoError(t, outcome.Err)
	assert.Equal(t, []string{"config.bin", "config.cpp"}, outcome.Outputs)
}

func TestExtract_ExplicitBinKeepsOrdinaryBinEntries(t *testing.T) {
	dir := t.TempDir()
	archive := packArchive(t, dir, "mod_a.pbo", map[string][]byte{
		"other.bin": {0xde, 0xad},
	})

	target := t.TempDir()
	outcome := New(ModeText).Extract(context.Background(), archive, target, extset.New("bin"))

	require.NoError(t, outcome.Err)
	assert.Equal(t, []string{"other.bin"}, outcome.Outputs)
}

func TestExtract_MissingArchiveFails(t *testing.T) {
	target := t.TempDir()
	outcome := New(ModeText).Extract(context.Background(), filepath.Join(t.TempDir(), "missing.pbo"), target, extset.New("sqf"))

	assert.Error(t, outcome.Err)
	assert.Empty(t, outcome.Outputs)
}

func TestExtract_CorruptArchiveFails(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "broken.pbo")
	require.NoError(t, os.WriteFile(corrupt, []byte("this is not an archive"), 0o644))

	outcome := New(ModeText).Extract(context.Background(), corrupt, t.TempDir(), extset.New("sqf"))
	assert.Error(t, outcome.Err)
}

func TestExtract_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	archive := packArchive(t, dir, "mod_a.pbo", map[string][]byte{
		"script.sqf": []byte("x"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	outcome := New(ModeText).Extract(ctx, archive, t.TempDir(), extset.New("sqf"))
	assert.ErrorIs(t, outcome.Err, context.DeadlineExceeded)
}

func TestNormalizeEntryPath(t *testing.T) {
	assert.Equal(t, "ui/dialog.hpp", normalizeEntryPath(`ui\dialog.hpp`))
	assert.Equal(t, "a/b.sqf", normalizeEntryPath(`a\\b.sqf`))
	assert.Equal(t, "etc/passwd", normalizeEntryPath(`..\..\etc\passwd`))
	assert.Equal(t, "", normalizeEntryPath(""))
	assert.Equal(t, "", normalizeEntryPath(`\`))
}
