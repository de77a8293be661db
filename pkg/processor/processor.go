package processor

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/woozymasta/pbo"

	"github.com/arma3-tools/pbocache/pkg/extset"
	"github.com/arma3-tools/pbocache/pkg/logger"
)

/* Const */

const (
	binaryConfigName  = "config.bin"
	textualConfigName = "config.cpp"

	binaryConfigExt  = "bin"
	textualConfigExt = "cpp"
)

// Binary config container magic. A .bin file starting with this is a
// rapified config rather than arbitrary binary data.
var rapSignature = []byte{0x00, 'r', 'a', 'P'}

/* Structs */

// BinaryConfigMode selects what happens to a config.bin entry when the
// textual extension was requested alongside the binary one.
type BinaryConfigMode string

const (
	// ModeText renames config.bin to config.cpp and drops the binary.
	ModeText BinaryConfigMode = "text"
	// ModeBinary keeps config.bin untouched.
	ModeBinary BinaryConfigMode = "binary"
	// ModeBoth emits both config.cpp and config.bin.
	ModeBoth BinaryConfigMode = "both"
)

func ParseBinaryConfigMode(value string) (BinaryConfigMode, bool) {
	switch BinaryConfigMode(strings.ToLower(value)) {
	case ModeText, "":
		return ModeText, true
	case ModeBinary:
		return ModeBinary, true
	case ModeBoth:
		return ModeBoth, true
	default:
		return "", false
	}
}

// Outcome is the per-archive extraction result. Err is set only for
// archive-level failures; entry-level problems become Warnings and the
// extraction still succeeds with the remaining entries.
type Outcome struct {
	Outputs  []string
	Warnings []string
	Err      error
}

type Processor struct {
	mode BinaryConfigMode
	log  *logrus.Entry
}

/* Public */

func New(mode BinaryConfigMode) *Processor {
	if mode == "" {
		mode = ModeText
	}

	return &Processor{
		mode: mode,
		log:  logger.GetLogger("processor"),
	}
}

// Extract unpacks the archive's entries matching the requested
// extension set into targetDir and returns the relative paths
// produced.
//
// The container filter is augmented: requesting the textual config
// extension implicitly pulls in binary config entries, because the one
// entry named exactly config.bin is interchangeable with its textual
// variant. A second pass against the original request then renames or
// drops the binary entries that were only unpacked for that reason.
func (p *Processor) Extract(ctx context.Context, archivePath string, targetDir string, requested extset.Set) Outcome {
	r, err := pbo.Open(archivePath)
	if err != nil {
		return Outcome{Err: errors.Wrapf(err, "open archive: %q", archivePath)}
	}
	defer r.Close()

	augmented := requested
	if requested.Contains(textualConfigExt) && !requested.Contains(binaryConfigExt) {
		p.log.Tracef("Requested %q, augmenting container filter with %q for: %q",
			textualConfigExt, binaryConfigExt, archivePath)
		augmented = requested.With(binaryConfigExt)
	}

	staging, err := os.MkdirTemp("", "pbocache-extract-*")
	if err != nil {
		return Outcome{Err: errors.Wrap(err, "create staging directory")}
	}
	defer os.RemoveAll(staging)

	outcome := Outcome{}

	// unpack matching entries to staging
	for _, entry := range r.Entries() {
		select {
		case <-ctx.Done():
			return Outcome{Err: errors.Wrapf(ctx.Err(), "extract archive: %q", archivePath)}
		default:
		}

		relPath := normalizeEntryPath(entry.Path)
		if relPath == "" {
			continue
		}

		if augmented.Len() > 0 && !augmented.Contains(pathExt(relPath)) {
			continue
		}

		data, err := r.ReadEntry(entry.Path)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("skipped entry %q: %v", relPath, err))
			continue
		}

		stagedPath := filepath.Join(staging, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(stagedPath), 0o755); err != nil {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("skipped entry %q: %v", relPath, err))
			continue
		}
		if err := os.WriteFile(stagedPath, data, 0o644); err != nil {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("skipped entry %q: %v", relPath, err))
			continue
		}
	}

	// second pass: apply the original (non-augmented) filter to the
	// staged output and copy survivors into the cache
	err = filepath.WalkDir(staging, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, err := filepath.Rel(staging, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		for _, out := range p.finalizeStagedFile(relPath, path, requested, &outcome) {
			targetPath := filepath.Join(targetDir, filepath.FromSlash(out.relPath))
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				outcome.Warnings = append(outcome.Warnings,
					fmt.Sprintf("skipped output %q: %v", out.relPath, err))
				continue
			}
			if err := os.WriteFile(targetPath, out.data, 0o644); err != nil {
				outcome.Warnings = append(outcome.Warnings,
					fmt.Sprintf("skipped output %q: %v", out.relPath, err))
				continue
			}

			outcome.Outputs = append(outcome.Outputs, out.relPath)
		}
		return nil
	})
	if err != nil {
		return Outcome{Err: errors.Wrapf(err, "finalize archive: %q", archivePath)}
	}

	sort.Strings(outcome.Outputs)
	return outcome
}

/* Private */

type stagedOutput struct {
	relPath string
	data    []byte
}

// finalizeStagedFile decides what a staged file becomes under the
// original requested filter: kept, renamed to the textual config
// variant, replaced by a placeholder, or dropped.
func (p *Processor) finalizeStagedFile(relPath string, stagedPath string, requested extset.Set, outcome *Outcome) []stagedOutput {
	ext := pathExt(relPath)
	base := filepath.Base(filepath.FromSlash(relPath))

	if ext != binaryConfigExt {
		if requested.Len() > 0 && !requested.Contains(ext) {
			return nil
		}
		data, err := os.ReadFile(stagedPath)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("skipped output %q: %v", relPath, err))
			return nil
		}
		return []stagedOutput{{relPath: relPath, data: data}}
	}

	isConfig := strings.EqualFold(base, binaryConfigName)
	wantsText := requested.Contains(textualConfigExt)
	wantsBinary := requested.Contains(binaryConfigExt)

	if !isConfig || !wantsText {
		// ordinary .bin entry, only kept when explicitly requested
		if !wantsBinary {
			return nil
		}
		data, err := os.ReadFile(stagedPath)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("skipped output %q: %v", relPath, err))
			return nil
		}
		return []stagedOutput{{relPath: relPath, data: data}}
	}

	data, err := os.ReadFile(stagedPath)
	if err != nil {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("skipped output %q: %v", relPath, err))
		return nil
	}

	var outputs []stagedOutput

	// the mode only matters when both forms were requested; with a
	// text-only request the rename always happens
	emitText := p.mode == ModeText || p.mode == ModeBoth || !wantsBinary
	emitBinary := wantsBinary && (p.mode == ModeBinary || p.mode == ModeBoth)

	if emitText {
		textRel := filepath.ToSlash(filepath.Join(filepath.Dir(filepath.FromSlash(relPath)), textualConfigName))

		if bytes.HasPrefix(data, rapSignature) {
			// no rapified-config decoder is available; emit a clearly
			// marked placeholder instead of silently failing
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("binary config %q has no decoder, emitted placeholder at %q", relPath, textRel))
			outputs = append(outputs, stagedOutput{relPath: textRel, data: placeholderConfig(base)})
		} else {
			outputs = append(outputs, stagedOutput{relPath: textRel, data: data})
		}
	}

	if emitBinary {
		outputs = append(outputs, stagedOutput{relPath: relPath, data: data})
	}

	return outputs
}

func placeholderConfig(originalName string) []byte {
	return []byte(fmt.Sprintf(
		"// Binary config detected (rapified, %q)\n"+
			"// No decoder to the textual form is available; this placeholder\n"+
			"// marks where the converted config would be.\n", originalName))
}

// normalizeEntryPath converts container entry paths (backslash
// separated) to clean slash form and rejects escapes from the target.
func normalizeEntryPath(entryPath string) string {
	p := strings.ReplaceAll(entryPath, "\\", "/")
	p = strings.TrimLeft(path.Clean("/"+p), "/")
	if p == "" || p == "." || strings.HasPrefix(p, "..") {
		return ""
	}
	return p
}

func pathExt(relPath string) string {
	ext := filepath.Ext(relPath)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
