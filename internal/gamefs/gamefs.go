// Package gamefs implements the GameFs capability: archive-aware
// filesystem reads over a game's Data folder, adapted from the
// teacher's internal/archive extractor. It resolves ghosted plugin
// paths and detects the companion BSA/BA2 archive a plugin loads
//, which internal/plugin's header
// reader cannot determine from the plugin file alone.
package gamefs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver/v4"

	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/pluginref"
)

// archiveExtByGame maps a game family to the file extension its
// resource archives use; Morrowind-family games have none.
var archiveExtByGame = map[gameid.ID]string{
	gameid.Oblivion:   ".bsa",
	gameid.Nehrim:     ".bsa",
	gameid.Skyrim:     ".bsa",
	gameid.SkyrimSE:   ".bsa",
	gameid.SkyrimVR:   ".bsa",
	gameid.Enderal:    ".bsa",
	gameid.EnderalSE:  ".bsa",
	gameid.Fallout3:   ".bsa",
	gameid.FalloutNV:  ".bsa",
	gameid.Fallout4:   ".ba2",
	gameid.Fallout4VR: ".ba2",
	gameid.Starfield:  ".ba2",
}

// Fs resolves plugin file paths (following ghosting) and detects
// companion archives within a single game's Data folder.
type Fs struct {
	DataDir string
	Game    gameid.Table
}

// New creates a Fs rooted at dataDir for game.
func New(dataDir string, game gameid.Table) *Fs {
	return &Fs{DataDir: dataDir, Game: game}
}

// ResolvePath returns the on-disk path for name, trying the plain
// filename first and falling back to its ".ghost" form.
func (f *Fs) ResolvePath(name pluginref.Ref) (string, error) {
	plain := filepath.Join(f.DataDir, name.String())
	if _, err := os.Stat(plain); err == nil {
		return plain, nil
	}
	ghosted := plain + ".ghost"
	if _, err := os.Stat(ghosted); err == nil {
		return ghosted, nil
	}
	return "", fmt.Errorf("gamefs: %s: %w", name, os.ErrNotExist)
}

// LoadsArchive reports whether name has a companion resource archive:
// same base filename, the game family's archive extension, sitting
// next to it in Data. A plugin named
// "ModA.esm" with "ModA.bsa" present qualifies; Morrowind-family games,
// which have no archive extension, never do.
func (f *Fs) LoadsArchive(name pluginref.Ref) bool {
	ext, ok := archiveExtByGame[f.Game.ID]
	if !ok {
		return false
	}
	base := strings.TrimSuffix(name.String(), filepath.Ext(name.String()))
	candidate := filepath.Join(f.DataDir, base+ext)
	_, err := os.Stat(candidate)
	return err == nil
}

// ListArchiveContents lists every file path inside the archive at
// path without fully extracting it, used to confirm that a plugin's
// companion archive actually contains resources rather than being a
// zero-byte placeholder.
func ListArchiveContents(ctx context.Context, path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	format, input, err := archiver.Identify(ctx, path, file)
	if err != nil {
		return nil, fmt.Errorf("identify archive format: %w", err)
	}
	extractor, ok := format.(archiver.Extractor)
	if !ok {
		return nil, fmt.Errorf("gamefs: %s: format does not support listing", path)
	}

	var files []string
	err = extractor.Extract(ctx, input, func(ctx context.Context, fi archiver.FileInfo) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !fi.IsDir() {
			files = append(files, fi.NameInArchive)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list archive contents: %w", err)
	}
	return files, nil
}

// ReadPluginFromArchive extracts a single named plugin file from a
// mod-manager-staged archive (e.g. a Nexus download not yet unpacked
// into Data) into dir, returning its extracted path, without
// unpacking the rest of the archive.
func ReadPluginFromArchive(ctx context.Context, archivePath, pluginName, destDir string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	format, input, err := archiver.Identify(ctx, archivePath, file)
	if err != nil {
		return "", fmt.Errorf("identify archive format: %w", err)
	}
	extractor, ok := format.(archiver.Extractor)
	if !ok {
		return "", fmt.Errorf("gamefs: %s: format does not support extraction", archivePath)
	}

	want := strings.ToLower(pluginName)
	var extractedPath string
	err = extractor.Extract(ctx, input, func(ctx context.Context, fi archiver.FileInfo) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fi.IsDir() || strings.ToLower(filepath.Base(fi.NameInArchive)) != want {
			return nil
		}
		rc, err := fi.Open()
		if err != nil {
			return fmt.Errorf("open %s in archive: %w", fi.NameInArchive, err)
		}
		defer rc.Close()

		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return fmt.Errorf("create dest dir: %w", err)
		}
		destPath := filepath.Join(destDir, filepath.Base(fi.NameInArchive))
		out, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", destPath, err)
		}
		defer out.Close()

		if _, err := io.Copy(out, rc); err != nil {
			return fmt.Errorf("extract %s: %w", fi.NameInArchive, err)
		}
		extractedPath = destPath
		return nil
	})
	if err != nil {
		return "", err
	}
	if extractedPath == "" {
		return "", fmt.Errorf("gamefs: %s not found in %s", pluginName, archivePath)
	}
	return extractedPath, nil
}
