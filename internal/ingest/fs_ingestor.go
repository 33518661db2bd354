package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/polygon-locator/constants"
	"github.com/joseph-ayodele/polygon-locator/internal/common"
)

// FSIngestor reads from the local filesystem.
type FSIngestor struct {
	logger *slog.Logger
}

func NewFSIngestor(logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{logger: logger}
}

// IngestPath hashes one document and looks up its sidecar.
func (i *FSIngestor) IngestPath(ctx context.Context, path string) (Item, error) {
	var out Item
	if err := ctx.Err(); err != nil {
		return out, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		i.logger.Error("abs path error", "path", path, "err", err)
		return out, err
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		i.logger.Warn("unsupported or missing extension", "path", abs, "ext", ext)
		return out, common.NewAppError(common.CodeValidation, fmt.Sprintf("unsupported extension %q", ext), common.ErrInvalidInput)
	}

	f, err := os.Open(abs)
	if err != nil {
		i.logger.Error("open error", "path", abs, "err", err)
		return out, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			i.logger.Warn("close file error", "path", abs, "err", err)
		}
	}()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		i.logger.Error("hash error", "path", abs, "err", err)
		return out, err
	}

	out = Item{
		Path:    abs,
		Ext:     ext,
		Format:  constants.MapExtToFormat(ext),
		HashHex: hex.EncodeToString(h.Sum(nil)),
		Size:    n,
	}
	sidecar := SidecarFor(abs)
	if st, err := os.Stat(sidecar); err == nil && st.Mode().IsRegular() {
		out.SidecarPath = sidecar
	}
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and calls
// IngestPath for each document. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]Item, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.NewAppError(common.CodeValidation, "root path is required", common.ErrInvalidInput)
	}

	var (
		results []Item
		stats   DirStats
		seen    = map[string]string{}
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Item{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		it, err := i.IngestPath(ctx, path)
		if err != nil {
			results = append(results, Item{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		if first, dup := seen[it.HashHex]; dup {
			i.logger.Info("ingest.duplicate", "path", it.Path, "same_as", first)
			it.Deduplicated = true
			stats.Deduplicated++
		} else {
			seen[it.HashHex] = it.Path
		}
		if it.Paired() {
			stats.Paired++
		} else {
			stats.Unpaired++
		}
		results = append(results, it)
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}

	i.logger.Info("ingest.directory.ok",
		"root", root,
		"matched", stats.Matched,
		"paired", stats.Paired,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}
