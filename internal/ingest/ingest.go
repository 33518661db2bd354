package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/polygon-locator/constants"
)

// Item is one discovered document and its extraction sidecar.
type Item struct {
	Path         string
	SidecarPath  string // empty when the document has no sidecar
	Ext          string
	Format       constants.FileFormat
	HashHex      string
	Size         int64
	Deduplicated bool // same content as an earlier item of the walk
	Err          string
}

// Paired reports whether the document has an extraction to enrich.
func (it Item) Paired() bool { return it.SidecarPath != "" }

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Paired       uint32
	Unpaired     uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor discovers documents.
type Ingestor interface {
	IngestPath(ctx context.Context, path string) (Item, error)
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]Item, DirStats, error)
}

// AllowedExt checks if a file extension is in the allowed set (pdf/jpg/jpeg/png).
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// SidecarFor returns the extraction path paired with a document:
// scans/invoice.pdf -> scans/invoice.extraction.json.
func SidecarFor(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + constants.SidecarSuffix
}

// DocumentForSidecar is the inverse of SidecarFor for the given document extension.
func DocumentForSidecar(sidecar, ext string) (string, bool) {
	if !strings.HasSuffix(sidecar, constants.SidecarSuffix) {
		return "", false
	}
	return strings.TrimSuffix(sidecar, constants.SidecarSuffix) + "." + constants.NormalizeExt(ext), true
}
