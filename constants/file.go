package constants

import "strings"

// FileFormat is the coarse kind of a source document.
type FileFormat string

const (
	PDF   FileFormat = "PDF"
	IMAGE FileFormat = "IMAGE"
)

// AllowedExtensions holds the document extensions picked up by directory ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// SidecarSuffix names the extraction file that accompanies a document:
// invoice.pdf pairs with invoice.extraction.json.
const SidecarSuffix = ".extraction.json"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat treats jpg/jpeg/png as images and everything else as PDF.
func MapExtToFormat(ext string) FileFormat {
	switch NormalizeExt(ext) {
	case "jpg", "jpeg", "png":
		return IMAGE
	}
	return PDF
}

// MimeType returns the content type used when a document is sent inline.
// Unknown extensions are sent as PDF.
func MimeType(ext string) string {
	switch NormalizeExt(ext) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	}
	return "application/pdf"
}
