package constants

import "testing"

func TestMapExtToFormat(t *testing.T) {
	tests := map[string]FileFormat{
		".pdf":  PDF,
		"PDF":   PDF,
		".JPG":  IMAGE,
		"jpeg":  IMAGE,
		".png":  IMAGE,
		".tiff": PDF,
		"":      PDF,
	}
	for ext, want := range tests {
		if got := MapExtToFormat(ext); got != want {
			t.Errorf("MapExtToFormat(%q) = %s, want %s", ext, got, want)
		}
	}
}

func TestMimeType(t *testing.T) {
	tests := map[string]string{
		".pdf":  "application/pdf",
		".jpg":  "image/jpeg",
		".JPEG": "image/jpeg",
		"png":   "image/png",
		".docx": "application/pdf",
	}
	for ext, want := range tests {
		if got := MimeType(ext); got != want {
			t.Errorf("MimeType(%q) = %s, want %s", ext, got, want)
		}
	}
}
