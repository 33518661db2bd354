package ocr

import (
	"encoding/base64"

	"github.com/joseph-ayodele/polygon-locator/constants"
)

// Document kinds accepted by inline-upload providers.
const (
	DocumentURL = "document_url"
	ImageURL    = "image_url"
)

// DataURL base64-encodes doc as a data: URL and reports how it should be submitted.
// JPEG and PNG go as images; PDFs and anything unrecognized go as documents.
func DataURL(doc Document) (dataURL, urlType string) {
	ext := doc.Ext()
	urlType = DocumentURL
	if constants.MapExtToFormat(ext) == constants.IMAGE {
		urlType = ImageURL
	}
	data := base64.StdEncoding.EncodeToString(doc.Data)
	return "data:" + constants.MimeType(ext) + ";base64," + data, urlType
}
