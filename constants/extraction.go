package constants

import "strings"

// ExtractionMethod records how policy text was obtained.
type ExtractionMethod string

// Stable values (these exact strings appear in audit rows and logs).
const (
	MethodDirect ExtractionMethod = "direct" // structured text layer read page-by-page
	MethodOCR    ExtractionMethod = "ocr"    // rasterized pages run through OCR
	MethodNone   ExtractionMethod = "none"   // no document, or both passes failed
)

// AllowedEvidenceExtensions holds the file extensions accepted as evidence uploads.
var AllowedEvidenceExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
