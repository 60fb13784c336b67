package constants

import "strings"

// AllowedExtensions holds the file extensions accepted for enrichment.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// PDFMagic is the header every PDF document starts with.
const PDFMagic = "%PDF-"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without dot) is accepted.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
