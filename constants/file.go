package constants

import (
	"bytes"
	"strings"
)

// FileFormats holds the allowed upload formats.
var FileFormats = []string{"JPEG", "PNG", "PDF"}

// AllowedExtensions holds the default allowed file extensions for uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether a normalized extension is accepted for upload.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// SniffFormat inspects leading magic bytes and returns the detected format,
// or "" when the content matches none of the allowed formats. Extension
// checks alone trust the filename; the ingest gateway checks both.
func SniffFormat(b []byte) string {
	switch {
	case len(b) >= 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return "JPEG"
	case len(b) >= 8 && bytes.Equal(b[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "PNG"
	case len(b) >= 5 && bytes.Equal(b[:5], []byte("%PDF-")):
		return "PDF"
	}
	return ""
}
