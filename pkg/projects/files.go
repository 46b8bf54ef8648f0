package projects

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxUploadSize is the per-file upload limit.
const MaxUploadSize = 50 << 20

var ErrUnsupportedType = errors.New("file type not supported")

var allowedExtensions = map[string]bool{
	".py": true, ".pyw": true,
	".zip": true, ".tar": true, ".gz": true,
	".txt": true, ".md": true, ".rst": true,
	".json": true, ".xml": true, ".yml": true, ".yaml": true,
	".js": true, ".html": true, ".css": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".mp3": true, ".wav": true, ".ogg": true,
	".mp4": true, ".avi": true, ".mov": true,
	".pdf": true, ".doc": true, ".docx": true,
	".csv": true, ".tsv": true,
	".sql": true, ".db": true,
}

// Binary uploads are recorded by name and size only.
var binaryExtensions = map[string]bool{
	".zip": true, ".tar": true, ".gz": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".mp3": true, ".wav": true, ".ogg": true,
	".mp4": true, ".avi": true, ".mov": true,
	".pdf": true, ".doc": true, ".docx": true,
}

var editorTypes = map[string]string{
	".py":   "python",
	".pyw":  "python",
	".js":   "javascript",
	".ts":   "typescript",
	".html": "html",
	".css":  "css",
	".json": "json",
	".md":   "markdown",
	".txt":  "text",
	".xml":  "xml",
	".yml":  "yaml",
	".yaml": "yaml",
}

// AllowedUpload reports whether name has an accepted extension.
func AllowedUpload(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return nil
}

// UploadContent converts uploaded bytes into the stored file content.
func UploadContent(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if binaryExtensions[ext] {
		return fmt.Sprintf("[BINARY FILE: %s - %d bytes]", name, len(data))
	}
	if !utf8.Valid(data) {
		return fmt.Sprintf("[ENCODING ERROR: Unable to read %s as UTF-8]", name)
	}
	return string(data)
}

// DetectType maps a filename to the editor language used for syntax highlighting.
func DetectType(name string) string {
	if t, ok := editorTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return "text"
}
