package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/roach88/mnemosyne/internal/blob"
	"github.com/roach88/mnemosyne/internal/ir"
)

// Classifier maps an upload filename to a coarse content type.
type Classifier interface {
	Classify(filename string) ir.ContentType
}

// Extractor pulls indexable text out of a payload. It may return empty
// text when it cannot read the format. meta is merged into the ingest
// ledger record.
type Extractor interface {
	Extract(data []byte, contentType ir.ContentType) (text string, meta ir.Object)
}

// ExtensionClassifier classifies by lowercased filename extension.
// Unknown extensions are binary.
type ExtensionClassifier map[string]ir.ContentType

// DefaultClassifier is the built-in extension table.
var DefaultClassifier = ExtensionClassifier{
	".txt":  ir.ContentText,
	".md":   ir.ContentText,
	".png":  ir.ContentImage,
	".jpg":  ir.ContentImage,
	".jpeg": ir.ContentImage,
	".gif":  ir.ContentImage,
	".webp": ir.ContentImage,
	".pdf":  ir.ContentPDF,
	".mp3":  ir.ContentAudio,
	".wav":  ir.ContentAudio,
	".m4a":  ir.ContentAudio,
	".flac": ir.ContentAudio,
	".ogg":  ir.ContentAudio,
	".mp4":  ir.ContentVideo,
	".mov":  ir.ContentVideo,
	".avi":  ir.ContentVideo,
	".mkv":  ir.ContentVideo,
}

// Classify implements Classifier.
func (c ExtensionClassifier) Classify(filename string) ir.ContentType {
	if ct, ok := c[blob.Ext(filename)]; ok {
		return ct
	}
	return ir.ContentBinary
}

// TextExtractor decodes text payloads as UTF-8, dropping invalid bytes.
// Every other content type yields empty text.
type TextExtractor struct{}

// Extract implements Extractor.
func (TextExtractor) Extract(data []byte, contentType ir.ContentType) (string, ir.Object) {
	if contentType != ir.ContentText {
		return "", nil
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), ""), ir.Object{"lossy_utf8": ir.Bool(true)}
}
