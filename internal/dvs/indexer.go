package dvs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// Metadata is the business information extracted while indexing a file.
// It is informational and never affects lifecycle decisions.
type Metadata struct {
	DocumentType string
	ClientCode   string
	Year         int
	Month        int
}

// Indexer validates file content and extracts metadata from it.
type Indexer interface {
	// Index reads the content of rec from r. A *ContentError marks the file as
	// permanently unindexable; any other error is treated as I/O failure.
	Index(ctx context.Context, rec *FileRecord, r io.Reader) (*Metadata, error)
}

// ContentError is a permanent content failure (corrupt or unreadable file).
type ContentError struct {
	Reason string
}

func (e *ContentError) Error() string {
	return e.Reason
}

// magicNumbers maps extensions to the leading bytes their content must carry.
var magicNumbers = map[string][]byte{
	"pdf":  []byte("%PDF-"),
	"png":  {0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
	"jpg":  {0xff, 0xd8, 0xff},
	"jpeg": {0xff, 0xd8, 0xff},
	"gif":  []byte("GIF8"),
	"zip":  {'P', 'K', 0x03, 0x04},
	"docx": {'P', 'K', 0x03, 0x04},
	"xlsx": {'P', 'K', 0x03, 0x04},
	"tif":  {'I', 'I', '*', 0x00},
	"tiff": {'I', 'I', '*', 0x00},
}

// namePattern matches TYPE_CLIENT_YYYY[_]MM... file names, e.g.
// FACTURA_C001_2024_03.pdf or INVOICE-ACME-202311-final.pdf.
var namePattern = regexp.MustCompile(`^([A-Za-z]+)[_-]([A-Za-z0-9]+)[_-](\d{4})[_-]?(\d{2})(?:[_.\-]|$)`)

// DefaultIndexer checks the content length against the discovered size,
// checks magic numbers of known formats and parses business metadata from the
// file name.
type DefaultIndexer struct{}

var _ Indexer = DefaultIndexer{}

func (DefaultIndexer) Index(ctx context.Context, rec *FileRecord, r io.Reader) (*Metadata, error) {
	head := make([]byte, 8)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	head = head[:n]

	rest, err := io.Copy(io.Discard, r)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := int64(n) + rest
	if size != rec.FileSize {
		return nil, &ContentError{Reason: fmt.Sprintf("size mismatch: expected %d bytes, got %d", rec.FileSize, size)}
	}

	if magic, ok := magicNumbers[rec.Extension]; ok {
		if size == 0 {
			return nil, &ContentError{Reason: fmt.Sprintf("empty %s file", rec.Extension)}
		}
		if !bytes.HasPrefix(head, magic) {
			return nil, &ContentError{Reason: fmt.Sprintf("content is not a valid %s file", rec.Extension)}
		}
	}

	return ParseMetadata(rec.FileName), nil
}

// ParseMetadata extracts business metadata from a file name. Names that do
// not follow the TYPE_CLIENT_YYYYMM convention yield empty metadata.
func ParseMetadata(fileName string) *Metadata {
	m := namePattern.FindStringSubmatch(fileName)
	if m == nil {
		return &Metadata{}
	}
	year, _ := strconv.Atoi(m[3])
	month, _ := strconv.Atoi(m[4])
	if month < 1 || month > 12 {
		return &Metadata{DocumentType: m[1], ClientCode: m[2]}
	}
	return &Metadata{
		DocumentType: m[1],
		ClientCode:   m[2],
		Year:         year,
		Month:        month,
	}
}
