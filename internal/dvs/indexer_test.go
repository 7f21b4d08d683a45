package dvs_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"

	"dvsmart-go/internal/dvs"
	"dvsmart-go/internal/testutil"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name string
		want dvs.Metadata
	}{
		{"FACTURA_C001_2024_03.pdf", dvs.Metadata{DocumentType: "FACTURA", ClientCode: "C001", Year: 2024, Month: 3}},
		{"INVOICE-ACME-202311-final.pdf", dvs.Metadata{DocumentType: "INVOICE", ClientCode: "ACME", Year: 2023, Month: 11}},
		{"REPORT_X9_2022_13.pdf", dvs.Metadata{DocumentType: "REPORT", ClientCode: "X9"}},
		{"scan0001.pdf", dvs.Metadata{}},
		{"", dvs.Metadata{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dvs.ParseMetadata(tt.name)
			if *got != tt.want {
				t.Errorf("ParseMetadata(%q) = %+v, want %+v", tt.name, *got, tt.want)
			}
		})
	}
}

func TestDefaultIndexer(t *testing.T) {
	tests := []struct {
		name        string
		fileName    string
		content     []byte
		size        int64
		wantContent bool
	}{
		{"valid pdf", "FACTURA_C001_2024_03.pdf", pdfContent, int64(len(pdfContent)), false},
		{"corrupt pdf", "a.pdf", []byte("not a pdf"), 9, true},
		{"empty pdf", "a.pdf", nil, 0, true},
		{"truncated file", "a.pdf", pdfContent, int64(len(pdfContent)) + 10, true},
		{"png", "a.png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0}, 9, false},
		{"unknown extension", "notes.txt", []byte("hello"), 5, false},
		{"empty unknown extension", "empty.dat", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &dvs.FileRecord{FileName: tt.fileName, Extension: dvs.ExtensionOf(tt.fileName), FileSize: tt.size}
			meta, err := dvs.DefaultIndexer{}.Index(context.Background(), rec, bytes.NewReader(tt.content))

			var ce *dvs.ContentError
			if tt.wantContent {
				if !errors.As(err, &ce) {
					t.Fatalf("Index() error = %v, want *ContentError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Index() error = %v", err)
			}
			if meta == nil {
				t.Fatal("Index() returned nil metadata")
			}
		})
	}
}

func TestDefaultIndexer_Metadata(t *testing.T) {
	rec := &dvs.FileRecord{FileName: "FACTURA_C001_2024_03.pdf", Extension: "pdf", FileSize: int64(len(pdfContent))}
	meta, err := dvs.DefaultIndexer{}.Index(context.Background(), rec, bytes.NewReader(pdfContent))
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if meta.ClientCode != "C001" || meta.Year != 2024 || meta.Month != 3 {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"os deadline", fmt.Errorf("read: %w", os.ErrDeadlineExceeded), true},
		{"net timeout", fmt.Errorf("opening: %w", testutil.TimeoutError{}), true},
		{"net op error", &net.OpError{Op: "read", Err: testutil.TimeoutError{}}, true},
		{"cancelled", context.Canceled, false},
		{"not exist", os.ErrNotExist, false},
		{"content", &dvs.ContentError{Reason: "corrupt"}, false},
	}
	for _, tt := range tests {
		if got := dvs.IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
