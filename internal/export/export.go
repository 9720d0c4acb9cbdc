// Package export delivers exported spreadsheets to where the user can pick
// them up: a local directory or an S3-compatible bucket.
package export

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/sydlexius/partsub/internal/part"
)

// ErrExists is returned when a delivery would overwrite an existing file.
var ErrExists = errors.New("export already exists")

// ErrInvalidName is returned for names that are empty or contain path separators.
var ErrInvalidName = errors.New("invalid export name")

// SinkError wraps a delivery failure with the operation and file name.
type SinkError struct {
	Op   string
	Name string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("export %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Receipt describes a delivered export.
type Receipt struct {
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Size        int       `json:"size"`
	ContentType string    `json:"content_type"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Sink stores an export payload under name and reports where it went.
type Sink interface {
	Deliver(ctx context.Context, name, contentType string, data []byte) (Receipt, error)
}

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv"
)

// Extension returns the file extension (without dot) signalling the kind of
// payload. Unrecognized or missing content types are assumed to be xlsx.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "xlsx"
	}
	switch mediaType {
	case contentTypeCSV:
		return "csv"
	case "application/vnd.ms-excel":
		return "xls"
	default:
		return "xlsx"
	}
}

// ContentType returns the canonical content type for an extension produced by Extension.
func ContentType(ext string) string {
	switch ext {
	case "csv":
		return contentTypeCSV
	case "xls":
		return "application/vnd.ms-excel"
	default:
		return contentTypeXLSX
	}
}

// FileName builds the name of an exported file: brand-qualified, timestamped to
// the millisecond, and carrying seq so two exports in the same millisecond
// still differ.
func FileName(brand part.Brand, at time.Time, seq uint64, contentType string) string {
	b := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, string(brand))
	if b == "" {
		b = "parts"
	}
	ts := at.UTC().Format("20060102-150405.000")
	return fmt.Sprintf("%s-substitutions-%s-%d.%s", b, ts, seq, Extension(contentType))
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}
