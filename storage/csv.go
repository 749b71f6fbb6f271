package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"iphone-scraper/models"
)

var rawHeader = []string{"title", "price", "condition", "battery", "url"}

// notAvailable is how an absent condition or battery is written to CSV,
// matching the marketplace placeholder.
const notAvailable = "N/A"

var _ RawListingWriter = (*CSVWriter)(nil)

// CSVWriter writes raw (unnormalized) listings to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(rawHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRaw appends the listings to the CSV file.
func (c *CSVWriter) WriteRaw(listings []*models.RawListing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		row := []string{l.Title, l.PriceText, orNA(l.Condition), orNA(l.Battery), l.URL}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

func orNA(s *string) string {
	if s == nil {
		return notAvailable
	}
	return *s
}

// ReadRawCSV loads listings previously written by CSVWriter. Columns are
// matched by header name so files with extra columns are accepted; "N/A"
// values are passed through for the normalizer to collapse.
func ReadRawCSV(r io.Reader) ([]*models.RawListing, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, col := range []string{"price", "url"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv: missing column %q", col)
		}
	}

	field := func(row []string, name string) (string, bool) {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}

	var listings []*models.RawListing
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return listings, fmt.Errorf("csv: read line %d: %w", line, err)
		}

		l := &models.RawListing{}
		l.Title, _ = field(row, "title")
		l.PriceText, _ = field(row, "price")
		l.URL, _ = field(row, "url")
		if v, ok := field(row, "condition"); ok {
			l.Condition = &v
		}
		if v, ok := field(row, "battery"); ok {
			l.Battery = &v
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// ReadRawCSVFile opens path and reads it with ReadRawCSV.
func ReadRawCSVFile(path string) ([]*models.RawListing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()
	return ReadRawCSV(f)
}
