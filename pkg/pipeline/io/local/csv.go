package local

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shpitdev/email-finder/pkg/pipeline/core"
	"github.com/shpitdev/email-finder/pkg/pipeline/schema"
)

var (
	_ core.InputAdapter[schema.Entry]           = EntriesFile{}
	_ core.OutputAdapter[schema.VerifiedRecord] = RecordsFile{}
)

// ReadEntriesCSV reads (name, domain) entries from a CSV with a header row.
//
// Header names are matched case-insensitively against schema.InputColumns, including aliases.
// Domain values are reduced to bare host names, so a website column works too. Rows that do
// not parse or miss either value are skipped; only an unreadable header or an I/O failure is
// an error.
func ReadEntriesCSV(r io.Reader) ([]schema.Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := schema.InputColumns()
	idx := make([]int, len(cols))
	for c, col := range cols {
		idx[c] = -1
		for i, h := range header {
			if col.Matches(h) {
				idx[c] = i
				break
			}
		}
		if idx[c] < 0 {
			return nil, fmt.Errorf("missing required column %q", col.Name)
		}
	}
	nameIdx, domainIdx := idx[0], idx[1]

	var entries []schema.Entry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue
			}
			return nil, fmt.Errorf("read row: %w", err)
		}
		name := field(rec, nameIdx)
		domain := schema.NormalizeDomain(field(rec, domainIdx))
		if name == "" || domain == "" {
			continue
		}
		entries = append(entries, schema.Entry{FullName: name, Domain: domain})
	}
	return entries, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// WriteRecordsCSV writes records with the stable schema.OutputHeader ordering.
func WriteRecordsCSV(w io.Writer, records []schema.VerifiedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(schema.OutputHeader()); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.Name, r.Domain, r.Email, r.Method}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EntriesFile loads entries from a CSV file on disk.
type EntriesFile struct {
	Path string
}

func (f EntriesFile) Load(_ context.Context) ([]schema.Entry, error) {
	in, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = in.Close()
	}()
	return ReadEntriesCSV(in)
}

// RecordsFile writes verified records to a CSV file on disk, replacing any existing file.
type RecordsFile struct {
	Path string
}

func (f RecordsFile) Store(_ context.Context, rows []schema.VerifiedRecord) error {
	out, err := os.Create(f.Path)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()
	if err := WriteRecordsCSV(out, rows); err != nil {
		return err
	}
	return out.Close()
}
