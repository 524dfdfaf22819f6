package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrEmptyCSV = errors.New("csv has no header row")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV parses a CSV document with a header row into a text-kind table.
// Column names are normalized, empty cells become null and short rows are
// padded with nulls.
func ReadCSV(filename string, r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCSV
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	out := &Table{
		Name:    Identifier(filename),
		Source:  filename,
		Columns: make([]Column, len(header)),
	}
	taken := make(map[string]bool, len(header))
	for i, name := range header {
		normalized := NormalizeColumnName(name)
		if normalized == "" {
			normalized = "unnamed_" + strconv.Itoa(i)
		}
		normalized = uniqueName(normalized, taken)
		out.Columns[i] = Column{Name: normalized, Kind: KindText}
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if len(record) > len(header) {
			return nil, fmt.Errorf("read csv line %d: %d fields, header has %d", line, len(record), len(header))
		}
		for i := range out.Columns {
			var value any
			if i < len(record) && strings.TrimSpace(record[i]) != "" {
				value = record[i]
			}
			out.Columns[i].Values = append(out.Columns[i].Values, value)
		}
	}
	for i := range out.Columns {
		if out.Columns[i].Values == nil {
			out.Columns[i].Values = []any{}
		}
	}
	return out, nil
}

// uniqueName suffixes name with _1, _2, ... until no earlier column has the
// same name ignoring case, then records it in taken.
func uniqueName(name string, taken map[string]bool) string {
	candidate := name
	for n := 1; taken[strings.ToLower(candidate)]; n++ {
		candidate = name + "_" + strconv.Itoa(n)
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}
