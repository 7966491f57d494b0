// Package csvrecord maps a flat document (string keys to string values) to
// a newline/comma-delimited text record and back. It exists as an
// independent collaborator alongside the tree core — no bonsai package
// imports it, and it imports none of them — matching the original system's
// use of a CSV-backed record format for the documents a tree's values
// point at.
package csvrecord

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
)

// Document is a flat field-name-to-value record.
type Document map[string]string

// Encode writes d as a two-row CSV record: a header row of field names in
// sorted order, followed by one row of values in the same order. Sorting
// the field names makes Encode deterministic, so two documents with the
// same fields always produce byte-identical records.
func Encode(d Document) ([]byte, error) {
	fields := make([]string, 0, len(d))
	for k := range d {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	values := make([]string, len(fields))
	for i, f := range fields {
		values[i] = d[f]
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("csvrecord: write header: %w", err)
	}
	if err := w.Write(values); err != nil {
		return nil, fmt.Errorf("csvrecord: write values: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csvrecord: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode back into a Document.
func Decode(b []byte) (Document, error) {
	r := csv.NewReader(bytes.NewReader(b))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csvrecord: read: %w", err)
	}
	if len(rows) != 2 {
		return nil, fmt.Errorf("csvrecord: expected 2 rows (header, values), got %d", len(rows))
	}
	header, values := rows[0], rows[1]
	if len(header) != len(values) {
		return nil, fmt.Errorf("csvrecord: header has %d fields, values row has %d", len(header), len(values))
	}

	d := make(Document, len(header))
	for i, field := range header {
		d[field] = values[i]
	}
	return d, nil
}

// EncodeBatch writes multiple documents sharing the same field set as one
// CSV table: a single header row followed by one row per document, in the
// order given. Every document must have identical fields, since a CSV
// table has no room for a per-row column set.
func EncodeBatch(docs []Document) ([]byte, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("csvrecord: cannot encode an empty batch")
	}

	fields := make([]string, 0, len(docs[0]))
	for k := range docs[0] {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("csvrecord: write header: %w", err)
	}
	for i, d := range docs {
		if len(d) != len(fields) {
			return nil, fmt.Errorf("csvrecord: document %d has %d fields, want %d", i, len(d), len(fields))
		}
		row := make([]string, len(fields))
		for j, f := range fields {
			v, ok := d[f]
			if !ok {
				return nil, fmt.Errorf("csvrecord: document %d missing field %q", i, f)
			}
			row[j] = v
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("csvrecord: write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csvrecord: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBatch parses a record produced by EncodeBatch back into one
// Document per data row.
func DecodeBatch(b []byte) ([]Document, error) {
	r := csv.NewReader(bytes.NewReader(b))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csvrecord: read: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csvrecord: empty batch record")
	}
	header := rows[0]

	docs := make([]Document, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("csvrecord: row %d has %d fields, header has %d", i, len(row), len(header))
		}
		d := make(Document, len(header))
		for j, field := range header {
			d[field] = row[j]
		}
		docs = append(docs, d)
	}
	return docs, nil
}
