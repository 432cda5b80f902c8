package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
)

// ReadCSV parses delimited text into a frame. The first record is the header;
// column types are inferred from the literal values.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	f := &Frame{Columns: make([]Column, len(header))}
	for i, name := range header {
		f.Columns[i] = Column{Name: name, Type: TypeText}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", len(f.Records)+1, err)
		}
		f.Records = append(f.Records, rec)
	}

	f.InferTypes()
	return f, nil
}

// WriteCSV writes the frame as delimited text: header row then records.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.ColumnNames()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, rec := range f.Records {
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
