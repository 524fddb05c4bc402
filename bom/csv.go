package bom

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes Header followed by rows
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.Record()); err != nil {
			return fmt.Errorf("write csv row %s: %w", row.OccurrenceID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads rows written by WriteCSV. Occurrence and parent ids are not
// part of the CSV layout and stay empty.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: missing header")
	}
	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		level, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: invalid level %q", i+2, rec[0])
		}
		rows = append(rows, Row{
			Level:      level,
			Kind:       rec[1],
			Name:       rec[2],
			ItemType:   rec[3],
			Revision:   rec[4],
			Quantity:   rec[5],
			Attributes: rec[6],
			Datasets:   rec[7],
		})
	}
	return rows, nil
}
