package bom

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

// Schema returns the Arrow schema of a BOM record batch
func Schema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "level", Type: arrow.PrimitiveTypes.Int32},
		{Name: "type", Type: arrow.BinaryTypes.String},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "item_type", Type: arrow.BinaryTypes.String},
		{Name: "revision", Type: arrow.BinaryTypes.String},
		{Name: "quantity", Type: arrow.BinaryTypes.String},
		{Name: "attributes", Type: arrow.BinaryTypes.String},
		{Name: "datasets", Type: arrow.BinaryTypes.String},
		{Name: "occurrence_id", Type: arrow.BinaryTypes.String},
		{Name: "parent_id", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

// NewRecord builds one record batch holding rows. The caller releases it.
func NewRecord(mem memory.Allocator, rows []Row) arrow.Record {
	b := array.NewRecordBuilder(mem, Schema())
	defer b.Release()

	level := b.Field(0).(*array.Int32Builder)
	strs := make([]*array.StringBuilder, 9)
	for i := 1; i < 10; i++ {
		strs[i-1] = b.Field(i).(*array.StringBuilder)
	}
	for _, r := range rows {
		level.Append(int32(r.Level))
		strs[0].Append(r.Kind)
		strs[1].Append(r.Name)
		strs[2].Append(r.ItemType)
		strs[3].Append(r.Revision)
		strs[4].Append(r.Quantity)
		strs[5].Append(r.Attributes)
		strs[6].Append(r.Datasets)
		strs[7].Append(r.OccurrenceID)
		if r.ParentID == "" {
			strs[8].AppendNull()
		} else {
			strs[8].Append(r.ParentID)
		}
	}
	return b.NewRecord()
}

// WriteArrow writes rows as a single-batch Arrow IPC stream
func WriteArrow(w io.Writer, rows []Row) error {
	mem := memory.NewGoAllocator()
	rec := NewRecord(mem, rows)
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close arrow stream: %w", err)
	}
	return nil
}

// ReadArrow reads every batch of an Arrow IPC stream written by WriteArrow
func ReadArrow(r io.Reader) ([]Row, error) {
	mem := memory.NewGoAllocator()
	reader, err := ipc.NewReader(r, ipc.WithAllocator(mem), ipc.WithSchema(Schema()))
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer reader.Release()

	var rows []Row
	for reader.Next() {
		rec := reader.Record()
		cols := make([]*array.String, 9)
		level, ok := rec.Column(0).(*array.Int32)
		if !ok {
			return nil, fmt.Errorf("arrow column level: unexpected type %s", rec.Column(0).DataType())
		}
		for i := 1; i < 10; i++ {
			col, ok := rec.Column(i).(*array.String)
			if !ok {
				return nil, fmt.Errorf("arrow column %s: unexpected type %s", rec.ColumnName(i), rec.Column(i).DataType())
			}
			cols[i-1] = col
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			row := Row{
				Level:        int(level.Value(i)),
				Kind:         cols[0].Value(i),
				Name:         cols[1].Value(i),
				ItemType:     cols[2].Value(i),
				Revision:     cols[3].Value(i),
				Quantity:     cols[4].Value(i),
				Attributes:   cols[5].Value(i),
				Datasets:     cols[6].Value(i),
				OccurrenceID: cols[7].Value(i),
			}
			if cols[8].IsValid(i) {
				row.ParentID = cols[8].Value(i)
			}
			rows = append(rows, row)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return rows, nil
}
