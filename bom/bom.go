// Package bom flattens resolved product views into bill-of-materials rows
package bom

import (
	"fmt"
	"strings"

	plmxml "github.com/agentflare-ai/go-plmxml"
)

// Header is the column header of a BOM export
var Header = []string{"Level", "Type", "Name / ID", "Item Type", "Revision", "Qty", "Attributes", "Datasets"}

const (
	KindAssembly = "Assembly"
	KindLeaf     = "Leaf"
)

// Row is one occurrence of a view, in depth-first pre-order
type Row struct {
	Level      int
	Kind       string
	Name       string
	ItemType   string
	Revision   string
	Quantity   string
	Attributes string
	Datasets   string

	OccurrenceID string
	ParentID     string // empty for roots
}

// Record returns the row as CSV fields in Header order
func (r Row) Record() []string {
	return []string{
		fmt.Sprint(r.Level),
		r.Kind,
		r.Name,
		r.ItemType,
		r.Revision,
		r.Quantity,
		r.Attributes,
		r.Datasets,
	}
}

// Rows flattens view index of res. An out of range index yields no rows.
func Rows(res *plmxml.Result, view int) []Row {
	if res == nil || view < 0 || view >= len(res.Views) {
		return nil
	}
	var rows []Row
	res.Views[view].Walk(func(n, parent *plmxml.Node, depth int) bool {
		row := NodeRow(n, depth)
		if parent != nil {
			row.ParentID = parent.ID
		}
		rows = append(rows, row)
		return true
	})
	return rows
}

// NodeRow renders a single node at level
func NodeRow(n *plmxml.Node, level int) Row {
	kind := KindLeaf
	if n.IsAssembly() {
		kind = KindAssembly
	}
	return Row{
		Level:        level,
		Kind:         kind,
		Name:         firstNonEmpty(n.DisplayName, n.Name, n.ID, "Occurrence"),
		ItemType:     firstNonEmpty(n.SubType, "N/A"),
		Revision:     firstNonEmpty(n.Revision, "N/A"),
		Quantity:     firstNonEmpty(n.Quantity, "1"),
		Attributes:   n.Attributes.String(),
		Datasets:     DatasetSummary(n),
		OccurrenceID: n.ID,
	}
}

// DatasetSummary renders the node's attachments, one entry per attachment
// joined by " | "
func DatasetSummary(n *plmxml.Node) string {
	parts := make([]string, 0, len(n.Attachments))
	for _, att := range n.Attachments {
		parts = append(parts, attachmentSummary(att))
	}
	return strings.Join(parts, " | ")
}

func attachmentSummary(att plmxml.AttachmentDetail) string {
	role := firstNonEmpty(att.Role, "N/A")
	ds := att.DataSet
	// only hand-built nodes get here; parsing drops unresolved attachments
	if ds == nil {
		return fmt.Sprintf("Role: %s, DataSet ID: %s (Not Found)", role, att.DataSetID)
	}

	files := make([]string, 0, len(att.Files))
	for _, f := range att.Files {
		if f.File == nil {
			files = append(files, fmt.Sprintf("Ref: %s (Not Found)", f.ID))
			continue
		}
		files = append(files, fmt.Sprintf("%s (%s)", firstNonEmpty(f.File.LocationRef, "N/A"), firstNonEmpty(f.File.Format, "N/A")))
	}
	fileList := "No Files"
	if len(files) > 0 {
		fileList = strings.Join(files, "; ")
	}
	return fmt.Sprintf("Role: %s, Type: %s, Name: %s, Files: [%s]",
		role, firstNonEmpty(ds.Type, "N/A"), firstNonEmpty(ds.Name, ds.ID), fileList)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
