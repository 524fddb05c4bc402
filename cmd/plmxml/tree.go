package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	plmxml "github.com/agentflare-ai/go-plmxml"
	"github.com/agentflare-ai/go-plmxml/bom"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	assemblyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	leafStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

// painter applies a style only when output is styled
type painter bool

func (p painter) paint(s lipgloss.Style, text string) string {
	if !p {
		return text
	}
	return s.Render(text)
}

// nodeLabel is the one-line summary of a node
func nodeLabel(n *plmxml.Node, p painter) string {
	row := bom.NodeRow(n, 0)
	name := p.paint(leafStyle, row.Name)
	if n.IsAssembly() {
		name = p.paint(assemblyStyle, row.Name)
	}
	meta := fmt.Sprintf("[%s rev %s] x%s", row.ItemType, row.Revision, row.Quantity)
	if len(n.Attachments) > 0 {
		meta += fmt.Sprintf(" (%d datasets)", len(n.Attachments))
	}
	return name + " " + p.paint(metaStyle, meta)
}

// renderTree draws every view as an indented tree
func renderTree(res *plmxml.Result, styled bool) string {
	p := painter(styled)
	var b strings.Builder

	if h, ok := res.Header(); ok {
		b.WriteString(p.paint(metaStyle, fmt.Sprintf("PLMXML %s by %s on %s %s", h.SchemaVersion, h.Author, h.Date, h.Time)))
		b.WriteString("\n")
	}
	if len(res.Views) == 0 {
		b.WriteString("No ProductView (BOM) data found.\n")
	}
	for _, v := range res.Views {
		title := "ProductView " + v.ProductView.ID
		if len(v.ProductView.RuleRefs) > 0 {
			title += " (rules: " + strings.Join(v.ProductView.RuleRefs, ", ") + ")"
		}
		b.WriteString("\n")
		b.WriteString(p.paint(titleStyle, title))
		b.WriteString("\n")
		for i, root := range v.Roots {
			writeBranch(&b, root, "", i == len(v.Roots)-1, p)
		}
	}
	if warnings := len(res.Warnings()); warnings > 0 {
		b.WriteString("\n")
		b.WriteString(p.paint(warnStyle, fmt.Sprintf("%d warnings, run \"plmxml diag\" for details", warnings)))
		b.WriteString("\n")
	}
	return b.String()
}

func writeBranch(b *strings.Builder, n *plmxml.Node, prefix string, last bool, p painter) {
	connector, childPrefix := "├── ", "│   "
	if last {
		connector, childPrefix = "└── ", "    "
	}
	b.WriteString(prefix + connector + nodeLabel(n, p) + "\n")
	for i, child := range n.Children {
		writeBranch(b, child, prefix+childPrefix, i == len(n.Children)-1, p)
	}
}

// nodeDetails renders the details pane of a node
func nodeDetails(n *plmxml.Node) string {
	row := bom.NodeRow(n, 0)
	lines := []string{
		"Name:        " + row.Name,
		"Occurrence:  " + n.ID,
		"Type:        " + row.ItemType,
		"Revision:    " + row.Revision,
		"Quantity:    " + row.Quantity,
	}
	if n.ProductID != "" {
		lines = append(lines, "Product ID:  "+n.ProductID)
	}
	if n.SequenceNumber != "" {
		lines = append(lines, "Sequence:    "+n.SequenceNumber)
	}
	if n.LastModDate != "" {
		lines = append(lines, "Modified:    "+n.LastModDate)
	}
	if n.Attributes.Len() > 0 {
		lines = append(lines, "", "Attributes:")
		n.Attributes.Range(func(k, v string) bool {
			lines = append(lines, "  "+k+" = "+v)
			return true
		})
	}
	if len(n.Attachments) > 0 {
		lines = append(lines, "", "Datasets:")
		for _, part := range strings.Split(bom.DatasetSummary(n), " | ") {
			lines = append(lines, "  "+part)
		}
	}
	return strings.Join(lines, "\n")
}
