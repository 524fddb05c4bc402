package plmxml

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Diagnostic represents a rustc-style, non-fatal parse or link diagnostic
type Diagnostic struct {
	Severity  Severity `json:"severity"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Position  Position `json:"position"`
	Tag       string   `json:"tag,omitempty"`
	Attribute string   `json:"attribute,omitempty"`
	Ref       string   `json:"ref,omitempty"`      // offending identifier
	Referrer  string   `json:"referrer,omitempty"` // id of the record holding the reference
	Hints     []string `json:"hints,omitempty"`
}

// Severity represents the severity level of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Position contains source position information for an element
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int64  `json:"offset"`
}

// String formats the position as file:line:column
func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Diagnostic codes
const (
	CodeDuplicateID       = "plm-duplicate-id"
	CodeMissingID         = "plm-missing-id"
	CodeIncompleteValue   = "plm-value-incomplete"
	CodePathUnresolved    = "plm-path-unresolved"
	CodeRootMissing       = "plm-root-missing"
	CodeChildMissing      = "plm-child-missing"
	CodeRevisionMissing   = "plm-revision-missing"
	CodeMasterMissing     = "plm-master-missing"
	CodeAttachmentMissing = "plm-attachment-missing"
	CodeNotDataSet        = "plm-attachment-not-dataset"
	CodeMemberMissing     = "plm-member-missing"
	CodeCycle             = "plm-cycle"
)

// severityFor determines the severity based on the code
func severityFor(code string) Severity {
	switch code {
	case CodeMissingID, CodeIncompleteValue:
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// hintsFor creates helpful hints based on the diagnostic
func hintsFor(d Diagnostic) []string {
	switch d.Code {
	case CodeDuplicateID:
		return []string{
			"Each id attribute value must be unique within the document",
			"The later element replaced the earlier one",
		}
	case CodeRootMissing, CodeChildMissing:
		return []string{
			fmt.Sprintf("Ensure there is an <Occurrence> with id='%s' in the document", d.Ref),
			"References may not span multiple files",
		}
	case CodeRevisionMissing:
		return []string{fmt.Sprintf("Ensure there is a <ProductRevision> with id='%s'", d.Ref)}
	case CodeMasterMissing:
		return []string{fmt.Sprintf("Ensure there is a <Product> with id='%s'", d.Ref)}
	case CodeAttachmentMissing:
		return []string{fmt.Sprintf("Ensure there is an <AssociatedAttachment> with id='%s'", d.Ref)}
	case CodeNotDataSet:
		return []string{"Only attachments that point to a <DataSet> are shown in the BOM"}
	case CodeCycle:
		return []string{"The occurrence graph loops back to an ancestor; the back reference was dropped"}
	case CodePathUnresolved:
		return []string{"Check the locationRef attribute of the <ExternalFile>"}
	}
	return nil
}

// diagnostics collects diagnostics and forwards them to the logger and recorder
type diagnostics struct {
	file   string
	list   []Diagnostic
	logger *zap.Logger
	rec    Recorder
}

func (c *diagnostics) add(d Diagnostic) {
	if d.Severity == "" {
		d.Severity = severityFor(d.Code)
	}
	if d.Position.File == "" {
		d.Position.File = c.file
	}
	if d.Hints == nil {
		d.Hints = hintsFor(d)
	}
	c.list = append(c.list, d)

	fields := []zap.Field{
		zap.String("code", d.Code),
		zap.String("ref", d.Ref),
		zap.String("referrer", d.Referrer),
		zap.Int("line", d.Position.Line),
	}
	if d.Severity == SeverityInfo {
		c.logger.Debug(d.Message, fields...)
	} else {
		c.logger.Warn(d.Message, fields...)
	}
	c.rec.ObserveDiagnostic(d.Code)
}

// ErrorFormatter provides rustc-style diagnostic formatting
type ErrorFormatter struct {
	Color        bool
	ContextLines int
}

// Format formats a diagnostic in rustc style. source may be empty, in
// which case no source context is printed.
func (ef *ErrorFormatter) Format(diag Diagnostic, source string) string {
	var sb strings.Builder

	severity := string(diag.Severity)
	if ef.Color {
		switch diag.Severity {
		case SeverityError:
			severity = "\033[31;1merror\033[0m"
		case SeverityWarning:
			severity = "\033[33;1mwarning\033[0m"
		case SeverityInfo:
			severity = "\033[36;1minfo\033[0m"
		}
	}

	sb.WriteString(fmt.Sprintf("%s[%s]: %s\n", severity, diag.Code, diag.Message))
	sb.WriteString(fmt.Sprintf(" --> %s\n", diag.Position))

	if source != "" && diag.Position.Line > 0 {
		lines := strings.Split(source, "\n")
		if diag.Position.Line <= len(lines) {
			first := diag.Position.Line - ef.ContextLines
			if first < 1 {
				first = 1
			}
			for n := first; n <= diag.Position.Line; n++ {
				sb.WriteString(fmt.Sprintf("%4d | %s\n", n, strings.TrimRight(lines[n-1], "\r")))
			}

			sb.WriteString("     | ")
			if diag.Position.Column > 0 {
				sb.WriteString(strings.Repeat(" ", diag.Position.Column-1))
				if ef.Color {
					sb.WriteString("\033[31;1m^\033[0m")
				} else {
					sb.WriteString("^")
				}
				if diag.Attribute != "" {
					sb.WriteString(strings.Repeat("~", len(diag.Attribute)))
				}
			}
			sb.WriteString("\n")
		}
	}

	if len(diag.Hints) > 0 {
		sb.WriteString("     |\n")
		for _, hint := range diag.Hints {
			sb.WriteString("     = help: " + hint + "\n")
		}
	}

	if diag.Referrer != "" {
		sb.WriteString("     = note: referenced from '" + diag.Referrer + "'\n")
	}

	return sb.String()
}
