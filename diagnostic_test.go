package plmxml

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorFormatter(t *testing.T) {
	source := "<PLMXML>\n  <Occurrence id=\"a\" occurrenceRefs=\"b\"/>\n</PLMXML>"
	diag := Diagnostic{
		Severity:  SeverityWarning,
		Code:      CodeChildMissing,
		Message:   "Child occurrence 'b' referenced by 'a' not found",
		Position:  Position{File: "doc.xml", Line: 2, Column: 3},
		Attribute: "occurrenceRefs",
		Ref:       "b",
		Referrer:  "a",
	}
	diag.Hints = hintsFor(diag)

	ef := &ErrorFormatter{ContextLines: 1}
	out := ef.Format(diag, source)

	for _, want := range []string{
		"warning[plm-child-missing]: Child occurrence 'b' referenced by 'a' not found",
		" --> doc.xml:2:3",
		"   1 | <PLMXML>",
		"   2 |   <Occurrence id=\"a\" occurrenceRefs=\"b\"/>",
		"     |   ^~~~~~~~~~~~~~~",
		"= help: Ensure there is an <Occurrence> with id='b' in the document",
		"= note: referenced from 'a'",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("colour codes without Color")
	}

	ef.Color = true
	if out := ef.Format(diag, ""); !strings.Contains(out, "\033[33;1mwarning\033[0m") || strings.Contains(out, " | ") {
		t.Errorf("unexpected coloured output without source:\n%s", out)
	}
}

func TestDiagnosticsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	res := mustParse(t, doc(`<ProductView id="pv" rootRefs="ghost"/><Product/>`), WithLogger(zap.New(core)), WithFileName("in.xml"))

	if len(res.Diagnostics) != 2 {
		t.Fatalf("diagnostics = %v", codes(res.Diagnostics))
	}
	for _, d := range res.Diagnostics {
		if d.Position.File != "in.xml" || d.Position.Line == 0 {
			t.Errorf("diagnostic position = %+v", d.Position)
		}
	}

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).FilterField(zap.String("code", CodeRootMissing))
	if warnings.Len() != 1 {
		t.Fatalf("root-missing warnings logged = %d", warnings.Len())
	}
	if logs.FilterLevelExact(zapcore.DebugLevel).FilterField(zap.String("code", CodeMissingID)).Len() != 1 {
		t.Fatal("missing id note should be logged at debug")
	}
	if logs.FilterMessage("parse finished").Len() != 1 {
		t.Fatal("parse summary not logged")
	}
}
