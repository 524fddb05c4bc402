package plmxml

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/agentflare-ai/go-xmldom"
	"go.uber.org/zap"
)

var (
	// ErrSource is returned when the document cannot be opened or read
	ErrSource = errors.New("plmxml: source unavailable")
	// ErrMalformed is returned when the XML stream cannot be recovered
	ErrMalformed = errors.New("plmxml: malformed document")
	// ErrDuplicateID is returned for a repeated id under DuplicateReject
	ErrDuplicateID = errors.New("plmxml: duplicate id")
)

// Result is the outcome of a successful parse
type Result struct {
	Document    *Document
	Views       []View // one per ProductView, in document order
	Diagnostics []Diagnostic

	// OccurrencesResolved counts distinct occurrences reachable from any view
	OccurrencesResolved int
}

// Header returns the document header, see Document.Header
func (r *Result) Header() (Header, bool) {
	return r.Document.Header()
}

// DataSet looks up a DataSet record by id
func (r *Result) DataSet(id string) (*DataSet, bool) {
	ds, ok := r.Document.DataSets[id]
	return ds, ok
}

// ExternalFile looks up an ExternalFile record by id
func (r *Result) ExternalFile(id string) (*ExternalFile, bool) {
	ef, ok := r.Document.ExternalFiles[id]
	return ef, ok
}

// Warnings returns the diagnostics of warning severity or above
func (r *Result) Warnings() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity != SeverityInfo {
			out = append(out, d)
		}
	}
	return out
}

// Walk visits every view in order, see View.Walk
func (r *Result) Walk(fn func(view int, n, parent *Node, depth int) bool) {
	for i := range r.Views {
		r.Views[i].Walk(func(n, parent *Node, depth int) bool {
			return fn(i, n, parent, depth)
		})
	}
}

// Walk visits the view's nodes depth-first in pre-order, roots at depth 0.
// Returning false from fn skips the children of n. A node shared by several
// parents is visited once per parent.
func (v View) Walk(fn func(n, parent *Node, depth int) bool) {
	type item struct {
		node, parent *Node
		depth        int
	}
	stack := make([]item, 0, len(v.Roots))
	for i := len(v.Roots) - 1; i >= 0; i-- {
		stack = append(stack, item{node: v.Roots[i]})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(it.node, it.parent, it.depth) {
			continue
		}
		for i := len(it.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{node: it.node.Children[i], parent: it.node, depth: it.depth + 1})
		}
	}
}

// Parse streams a PLMXML document from r and resolves its product views.
// ExternalFile locations resolve against WithBaseDir, or the working
// directory when unset.
func Parse(r io.Reader, opts ...Option) (*Result, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil reader", ErrSource)
	}
	cfg := newConfig(opts)
	tr := &trackingReader{r: r}
	return parse(cfg, newStreamSource(tr, cfg.fileName), tr)
}

// ParseFile parses the document at path. ExternalFile locations resolve
// against the directory containing it.
func ParseFile(path string, opts ...Option) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSource, err)
	}
	defer f.Close()

	defaults := []Option{WithBaseDir(filepath.Dir(path)), WithFileName(path)}
	return Parse(f, append(defaults, opts...)...)
}

// ParseDOM replays an already loaded document through the same reader
func ParseDOM(doc xmldom.Document, opts ...Option) (*Result, error) {
	cfg := newConfig(opts)
	src, err := newDOMSource(doc, cfg.fileName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return parse(cfg, src, nil)
}

// ReadHeader returns the <PLMXML> root attributes of the document at path
// without reading past the root start tag. A document with no PLMXML root
// yields a zero Header.
func ReadHeader(path string, opts ...Option) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrSource, err)
	}
	defer f.Close()

	cfg := newConfig(append([]Option{WithFileName(path)}, opts...))
	cfg.headerOnly = true
	tr := &trackingReader{r: f}
	doc := newDocument(filepath.Dir(path))
	diags := &diagnostics{file: cfg.fileName, logger: cfg.logger, rec: cfg.recorder}
	if err := newStreamReader(doc, cfg, diags).run(newStreamSource(tr, cfg.fileName)); err != nil {
		return Header{}, sourceError(tr, err)
	}
	h, _ := doc.Header()
	return h, nil
}

func parse(cfg *config, src eventSource, tr *trackingReader) (*Result, error) {
	start := time.Now()
	base := cfg.baseDir
	if base == "" {
		base = "."
	}
	doc := newDocument(base)
	diags := &diagnostics{file: cfg.fileName, logger: cfg.logger, rec: cfg.recorder}
	cfg.logger.Debug("parse started", zap.String("file", cfg.fileName), zap.String("base", base))

	reader := newStreamReader(doc, cfg, diags)
	if err := reader.run(src); err != nil {
		err = sourceError(tr, err)
		cfg.recorder.ObserveParse("error", time.Since(start), 0)
		cfg.logger.Debug("parse failed", zap.Error(err))
		return nil, err
	}
	reader.logSummary()

	b := newBuilder(doc, diags)
	res := &Result{
		Document: doc,
		Views:    b.buildViews(),
	}
	res.Diagnostics = diags.list
	res.OccurrencesResolved = len(b.resolved)

	cfg.recorder.ObserveParse("ok", time.Since(start), res.OccurrencesResolved)
	cfg.logger.Debug("parse finished",
		zap.Int("views", len(res.Views)),
		zap.Int("occurrences_resolved", res.OccurrencesResolved),
		zap.Int("diagnostics", len(res.Diagnostics)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// trackingReader remembers the first read failure so it can be told apart
// from a syntax error reported by the decoder.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}

func sourceError(tr *trackingReader, err error) error {
	if tr != nil && tr.err != nil {
		return fmt.Errorf("%w: %w", ErrSource, tr.err)
	}
	return err
}
