package plmxml

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// scopeKind identifies the kind of record an open element created
type scopeKind uint8

const (
	scopeNone scopeKind = iota
	scopeProduct
	scopeRevision
	scopeOccurrence
	scopeForm
	scopeDataSet
	scopeAttributesInContext // <UserData type="AttributesInContext">
)

// valueScope is where a nested <UserValue> is routed to
type valueScope uint8

const (
	valueNone valueScope = iota
	valueRevision
	valueOccurrenceContext
	valueForm
)

// attributesInContext is the UserData type that routes values to the
// enclosing occurrence rather than to its revision.
const attributesInContext = "AttributesInContext"

// frame is one open element on the reader's stack
type frame struct {
	kind   scopeKind
	record any
}

// streamReader consumes element events and fills a Document. It keeps one
// frame per open element and nothing else from the XML tree.
type streamReader struct {
	doc    *Document
	cfg    *config
	diags  *diagnostics
	frames []frame
	seen   map[string]map[string]bool // table -> ids, for duplicate detection
	err    error                      // first fatal error raised by a handler
	header bool                       // a <PLMXML> root has been read
}

func newStreamReader(doc *Document, cfg *config, diags *diagnostics) *streamReader {
	return &streamReader{
		doc:   doc,
		cfg:   cfg,
		diags: diags,
		seen:  make(map[string]map[string]bool),
	}
}

// run drains src. Any error it returns is fatal for the parse.
func (r *streamReader) run(src eventSource) error {
	started := false
	for {
		ev, err := src.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch ev.kind {
		case eventStart:
			started = true
			r.start(&ev)
		case eventEnd:
			r.end()
		}
		if r.err != nil {
			return r.err
		}
		if r.cfg.headerOnly && r.header {
			return nil
		}
	}
	if !started {
		return fmt.Errorf("%w: no root element", ErrMalformed)
	}
	return nil
}

func (r *streamReader) push(kind scopeKind, record any) {
	r.frames = append(r.frames, frame{kind: kind, record: record})
}

func (r *streamReader) end() {
	if len(r.frames) > 0 {
		r.frames = r.frames[:len(r.frames)-1]
	}
}

// innermost returns the record of the nearest open frame of kind
func (r *streamReader) innermost(kind scopeKind) any {
	for i := len(r.frames) - 1; i >= 0; i-- {
		if r.frames[i].kind == kind {
			return r.frames[i].record
		}
	}
	return nil
}

// valueScope computes where a <UserValue> goes: the occurrence when inside
// an AttributesInContext block of an open occurrence, else the open
// revision, else the open form.
func (r *streamReader) valueScope() valueScope {
	if r.innermost(scopeAttributesInContext) != nil && r.innermost(scopeOccurrence) != nil {
		return valueOccurrenceContext
	}
	if r.innermost(scopeRevision) != nil {
		return valueRevision
	}
	if r.innermost(scopeForm) != nil {
		return valueForm
	}
	return valueNone
}

// claim registers id in table and reports whether the record may be stored.
func (r *streamReader) claim(table string, ev *event, id string) bool {
	ids := r.seen[table]
	if ids == nil {
		ids = make(map[string]bool)
		r.seen[table] = ids
	}
	if !ids[id] {
		ids[id] = true
		return true
	}
	if r.cfg.duplicates == DuplicateReject {
		r.err = fmt.Errorf("%w: %s '%s' at %s", ErrDuplicateID, ev.local, id, ev.pos)
		return false
	}
	r.diags.add(Diagnostic{
		Code:      CodeDuplicateID,
		Message:   fmt.Sprintf("Duplicate %s id '%s'; the later element replaces the earlier one", ev.local, id),
		Position:  ev.pos,
		Tag:       ev.local,
		Attribute: "id",
		Ref:       id,
	})
	return true
}

// requireID returns the element id, or reports it as skipped
func (r *streamReader) requireID(ev *event) (string, bool) {
	id := ev.attrValue("id")
	if id == "" {
		r.diags.add(Diagnostic{
			Code:      CodeMissingID,
			Message:   fmt.Sprintf("<%s> without id skipped", ev.local),
			Position:  ev.pos,
			Tag:       ev.local,
			Attribute: "id",
		})
		return "", false
	}
	return id, true
}

func (r *streamReader) start(ev *event) {
	if ev.space != Namespace {
		r.push(scopeNone, nil)
		return
	}
	r.cfg.recorder.ObserveElement(ev.local)

	switch ev.local {
	case "PLMXML":
		r.startRoot(ev)
	case "Header":
		r.startHeader(ev)
	case "Site":
		r.startSite(ev)
	case "ProductView":
		r.startProductView(ev)
	case "Occurrence":
		r.startOccurrence(ev)
	case "Product":
		r.startProduct(ev)
	case "ProductRevision":
		r.startRevision(ev)
	case "RevisionRule":
		r.startRevisionRule(ev)
	case "AssociatedAttachment":
		r.startAttachment(ev)
	case "Form":
		r.startForm(ev)
	case "DataSet":
		r.startDataSet(ev)
	case "ExternalFile":
		r.startExternalFile(ev)
	case "UserData":
		if ev.attrValue("type") == attributesInContext {
			r.push(scopeAttributesInContext, nil)
		} else {
			r.push(scopeNone, nil)
		}
	case "UserValue":
		r.userValue(ev)
		r.push(scopeNone, nil)
	case "ApplicationRef":
		r.applicationRef(ev)
		r.push(scopeNone, nil)
	default:
		r.push(scopeNone, nil)
	}
}

func (r *streamReader) startRoot(ev *event) {
	version := ev.attrValue("schemaVersion")
	if version == "" {
		version = "unknown"
	}
	info := &GeneralInfo{
		SchemaVersion: version,
		Author:        ev.attrValue("author"),
		Date:          ev.attrValue("date"),
		Time:          ev.attrValue("time"),
	}
	// the first root parsed for a schema version is kept
	if first, exists := r.doc.GeneralInfo[version]; exists {
		info = first
	} else {
		r.doc.generalOrder = append(r.doc.generalOrder, version)
		r.doc.GeneralInfo[version] = info
	}
	r.header = true
	r.push(scopeNone, info)
}

func (r *streamReader) startHeader(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("Header", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	tc := &TransferContext{ID: id, TransferContext: ev.attrValue("transferContext")}
	r.doc.TransferContexts[id] = tc
	r.push(scopeNone, tc)
}

func (r *streamReader) startSite(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("Site", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	site := &Site{ID: id, Name: ev.attrValue("name"), SiteID: ev.attrValue("siteId")}
	r.doc.Sites[id] = site
	r.push(scopeNone, site)
}

func (r *streamReader) startProductView(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("ProductView", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	pv := &ProductView{
		ID:                   id,
		RuleRefs:             splitRefs(ev.attrValue("ruleRefs")),
		PrimaryOccurrenceRef: stripRef(ev.attrValue("primaryOccurrenceRef")),
		RootRefs:             splitRefs(ev.attrValue("rootRefs")),
		Pos:                  ev.pos,
	}
	replaced := false
	for i, existing := range r.doc.ProductViews {
		if existing.ID == id {
			r.doc.ProductViews[i] = pv
			replaced = true
			break
		}
	}
	if !replaced {
		r.doc.ProductViews = append(r.doc.ProductViews, pv)
	}
	r.push(scopeNone, pv)
}

func (r *streamReader) startOccurrence(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("Occurrence", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	occ := &Occurrence{
		ID:                       id,
		InstancedRef:             stripRef(ev.attrValue("instancedRef")),
		AssociatedAttachmentRefs: splitRefs(ev.attrValue("associatedAttachmentRefs")),
		OccurrenceRefs:           splitRefs(ev.attrValue("occurrenceRefs")),
		Pos:                      ev.pos,
	}
	r.doc.Occurrences[id] = occ
	r.push(scopeOccurrence, occ)
}

func (r *streamReader) startProduct(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("Product", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	prod := &Product{
		ID:        id,
		ProductID: ev.attrValue("productId"),
		Name:      ev.attrValue("name"),
		SubType:   ev.attrValue("subType"),
		Pos:       ev.pos,
	}
	r.doc.Products[id] = prod
	r.push(scopeProduct, prod)
}

func (r *streamReader) startRevision(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("ProductRevision", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	rev := &ProductRevision{
		ID:        id,
		Name:      ev.attrValue("name"),
		SubType:   ev.attrValue("subType"),
		Revision:  ev.attrValue("revision"),
		MasterRef: stripRef(ev.attrValue("masterRef")),
		Pos:       ev.pos,
	}
	r.doc.ProductRevisions[id] = rev
	r.push(scopeRevision, rev)
}

func (r *streamReader) startRevisionRule(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("RevisionRule", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	rule := &RevisionRule{ID: id, Name: ev.attrValue("name")}
	r.doc.RevisionRules[id] = rule
	r.push(scopeNone, rule)
}

func (r *streamReader) startAttachment(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("AssociatedAttachment", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	att := &AssociatedAttachment{
		ID:            id,
		AttachmentRef: stripRef(ev.attrValue("attachmentRef")),
		Role:          ev.attrValue("role"),
		Pos:           ev.pos,
	}
	r.doc.AssociatedAttachments[id] = att
	r.push(scopeNone, att)
}

func (r *streamReader) startForm(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("Form", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	form := &Form{
		ID:       id,
		Name:     ev.attrValue("name"),
		SubType:  ev.attrValue("subType"),
		SubClass: ev.attrValue("subClass"),
		Pos:      ev.pos,
	}
	r.doc.Forms[id] = form
	r.push(scopeForm, form)
}

func (r *streamReader) startDataSet(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("DataSet", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	ds := &DataSet{
		ID:         id,
		Name:       ev.attrValue("name"),
		Type:       ev.attrValue("type"),
		Version:    ev.attrValue("version"),
		MemberRefs: splitRefs(ev.attrValue("memberRefs")),
		Pos:        ev.pos,
	}
	r.doc.DataSets[id] = ds
	r.push(scopeDataSet, ds)
}

func (r *streamReader) startExternalFile(ev *event) {
	id, ok := r.requireID(ev)
	if !ok || !r.claim("ExternalFile", ev, id) {
		r.push(scopeNone, nil)
		return
	}
	ef := &ExternalFile{
		ID:          id,
		Format:      ev.attrValue("format"),
		LocationRef: ev.attrValue("locationRef"),
		Pos:         ev.pos,
	}
	if ef.LocationRef != "" {
		abs, err := r.cfg.resolver(r.doc.BaseDir, ef.LocationRef)
		if err != nil {
			r.diags.add(Diagnostic{
				Code:      CodePathUnresolved,
				Message:   fmt.Sprintf("Could not resolve path for ExternalFile '%s': %v", id, err),
				Position:  ev.pos,
				Tag:       ev.local,
				Attribute: "locationRef",
				Ref:       ef.LocationRef,
				Referrer:  id,
			})
		} else {
			ef.AbsolutePath = abs
		}
	}
	r.doc.ExternalFiles[id] = ef
	r.push(scopeNone, ef)
}

func (r *streamReader) userValue(ev *event) {
	title := ev.attrValue("title")
	value, hasValue := ev.attr("value")
	if title == "" || !hasValue {
		r.diags.add(Diagnostic{
			Code:     CodeIncompleteValue,
			Message:  "<UserValue> without title or value skipped",
			Position: ev.pos,
			Tag:      ev.local,
		})
		return
	}

	switch r.valueScope() {
	case valueOccurrenceContext:
		occ := r.innermost(scopeOccurrence).(*Occurrence)
		switch title {
		case "SequenceNumber":
			occ.SequenceNumber = value
		case "Quantity":
			occ.Quantity = value
		default:
			occ.Attributes.Set(title, value)
		}
	case valueRevision:
		rev := r.innermost(scopeRevision).(*ProductRevision)
		switch title {
		case "object_string":
			rev.ObjectString = value
		case "last_mod_date":
			rev.LastModDate = value
		default:
			rev.Attributes.Set(title, value)
		}
	case valueForm:
		form := r.innermost(scopeForm).(*Form)
		form.Attributes.Set(title, value)
	}
}

func (r *streamReader) applicationRef(ev *event) {
	if version := ev.attrValue("version"); version != "" {
		if rev, ok := r.innermost(scopeRevision).(*ProductRevision); ok {
			rev.RevisionUID = version
		}
	}
	label := ev.attrValue("label")
	if label == "" {
		return
	}
	if prod, ok := r.innermost(scopeProduct).(*Product); ok {
		prod.UID = label
	} else if ds, ok := r.innermost(scopeDataSet).(*DataSet); ok {
		ds.UID = label
	} else if form, ok := r.innermost(scopeForm).(*Form); ok {
		form.UID = label
	}
}

func (r *streamReader) logSummary() {
	r.cfg.logger.Debug("stream pass complete",
		zap.Int("occurrences", len(r.doc.Occurrences)),
		zap.Int("revisions", len(r.doc.ProductRevisions)),
		zap.Int("products", len(r.doc.Products)),
		zap.Int("datasets", len(r.doc.DataSets)),
		zap.Int("files", len(r.doc.ExternalFiles)),
		zap.Int("views", len(r.doc.ProductViews)),
	)
}
