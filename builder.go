package plmxml

import (
	"fmt"
)

// Node is a resolved occurrence. It refers to, but never modifies, the
// records of the Document it was built from.
type Node struct {
	Occurrence *Occurrence

	ID          string
	DisplayName string // object string when present, else revision name
	Name        string
	SubType     string
	Revision    string
	LastModDate string
	ProductID   string // only set when the revision's master Product resolves

	SequenceNumber string
	Quantity       string
	Attributes     Attributes

	Attachments []AttachmentDetail
	Children    []*Node
}

// IsAssembly reports whether the node has resolved children
func (n *Node) IsAssembly() bool {
	return len(n.Children) > 0
}

// AttachmentDetail is one resolved attachment → dataset link
type AttachmentDetail struct {
	AttachmentID string
	Role         string
	DataSetID    string
	// DataSet is never nil in a parsed Result: attachments whose target is
	// not a known DataSet are dropped with a warning. Nodes built by hand
	// may leave it nil.
	DataSet *DataSet
	Files        []FileRef // in dataset member order
}

// FileRef is a dataset member; File is nil when the member does not resolve
type FileRef struct {
	ID   string
	File *ExternalFile
}

// View is a ProductView with its resolved root occurrences
type View struct {
	ProductView *ProductView
	Roots       []*Node
}

// builder resolves occurrence trees. resolving holds the ids on the active
// recursion path. arena holds nodes whose subtree had no cycle cut, so they
// are the same from every path and can be shared; resolved counts every
// occurrence reached.
type builder struct {
	doc       *Document
	diags     *diagnostics
	arena     map[string]*Node
	resolving map[string]bool
	resolved  map[string]bool
}

func newBuilder(doc *Document, diags *diagnostics) *builder {
	return &builder{
		doc:       doc,
		diags:     diags,
		arena:     make(map[string]*Node),
		resolving: make(map[string]bool),
		resolved:  make(map[string]bool),
	}
}

// buildViews resolves every ProductView in document order
func (b *builder) buildViews() []View {
	views := make([]View, 0, len(b.doc.ProductViews))
	for _, pv := range b.doc.ProductViews {
		view := View{ProductView: pv, Roots: []*Node{}}
		for _, rootID := range pv.RootIDs() {
			occ, ok := b.doc.Occurrences[rootID]
			if !ok {
				b.diags.add(Diagnostic{
					Code:      CodeRootMissing,
					Message:   fmt.Sprintf("Root occurrence '%s' not found for ProductView '%s'", rootID, pv.ID),
					Position:  pv.Pos,
					Tag:       "ProductView",
					Attribute: "rootRefs",
					Ref:       rootID,
					Referrer:  pv.ID,
				})
				continue
			}
			root, _ := b.build(occ)
			view.Roots = append(view.Roots, root)
		}
		views = append(views, view)
	}
	return views
}

// build resolves occ and its subtree. truncated reports a cycle cut
// somewhere below occ; such a subtree depends on the path it was reached by
// and is rebuilt for every path instead of being shared.
func (b *builder) build(occ *Occurrence) (n *Node, truncated bool) {
	if shared, ok := b.arena[occ.ID]; ok {
		return shared, false
	}
	// link problems belong to the record, not the path; report them once
	first := !b.resolved[occ.ID]
	b.resolved[occ.ID] = true
	b.resolving[occ.ID] = true
	defer delete(b.resolving, occ.ID)

	n = &Node{
		Occurrence:     occ,
		ID:             occ.ID,
		SequenceNumber: occ.SequenceNumber,
		Quantity:       occ.Quantity,
		Attributes:     occ.Attributes,
		Children:       []*Node{},
	}
	b.linkRevision(n, occ, first)
	b.linkAttachments(n, occ, first)

	for _, childID := range occ.OccurrenceRefs {
		if b.resolving[childID] {
			b.diags.add(Diagnostic{
				Code:      CodeCycle,
				Message:   fmt.Sprintf("Occurrence '%s' refers back to its ancestor '%s'", occ.ID, childID),
				Position:  occ.Pos,
				Tag:       "Occurrence",
				Attribute: "occurrenceRefs",
				Ref:       childID,
				Referrer:  occ.ID,
			})
			truncated = true
			continue
		}
		child, ok := b.doc.Occurrences[childID]
		if !ok {
			b.report(first, Diagnostic{
				Code:      CodeChildMissing,
				Message:   fmt.Sprintf("Child occurrence '%s' referenced by '%s' not found", childID, occ.ID),
				Position:  occ.Pos,
				Tag:       "Occurrence",
				Attribute: "occurrenceRefs",
				Ref:       childID,
				Referrer:  occ.ID,
			})
			continue
		}
		c, cut := b.build(child)
		truncated = truncated || cut
		n.Children = append(n.Children, c)
	}

	if !truncated {
		b.arena[occ.ID] = n
	}
	return n, truncated
}

// report records d when first is set
func (b *builder) report(first bool, d Diagnostic) {
	if first {
		b.diags.add(d)
	}
}

// linkRevision copies display fields from the instanced revision and its product
func (b *builder) linkRevision(n *Node, occ *Occurrence, first bool) {
	if occ.InstancedRef == "" {
		return
	}
	rev, ok := b.doc.ProductRevisions[occ.InstancedRef]
	if !ok {
		b.report(first, Diagnostic{
			Code:      CodeRevisionMissing,
			Message:   fmt.Sprintf("ProductRevision '%s' instanced by '%s' not found", occ.InstancedRef, occ.ID),
			Position:  occ.Pos,
			Tag:       "Occurrence",
			Attribute: "instancedRef",
			Ref:       occ.InstancedRef,
			Referrer:  occ.ID,
		})
		return
	}

	n.DisplayName = rev.ObjectString
	if n.DisplayName == "" {
		n.DisplayName = rev.Name
	}
	n.Name = rev.Name
	n.SubType = rev.SubType
	n.Revision = rev.Revision
	n.LastModDate = rev.LastModDate

	if rev.MasterRef == "" {
		return
	}
	prod, ok := b.doc.Products[rev.MasterRef]
	if !ok {
		b.report(first, Diagnostic{
			Code:      CodeMasterMissing,
			Message:   fmt.Sprintf("Product '%s' referenced by ProductRevision '%s' not found", rev.MasterRef, rev.ID),
			Position:  rev.Pos,
			Tag:       "ProductRevision",
			Attribute: "masterRef",
			Ref:       rev.MasterRef,
			Referrer:  rev.ID,
		})
		return
	}
	n.ProductID = prod.ProductID
}

// linkAttachments resolves the occurrence's attachments to datasets, in
// attachment reference order
func (b *builder) linkAttachments(n *Node, occ *Occurrence, first bool) {
	for _, attID := range occ.AssociatedAttachmentRefs {
		att, ok := b.doc.AssociatedAttachments[attID]
		if !ok {
			b.report(first, Diagnostic{
				Code:      CodeAttachmentMissing,
				Message:   fmt.Sprintf("AssociatedAttachment '%s' referenced by '%s' not found", attID, occ.ID),
				Position:  occ.Pos,
				Tag:       "Occurrence",
				Attribute: "associatedAttachmentRefs",
				Ref:       attID,
				Referrer:  occ.ID,
			})
			continue
		}
		ds, ok := b.doc.DataSets[att.AttachmentRef]
		if !ok {
			b.report(first, Diagnostic{
				Code:      CodeNotDataSet,
				Message:   fmt.Sprintf("Attachment '%s' of '%s' does not point to a known DataSet ('%s')", attID, occ.ID, att.AttachmentRef),
				Position:  att.Pos,
				Tag:       "AssociatedAttachment",
				Attribute: "attachmentRef",
				Ref:       att.AttachmentRef,
				Referrer:  attID,
			})
			continue
		}

		detail := AttachmentDetail{
			AttachmentID: attID,
			Role:         att.Role,
			DataSetID:    ds.ID,
			DataSet:      ds,
			Files:        make([]FileRef, 0, len(ds.MemberRefs)),
		}
		for _, member := range ds.MemberRefs {
			ef, ok := b.doc.ExternalFiles[member]
			if !ok {
				b.report(first, Diagnostic{
					Code:      CodeMemberMissing,
					Message:   fmt.Sprintf("ExternalFile '%s' of DataSet '%s' not found", member, ds.ID),
					Position:  ds.Pos,
					Tag:       "DataSet",
					Attribute: "memberRefs",
					Ref:       member,
					Referrer:  ds.ID,
				})
			}
			detail.Files = append(detail.Files, FileRef{ID: member, File: ef})
		}
		n.Attachments = append(n.Attachments, detail)
	}
}
