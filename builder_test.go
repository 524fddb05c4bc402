package plmxml

import (
	"reflect"
	"testing"
)

func childIDs(n *Node) []string {
	ids := []string{}
	for _, c := range n.Children {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestBuildCycleIsTruncated(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantTree []string
		referrer string
		ref      string
	}{
		{
			name:     "self reference",
			body:     `<ProductView id="pv" rootRefs="a"/><Occurrence id="a" occurrenceRefs="a"/>`,
			wantTree: []string{"0:a"},
			referrer: "a",
			ref:      "a",
		},
		{
			name:     "two node loop",
			body:     `<ProductView id="pv" rootRefs="a"/><Occurrence id="a" occurrenceRefs="b"/><Occurrence id="b" occurrenceRefs="a"/>`,
			wantTree: []string{"0:a", "1:b"},
			referrer: "b",
			ref:      "a",
		},
		{
			name: "loop below the root",
			body: `<ProductView id="pv" rootRefs="r"/><Occurrence id="r" occurrenceRefs="a"/>` +
				`<Occurrence id="a" occurrenceRefs="b"/><Occurrence id="b" occurrenceRefs="c"/><Occurrence id="c" occurrenceRefs="a"/>`,
			wantTree: []string{"0:r", "1:a", "2:b", "3:c"},
			referrer: "c",
			ref:      "a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustParse(t, doc(tt.body))
			var tree []string
			res.Views[0].Walk(func(n, _ *Node, depth int) bool {
				tree = append(tree, string(rune('0'+depth))+":"+n.ID)
				return true
			})
			if !reflect.DeepEqual(tree, tt.wantTree) {
				t.Fatalf("tree = %v, want %v", tree, tt.wantTree)
			}
			if len(res.Diagnostics) != 1 || res.Diagnostics[0].Code != CodeCycle {
				t.Fatalf("diagnostics = %v, want one cycle", codes(res.Diagnostics))
			}
			d := res.Diagnostics[0]
			if d.Referrer != tt.referrer || d.Ref != tt.ref {
				t.Fatalf("cycle diagnostic ref=%q referrer=%q", d.Ref, d.Referrer)
			}
		})
	}
}

// viewTree renders every view as depth:id lines
func viewTree(res *Result) [][]string {
	trees := make([][]string, len(res.Views))
	res.Walk(func(view int, n, _ *Node, depth int) bool {
		trees[view] = append(trees[view], string(rune('0'+depth))+":"+n.ID)
		return true
	})
	return trees
}

func TestBuildCycleCutDependsOnPath(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		trees    [][]string
		cycles   int
		resolved int
	}{
		{
			// c->b is a back edge under a->b->c but a real edge under a->c
			name: "loop reached from two siblings",
			body: `<ProductView id="pv" rootRefs="a"/><Occurrence id="a" occurrenceRefs="b c"/>` +
				`<Occurrence id="b" occurrenceRefs="c"/><Occurrence id="c" occurrenceRefs="b"/>`,
			trees:    [][]string{{"0:a", "1:b", "2:c", "1:c", "2:b"}},
			cycles:   2,
			resolved: 3,
		},
		{
			name: "loop entered from two views",
			body: `<ProductView id="pv1" rootRefs="a"/><ProductView id="pv2" rootRefs="b"/>` +
				`<Occurrence id="a" occurrenceRefs="b"/><Occurrence id="b" occurrenceRefs="a"/>`,
			trees:    [][]string{{"0:a", "1:b"}, {"0:b", "1:a"}},
			cycles:   2,
			resolved: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustParse(t, doc(tt.body))
			if got := viewTree(res); !reflect.DeepEqual(got, tt.trees) {
				t.Fatalf("trees = %v, want %v", got, tt.trees)
			}
			for _, d := range res.Diagnostics {
				if d.Code != CodeCycle {
					t.Fatalf("unexpected diagnostic %s", d.Code)
				}
			}
			if len(res.Diagnostics) != tt.cycles {
				t.Fatalf("cycle diagnostics = %d, want %d", len(res.Diagnostics), tt.cycles)
			}
			if res.OccurrencesResolved != tt.resolved {
				t.Fatalf("OccurrencesResolved = %d, want %d", res.OccurrencesResolved, tt.resolved)
			}
		})
	}
}

func TestBuildCycleReportsLinkProblemsOnce(t *testing.T) {
	// b is rebuilt for each path into the loop but its revision is missing once
	res := mustParse(t, doc(`
		<ProductView id="pv1" rootRefs="a"/>
		<ProductView id="pv2" rootRefs="b"/>
		<Occurrence id="a" occurrenceRefs="b"/>
		<Occurrence id="b" instancedRef="#ghost" occurrenceRefs="a"/>`))
	want := []string{CodeRevisionMissing, CodeCycle, CodeCycle}
	if got := codes(res.Diagnostics); !reflect.DeepEqual(got, want) {
		t.Fatalf("diagnostics = %v, want %v", got, want)
	}
	if res.OccurrencesResolved != 2 {
		t.Fatalf("OccurrencesResolved = %d, want 2", res.OccurrencesResolved)
	}
}

func TestBuildSharedChild(t *testing.T) {
	// A diamond is not a cycle: d is reachable twice and built once
	res := mustParse(t, doc(`
		<ProductView id="pv" rootRefs="a"/>
		<Occurrence id="a" occurrenceRefs="b c"/>
		<Occurrence id="b" occurrenceRefs="d"/>
		<Occurrence id="c" occurrenceRefs="d"/>
		<Occurrence id="d"/>`))
	if len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics = %v", codes(res.Diagnostics))
	}
	a := res.Views[0].Roots[0]
	if a.Children[0].Children[0] != a.Children[1].Children[0] {
		t.Fatal("shared occurrence should resolve to one node")
	}
	if res.OccurrencesResolved != 4 {
		t.Fatalf("OccurrencesResolved = %d", res.OccurrencesResolved)
	}
}

func TestBuildMissingReferences(t *testing.T) {
	res := mustParse(t, doc(`
		<ProductView id="pv" rootRefs="ghost a"/>
		<Occurrence id="a" instancedRef="#noRev" occurrenceRefs="b missing c" associatedAttachmentRefs="noAtt"/>
		<Occurrence id="b"/>
		<Occurrence id="c"/>`))

	roots := res.Views[0].Roots
	if len(roots) != 1 || roots[0].ID != "a" {
		t.Fatalf("roots = %d", len(roots))
	}
	a := roots[0]
	if !reflect.DeepEqual(childIDs(a), []string{"b", "c"}) {
		t.Fatalf("children = %v", childIDs(a))
	}
	if a.Name != "" || a.DisplayName != "" || len(a.Attachments) != 0 {
		t.Fatalf("unresolved revision must leave display fields empty: %+v", a)
	}

	want := []struct{ code, ref, referrer string }{
		{CodeRootMissing, "ghost", "pv"},
		{CodeRevisionMissing, "noRev", "a"},
		{CodeAttachmentMissing, "noAtt", "a"},
		{CodeChildMissing, "missing", "a"},
	}
	if len(res.Diagnostics) != len(want) {
		t.Fatalf("diagnostics = %v", codes(res.Diagnostics))
	}
	for i, w := range want {
		d := res.Diagnostics[i]
		if d.Code != w.code || d.Ref != w.ref || d.Referrer != w.referrer {
			t.Errorf("diagnostic %d = %s ref=%q referrer=%q, want %s ref=%q referrer=%q",
				i, d.Code, d.Ref, d.Referrer, w.code, w.ref, w.referrer)
		}
		if d.Severity != SeverityWarning {
			t.Errorf("diagnostic %d severity = %s", i, d.Severity)
		}
	}
}

func TestBuildRootFallback(t *testing.T) {
	tests := []struct {
		name  string
		view  string
		roots []string
	}{
		{"root refs", `<ProductView id="pv" rootRefs="#b #a" primaryOccurrenceRef="#a"/>`, []string{"b", "a"}},
		{"primary only", `<ProductView id="pv" primaryOccurrenceRef="#a"/>`, []string{"a"}},
		{"neither", `<ProductView id="pv"/>`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustParse(t, doc(tt.view+`<Occurrence id="a"/><Occurrence id="b"/>`))
			got := []string{}
			for _, r := range res.Views[0].Roots {
				got = append(got, r.ID)
			}
			if !reflect.DeepEqual(got, tt.roots) {
				t.Fatalf("roots = %v, want %v", got, tt.roots)
			}
		})
	}
}

func TestBuildDoesNotMutateRecords(t *testing.T) {
	res := mustParse(t, doc(`
		<ProductView id="pv" rootRefs="a"/>
		<Occurrence id="a" instancedRef="r" occurrenceRefs="b ghost"/>
		<Occurrence id="b"/>
		<ProductRevision id="r" name="Thing" revision="C"/>`))
	occ := res.Document.Occurrences["a"]
	if !reflect.DeepEqual(occ.OccurrenceRefs, []string{"b", "ghost"}) {
		t.Fatalf("record child refs changed: %v", occ.OccurrenceRefs)
	}
	n := res.Views[0].Roots[0]
	if n.Occurrence != occ || n.DisplayName != "Thing" || n.Revision != "C" {
		t.Fatalf("node = %+v", n)
	}
	if !n.IsAssembly() || n.Children[0].IsAssembly() {
		t.Fatal("assembly flags wrong")
	}
}

func TestBuildAttachmentOrder(t *testing.T) {
	res := mustParse(t, doc(`
		<ProductView id="pv" rootRefs="o"/>
		<Occurrence id="o" associatedAttachmentRefs="#a2 #a1"/>
		<AssociatedAttachment id="a1" attachmentRef="#d1" role="First"/>
		<AssociatedAttachment id="a2" attachmentRef="#d2" role="Second"/>
		<DataSet id="d1" name="one" memberRefs="f2 f1"/>
		<DataSet id="d2" name="two"/>
		<ExternalFile id="f1" locationRef="x/1.jt" format="jt"/>
		<ExternalFile id="f2" locationRef="x/2.pdf" format="pdf"/>`))
	o := res.Views[0].Roots[0]
	if len(o.Attachments) != 2 || o.Attachments[0].Role != "Second" || o.Attachments[1].Role != "First" {
		t.Fatalf("attachments = %+v", o.Attachments)
	}
	files := o.Attachments[1].Files
	if len(files) != 2 || files[0].ID != "f2" || files[1].ID != "f1" || files[0].File.Format != "pdf" {
		t.Fatalf("files = %+v", files)
	}
	if len(o.Attachments[0].Files) != 0 {
		t.Fatalf("dataset without members should have no files")
	}
	if len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics = %v", codes(res.Diagnostics))
	}
}

func TestBuildDropsNonDataSetAttachments(t *testing.T) {
	res, err := ParseFile(assemblyFixture)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	res.Walk(func(_ int, n, _ *Node, _ int) bool {
		for _, att := range n.Attachments {
			if att.DataSet == nil {
				t.Errorf("%s: attachment %s has no dataset", n.ID, att.AttachmentID)
			}
		}
		return true
	})

	// occ3 refers to a Form (att3) and a DataSet (att4); only the DataSet stays
	occ3 := res.Views[1].Roots[0]
	if len(occ3.Attachments) != 1 || occ3.Attachments[0].AttachmentID != "att4" {
		t.Fatalf("occ3 attachments = %+v", occ3.Attachments)
	}
}
