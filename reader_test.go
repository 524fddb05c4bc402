package plmxml

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestStripAndSplitRefs(t *testing.T) {
	if got := stripRef("#id1"); got != "id1" {
		t.Errorf("stripRef(#id1) = %q", got)
	}
	if got := stripRef("id1"); got != "id1" {
		t.Errorf("stripRef(id1) = %q", got)
	}
	if got := stripRef("##id1"); got != "#id1" {
		t.Errorf("stripRef(##id1) = %q", got)
	}

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"#a", []string{"a"}},
		{"#a b\t#c\n d", []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		if got := splitRefs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitRefs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestUserValueRouting(t *testing.T) {
	res := mustParse(t, doc(`
		<ProductRevision id="r1" name="Plain">
			<UserData>
				<UserValue title="object_string" value="Display"/>
				<UserValue title="color" value="red"/>
				<UserValue title="empty" value=""/>
				<UserValue title="no-value"/>
				<UserValue value="no-title"/>
			</UserData>
		</ProductRevision>
		<Occurrence id="o1" instancedRef="#r1">
			<UserData>
				<UserValue title="ignored" value="outside context"/>
			</UserData>
			<UserData type="AttributesInContext">
				<UserValue title="Quantity" value="3"/>
				<UserValue title="SequenceNumber" value="30"/>
				<UserValue title="Note" value="first"/>
				<UserValue title="Note" value="second"/>
			</UserData>
			<UserValue title="after" value="context closed"/>
		</Occurrence>
		<Form id="f1">
			<UserData><UserValue title="k" value="v"/></UserData>
		</Form>
		<UserData type="AttributesInContext">
			<UserValue title="orphan" value="nowhere"/>
		</UserData>`))

	rev := res.Document.ProductRevisions["r1"]
	if rev.ObjectString != "Display" {
		t.Errorf("ObjectString = %q", rev.ObjectString)
	}
	if got := rev.Attributes.String(); got != "color=red; empty=" {
		t.Errorf("revision attributes = %q", got)
	}

	occ := res.Document.Occurrences["o1"]
	if occ.Quantity != "3" || occ.SequenceNumber != "30" {
		t.Errorf("occurrence quantity/sequence = %q/%q", occ.Quantity, occ.SequenceNumber)
	}
	if got := occ.Attributes.String(); got != "Note=second" {
		t.Errorf("occurrence attributes = %q", got)
	}

	if v, _ := res.Document.Forms["f1"].Attributes.Get("k"); v != "v" {
		t.Errorf("form attribute = %q", v)
	}

	var incomplete int
	for _, d := range res.Diagnostics {
		if d.Code == CodeIncompleteValue {
			incomplete++
			if d.Severity != SeverityInfo {
				t.Errorf("incomplete value severity = %s", d.Severity)
			}
		}
	}
	if incomplete != 2 {
		t.Errorf("incomplete value diagnostics = %d, want 2", incomplete)
	}
}

func TestRevisionInsideOccurrenceContext(t *testing.T) {
	// The occurrence context outranks an enclosing revision
	res := mustParse(t, doc(`
		<ProductRevision id="r1">
			<Occurrence id="o1">
				<UserData type="AttributesInContext">
					<UserValue title="Quantity" value="2"/>
				</UserData>
				<UserValue title="rev-attr" value="x"/>
			</Occurrence>
		</ProductRevision>`))
	if got := res.Document.Occurrences["o1"].Quantity; got != "2" {
		t.Errorf("Quantity = %q", got)
	}
	if v, ok := res.Document.ProductRevisions["r1"].Attributes.Get("rev-attr"); !ok || v != "x" {
		t.Errorf("revision attribute = %q, %v", v, ok)
	}
	if _, ok := res.Document.ProductRevisions["r1"].Attributes.Get("Quantity"); ok {
		t.Error("Quantity leaked into the revision")
	}
}

func TestNestedScopesRestore(t *testing.T) {
	res := mustParse(t, doc(`
		<Occurrence id="outer">
			<Occurrence id="inner">
				<UserData type="AttributesInContext">
					<UserValue title="Quantity" value="7"/>
				</UserData>
			</Occurrence>
			<UserData type="AttributesInContext">
				<UserValue title="Quantity" value="5"/>
			</UserData>
		</Occurrence>
		<Product id="p1">
			<DataSet id="d1"><ApplicationRef label="ds-label"/></DataSet>
			<ApplicationRef label="prod-label"/>
		</Product>`))

	if got := res.Document.Occurrences["inner"].Quantity; got != "7" {
		t.Errorf("inner Quantity = %q", got)
	}
	if got := res.Document.Occurrences["outer"].Quantity; got != "5" {
		t.Errorf("outer Quantity = %q", got)
	}
	// Product is checked before DataSet, so both labels land on the product
	if got := res.Document.Products["p1"].UID; got != "prod-label" {
		t.Errorf("product UID = %q", got)
	}
	if got := res.Document.DataSets["d1"].UID; got != "" {
		t.Errorf("dataset UID = %q", got)
	}
}

func TestMissingID(t *testing.T) {
	res := mustParse(t, doc(`
		<Occurrence instancedRef="#r1">
			<UserData type="AttributesInContext">
				<UserValue title="Quantity" value="9"/>
			</UserData>
		</Occurrence>
		<Product name="anonymous"/>`))
	if len(res.Document.Occurrences) != 0 || len(res.Document.Products) != 0 {
		t.Fatal("elements without id must be skipped")
	}
	if got := codes(res.Diagnostics); !reflect.DeepEqual(got, []string{CodeMissingID, CodeMissingID}) {
		t.Fatalf("diagnostics = %v", got)
	}
}

func TestDuplicateIDs(t *testing.T) {
	body := doc(`
		<ProductView id="pv" rootRefs="a"/>
		<Occurrence id="a" instancedRef="#r1"/>
		<Occurrence id="a" instancedRef="#r2"/>
		<ProductRevision id="r1" name="first"/>
		<ProductRevision id="r2" name="second"/>
		<ProductView id="pv" rootRefs="a"/>`)

	t.Run("last wins", func(t *testing.T) {
		res := mustParse(t, body)
		if got := res.Document.Occurrences["a"].InstancedRef; got != "r2" {
			t.Fatalf("InstancedRef = %q, want r2", got)
		}
		if len(res.Views) != 1 || res.Views[0].Roots[0].Name != "second" {
			t.Fatalf("duplicate view should be replaced, got %d views", len(res.Views))
		}
		if got := codes(res.Diagnostics); !reflect.DeepEqual(got, []string{CodeDuplicateID, CodeDuplicateID}) {
			t.Fatalf("diagnostics = %v", got)
		}
	})

	t.Run("reject", func(t *testing.T) {
		res, err := Parse(strings.NewReader(body), WithDuplicatePolicy(DuplicateReject))
		if !errors.Is(err, ErrDuplicateID) {
			t.Fatalf("err = %v, want ErrDuplicateID", err)
		}
		if res != nil {
			t.Fatal("a rejected parse must not return a result")
		}
	})

	t.Run("same id in different tables", func(t *testing.T) {
		res := mustParse(t, doc(`<Product id="x"/><ProductRevision id="x"/>`), WithDuplicatePolicy(DuplicateReject))
		if len(res.Diagnostics) != 0 {
			t.Fatalf("diagnostics = %v", codes(res.Diagnostics))
		}
	})
}

func TestExternalFileResolver(t *testing.T) {
	xml := doc(`<ExternalFile id="e1" locationRef="a/b.jt"/><ExternalFile id="e2" locationRef="bad"/><ExternalFile id="e3"/>`)
	resolver := func(base, location string) (string, error) {
		if location == "bad" {
			return "", errors.New("rejected")
		}
		return base + "|" + location, nil
	}
	res := mustParse(t, xml, WithBaseDir("s3://bucket/dir"), WithPathResolver(resolver))

	if got := res.Document.ExternalFiles["e1"].AbsolutePath; got != "s3://bucket/dir|a/b.jt" {
		t.Errorf("e1 path = %q", got)
	}
	if got := res.Document.ExternalFiles["e2"].AbsolutePath; got != "" {
		t.Errorf("e2 path = %q", got)
	}
	if got := res.Document.ExternalFiles["e3"].AbsolutePath; got != "" {
		t.Errorf("e3 path = %q", got)
	}
	if got := codes(res.Diagnostics); !reflect.DeepEqual(got, []string{CodePathUnresolved}) {
		t.Fatalf("diagnostics = %v", got)
	}
}

func TestMultipleRoots(t *testing.T) {
	res := mustParse(t, `<?xml version="1.0"?>
<Wrapper xmlns="http://www.plmxml.org/Schemas/PLMXMLSchema">
	<PLMXML schemaVersion="5" author="a"/>
	<PLMXML author="b"/>
	<PLMXML schemaVersion="5" author="c" date="2024-01-01"/>
</Wrapper>`)
	if len(res.Document.GeneralInfo) != 2 {
		t.Fatalf("GeneralInfo entries = %d, want 2", len(res.Document.GeneralInfo))
	}
	h, _ := res.Header()
	if want := (Header{SchemaVersion: "5", Author: "a"}); h != want {
		t.Fatalf("header = %+v, want the first root %+v", h, want)
	}
	if got := res.Document.GeneralInfo["5"].Author; got != "a" {
		t.Fatalf("GeneralInfo[5].Author = %q, a later root must not replace it", got)
	}
	if res.Document.GeneralInfo["unknown"].Author != "b" {
		t.Fatal("missing schemaVersion should default to unknown")
	}
}

func TestLenientInput(t *testing.T) {
	// HTML entities, unknown entities and unquoted attributes are tolerated
	res := mustParse(t, doc(`<Product id="p1" name="A&nbsp;B"/><Product id="p2" name="&bogus;"/><Product id=p3 name=bare/>`))
	if len(res.Document.Products) != 3 {
		t.Fatalf("products = %d, want 3", len(res.Document.Products))
	}
	if got := res.Document.Products["p1"].Name; got != "A\u00a0B" {
		t.Errorf("p1 name = %q", got)
	}
	if got := res.Document.Products["p2"].Name; got != "&bogus;" {
		t.Errorf("p2 name = %q", got)
	}
	if got := res.Document.Products["p3"].Name; got != "bare" {
		t.Errorf("p3 name = %q", got)
	}
}
