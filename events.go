package plmxml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/agentflare-ai/go-xmldom"
)

type eventKind uint8

const (
	eventStart eventKind = iota + 1
	eventEnd
)

// event is one element-open or element-close notification. Attributes are
// only populated for eventStart and are not retained after handling.
type event struct {
	kind  eventKind
	space string
	local string
	attrs []xml.Attr
	pos   Position
}

// attr returns the value of the unqualified attribute name
func (e *event) attr(name string) (string, bool) {
	for _, a := range e.attrs {
		if a.Name.Local == name && (a.Name.Space == "" || a.Name.Space == e.space) {
			return a.Value, true
		}
	}
	return "", false
}

// attrValue returns the value of attribute name, or "" when absent
func (e *event) attrValue(name string) string {
	v, _ := e.attr(name)
	return v
}

// eventSource yields element events in document order. next returns io.EOF
// after the last event.
type eventSource interface {
	next() (event, error)
}

// streamSource reads events from an encoding/xml token stream
type streamSource struct {
	dec  *xml.Decoder
	file string
}

func newStreamSource(r io.Reader, file string) *streamSource {
	dec := xml.NewDecoder(r)
	// Non-strict mode recovers from unknown entities, unquoted attributes
	// and mismatched end tags instead of failing.
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	return &streamSource{dec: dec, file: file}
}

func (s *streamSource) next() (event, error) {
	for {
		line, col := s.dec.InputPos()
		offset := s.dec.InputOffset()
		tok, err := s.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return event{}, io.EOF
			}
			return event{}, err
		}
		pos := Position{File: s.file, Line: line, Column: col, Offset: offset}
		switch t := tok.(type) {
		case xml.StartElement:
			return event{kind: eventStart, space: t.Name.Space, local: t.Name.Local, attrs: t.Attr, pos: pos}, nil
		case xml.EndElement:
			return event{kind: eventEnd, space: t.Name.Space, local: t.Name.Local, pos: pos}, nil
		}
	}
}

// domSource walks a go-xmldom document iteratively, emitting the same
// events a streamSource would for the serialized document.
type domSource struct {
	file  string
	stack []domFrame
	root  xmldom.Element
	begun bool
}

type domFrame struct {
	elem     xmldom.Element
	children elementList
	next     uint
}

// elementList is the subset of the xmldom child list used by the walker
type elementList interface {
	Length() uint
	Item(index uint) xmldom.Element
}

func newDOMSource(doc xmldom.Document, file string) (*domSource, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	root := doc.DocumentElement()
	if root == nil {
		return nil, fmt.Errorf("no root element")
	}
	return &domSource{file: file, root: root}, nil
}

func (s *domSource) next() (event, error) {
	if !s.begun {
		s.begun = true
		return s.open(s.root), nil
	}
	for len(s.stack) > 0 {
		top := &s.stack[len(s.stack)-1]
		if top.next < top.children.Length() {
			child := top.children.Item(top.next)
			top.next++
			if child == nil {
				continue
			}
			return s.open(child), nil
		}
		s.stack = s.stack[:len(s.stack)-1]
		return s.close(top.elem), nil
	}
	return event{}, io.EOF
}

func (s *domSource) open(elem xmldom.Element) event {
	s.stack = append(s.stack, domFrame{elem: elem, children: elem.Children()})

	var attrs []xml.Attr
	nodes := elem.Attributes()
	for i := uint(0); i < nodes.Length(); i++ {
		a := nodes.Item(i)
		if a == nil {
			continue
		}
		local, space := string(a.LocalName()), string(a.NamespaceURI())
		// xmldom reports xmlns:prefix with namespace "xmlns" and a default
		// declaration with local name "xmlns"
		if space == "http://www.w3.org/2000/xmlns/" || space == "xmlns" || local == "xmlns" {
			continue
		}
		attrs = append(attrs, xml.Attr{
			Name:  xml.Name{Space: space, Local: local},
			Value: string(a.NodeValue()),
		})
	}
	line, col, offset := elem.Position()
	return event{
		kind:  eventStart,
		space: string(elem.NamespaceURI()),
		local: string(elem.LocalName()),
		attrs: attrs,
		pos:   Position{File: s.file, Line: line, Column: col, Offset: offset},
	}
}

func (s *domSource) close(elem xmldom.Element) event {
	return event{
		kind:  eventEnd,
		space: string(elem.NamespaceURI()),
		local: string(elem.LocalName()),
	}
}
