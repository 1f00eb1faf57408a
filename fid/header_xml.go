package fid

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antchfx/xmlquery"
)

const (
	xmlRootElement = "header"
	xmlParamsPath  = "/header/params"
	xmlEntryPath   = "/header/params/entry"
)

// xmlHeader is a HeaderStore over an RS2D-style XML parameter document:
//
//	<header>
//	  <params>
//	    <entry>
//	      <key>BASE_FREQ_1</key>
//	      <value><value>4.0E8</value></value>
//	    </entry>
//	  </params>
//	</header>
//
// Multi-valued parameters carry several nested value elements.
type xmlHeader struct {
	*params
	path string
	doc  *xmlquery.Node
}

// LoadXMLHeader parses the XML parameter document at path.
// A missing file, malformed XML, or a root element other than <header>
// is reported as a *HeaderParseError.
func LoadXMLHeader(path string) (HeaderStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &HeaderParseError{Path: path, Err: err}
	}
	defer closer(f)()

	h, err := parseXMLHeader(path, f)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func parseXMLHeader(path string, r io.Reader) (*xmlHeader, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, &HeaderParseError{Path: path, Err: err}
	}

	root := xmlquery.FindOne(doc, "/*")
	if root == nil {
		return nil, &HeaderParseError{Path: path, Err: errors.New("empty document")}
	}
	if root.Data != xmlRootElement {
		return nil, &HeaderParseError{Path: path, Err: fmt.Errorf("root element <%s>, want <%s>", root.Data, xmlRootElement)}
	}

	h := &xmlHeader{params: newParams(), path: path, doc: doc}
	for _, entry := range xmlquery.Find(doc, xmlEntryPath) {
		key := xmlquery.FindOne(entry, "key")
		if key == nil {
			continue
		}
		name := strings.TrimSpace(key.InnerText())
		if name == "" {
			continue
		}
		h.put(name, entryValues(entry))
	}
	return h, nil
}

func entryValues(entry *xmlquery.Node) []string {
	nested := xmlquery.Find(entry, "value/value")
	if len(nested) == 0 {
		if v := xmlquery.FindOne(entry, "value"); v != nil {
			return []string{strings.TrimSpace(v.InnerText())}
		}
		return nil
	}
	values := make([]string, 0, len(nested))
	for _, n := range nested {
		values = append(values, strings.TrimSpace(n.InnerText()))
	}
	return values
}

func (h *xmlHeader) Path() string { return h.path }

func (h *xmlHeader) Set(name string, values ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setLocked(name, values)
}

func (h *xmlHeader) WriteParam(name string, values ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	previous, existed := h.values[name]
	h.setLocked(name, values)
	if err := ReplaceFile(h.path, h.render()); err != nil {
		if existed {
			h.setLocked(name, previous)
		} else {
			h.drop(name)
			if entry := h.findEntry(name); entry != nil {
				xmlquery.RemoveFromTree(entry)
			}
		}
		return fmt.Errorf("fid: write param %s: %w", name, err)
	}
	return nil
}

func (h *xmlHeader) SaveAs(path string) error {
	h.mu.RLock()
	data := h.render()
	h.mu.RUnlock()
	return ReplaceFile(path, data)
}

func (h *xmlHeader) Clone() HeaderStore {
	h.mu.RLock()
	data := h.render()
	h.mu.RUnlock()

	c, err := parseXMLHeader(h.path, strings.NewReader(string(data)))
	if err != nil {
		// The document was produced by xmlquery itself; fall back to a
		// detached map-only copy rather than fail.
		return &xmlHeader{params: h.params.clone(), path: h.path, doc: h.doc}
	}
	return c
}

func (h *xmlHeader) render() []byte {
	return []byte(h.doc.OutputXML(true))
}

// setLocked updates the map and the document tree. Callers hold mu.
func (h *xmlHeader) setLocked(name string, values []string) {
	h.put(name, values)

	entry := h.findEntry(name)
	if entry == nil {
		entry = h.appendEntry(name)
	}

	holder := xmlquery.FindOne(entry, "value")
	if holder == nil {
		holder = newElement("value", "")
		xmlquery.AddChild(entry, holder)
	}

	var stale []*xmlquery.Node
	for c := holder.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == xmlquery.ElementNode && c.Data == "value":
			stale = append(stale, c)
		case c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		xmlquery.RemoveFromTree(c)
	}
	for _, v := range values {
		xmlquery.AddChild(holder, newElement("value", v))
	}
}

func (h *xmlHeader) findEntry(name string) *xmlquery.Node {
	for _, entry := range xmlquery.Find(h.doc, xmlEntryPath) {
		if key := xmlquery.FindOne(entry, "key"); key != nil && strings.TrimSpace(key.InnerText()) == name {
			return entry
		}
	}
	return nil
}

func (h *xmlHeader) appendEntry(name string) *xmlquery.Node {
	list := xmlquery.FindOne(h.doc, xmlParamsPath)
	if list == nil {
		root := xmlquery.FindOne(h.doc, "/*")
		list = newElement("params", "")
		xmlquery.AddChild(root, list)
	}
	entry := newElement("entry", "")
	xmlquery.AddChild(entry, newElement("key", name))
	xmlquery.AddChild(list, entry)
	return entry
}

func newElement(name, text string) *xmlquery.Node {
	n := &xmlquery.Node{Type: xmlquery.ElementNode, Data: name}
	if text != "" {
		xmlquery.AddChild(n, &xmlquery.Node{Type: xmlquery.TextNode, Data: text})
	}
	return n
}

// NewXMLHeader builds an empty XML header bound to path. It is used when
// synthesizing datasets; nothing is written until WriteParam or SaveAs.
func NewXMLHeader(path string) HeaderStore {
	h, err := parseXMLHeader(path, strings.NewReader(`<?xml version="1.0" encoding="UTF-8"?><header><params></params></header>`))
	if err != nil {
		panic(err)
	}
	return h
}
