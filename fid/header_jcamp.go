package fid

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// jcampHeader is a HeaderStore over JCAMP-DX style parameter text, as
// used by Bruker acqus/procs files and standalone .jdx headers:
//
//	##TITLE= Parameter file
//	##$TD= 65536
//	##$SFO1= 400.13
//	##$NUC1= <1H>
//	##$P= (0..3)
//	10 9.25 0 0
//	$$ comment
//	##END=
//
// Names are stored without the "$" prefix and upper-cased.
type jcampHeader struct {
	*params
	path  string
	lines []jcampLine
}

type jcampLine struct {
	key     string // empty for verbatim lines
	raw     string
	private bool
	array   bool
	quoted  bool
}

// LoadJCAMPHeader parses the JCAMP-DX parameter file at path.
func LoadJCAMPHeader(path string) (HeaderStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &HeaderParseError{Path: path, Err: err}
	}
	h, err := parseJCAMPHeader(path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return h, nil
}

func parseJCAMPHeader(path string, r io.Reader) (*jcampHeader, error) {
	h := &jcampHeader{params: newParams(), path: path}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		arrayKey    string
		arrayValues []string
		sawLabel    bool
	)
	flush := func() {
		if arrayKey != "" {
			h.put(arrayKey, arrayValues)
			arrayKey, arrayValues = "", nil
		}
	}

	for sc.Scan() {
		text := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(text)

		switch {
		case strings.HasPrefix(trimmed, "##"):
			flush()
			sawLabel = true
			line, values := parseJCAMPLabel(trimmed)
			if line.key == "" {
				h.lines = append(h.lines, line)
				continue
			}
			h.lines = append(h.lines, line)
			if line.array {
				arrayKey = line.key
				continue
			}
			h.put(line.key, values)
		case strings.HasPrefix(trimmed, "$$"):
			flush()
			h.lines = append(h.lines, jcampLine{raw: text})
		case arrayKey != "":
			tokens := splitJCAMPValues(trimmed)
			if len(tokens) > 0 && strings.HasPrefix(tokens[0], "<") {
				h.markQuoted(arrayKey)
			}
			for _, t := range tokens {
				arrayValues = append(arrayValues, unwrapJCAMPString(t))
			}
		default:
			h.lines = append(h.lines, jcampLine{raw: text})
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, &HeaderParseError{Path: path, Err: err}
	}
	if !sawLabel {
		return nil, &HeaderParseError{Path: path, Err: errors.New("no JCAMP labels")}
	}
	return h, nil
}

// parseJCAMPLabel splits "##$KEY= value". END and blank labels are kept
// verbatim.
func parseJCAMPLabel(text string) (jcampLine, []string) {
	body := strings.TrimPrefix(text, "##")
	eq := strings.IndexByte(body, '=')
	if eq < 0 {
		return jcampLine{raw: text}, nil
	}
	label := strings.TrimSpace(body[:eq])
	value := strings.TrimSpace(body[eq+1:])

	line := jcampLine{raw: text}
	if strings.HasPrefix(label, "$") {
		line.private = true
		label = label[1:]
	}
	label = strings.ToUpper(label)
	if label == "" || label == "END" {
		return jcampLine{raw: text}, nil
	}
	line.key = label

	if isJCAMPArraySize(value) {
		line.array = true
		return line, nil
	}
	if strings.HasPrefix(value, "<") {
		line.quoted = true
	}
	return line, []string{unwrapJCAMPString(value)}
}

func isJCAMPArraySize(v string) bool {
	return strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") && strings.Contains(v, "..")
}

// splitJCAMPValues splits on whitespace, keeping <...> strings intact.
func splitJCAMPValues(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		inStr bool
	)
	for _, r := range s {
		switch {
		case r == '<' && !inStr:
			inStr = true
			cur.WriteRune(r)
		case r == '>' && inStr:
			inStr = false
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && !inStr:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func unwrapJCAMPString(v string) string {
	if len(v) >= 2 && v[0] == '<' && v[len(v)-1] == '>' {
		return v[1 : len(v)-1]
	}
	return v
}

func (h *jcampHeader) markQuoted(key string) {
	for i := len(h.lines) - 1; i >= 0; i-- {
		if h.lines[i].key == key {
			h.lines[i].quoted = true
			return
		}
	}
}

func (h *jcampHeader) Path() string { return h.path }

// Get accepts names with or without the "$" prefix, in any case.
func (h *jcampHeader) Get(name string) (string, bool) { return h.params.Get(jcampKey(name)) }

func (h *jcampHeader) Double(name string) (float64, bool) { return h.params.Double(jcampKey(name)) }

func (h *jcampHeader) Int(name string) (int, bool) { return h.params.Int(jcampKey(name)) }

func (h *jcampHeader) Bool(name string) (bool, bool) { return h.params.Bool(jcampKey(name)) }

func (h *jcampHeader) List(name string) []string { return h.params.List(jcampKey(name)) }

func (h *jcampHeader) DoubleList(name string) []float64 {
	return h.params.DoubleList(jcampKey(name))
}

func jcampKey(name string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(name), "$"))
}

func (h *jcampHeader) Set(name string, values ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setLocked(jcampKey(name), values)
}

func (h *jcampHeader) WriteParam(name string, values ...string) error {
	key := jcampKey(name)

	h.mu.Lock()
	defer h.mu.Unlock()

	previous, existed := h.values[key]
	lines := slices.Clone(h.lines)
	h.setLocked(key, values)
	if err := ReplaceFile(h.path, h.render()); err != nil {
		h.lines = lines
		if existed {
			h.put(key, previous)
		} else {
			h.drop(key)
		}
		return fmt.Errorf("fid: write param %s: %w", key, err)
	}
	return nil
}

func (h *jcampHeader) SaveAs(path string) error {
	h.mu.RLock()
	data := h.render()
	h.mu.RUnlock()
	return ReplaceFile(path, data)
}

func (h *jcampHeader) Clone() HeaderStore {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := &jcampHeader{params: h.params.clone(), path: h.path}
	c.lines = append([]jcampLine(nil), h.lines...)
	return c
}

func (h *jcampHeader) setLocked(key string, values []string) {
	h.put(key, values)
	for i := range h.lines {
		if h.lines[i].key == key {
			h.lines[i].array = len(values) != 1 || h.lines[i].array
			return
		}
	}

	line := jcampLine{key: key, private: true, array: len(values) != 1}
	end := len(h.lines)
	for i, l := range h.lines {
		if l.key == "" && strings.HasPrefix(strings.TrimSpace(l.raw), "##END") {
			end = i
			break
		}
	}
	h.lines = append(h.lines, jcampLine{})
	copy(h.lines[end+1:], h.lines[end:])
	h.lines[end] = line
}

// render serializes the document. Callers hold mu.
func (h *jcampHeader) render() []byte {
	var b bytes.Buffer
	for _, l := range h.lines {
		if l.key == "" {
			b.WriteString(l.raw)
			b.WriteByte('\n')
			continue
		}
		prefix := "##"
		if l.private {
			prefix = "##$"
		}
		values := h.values[l.key]
		wrap := func(v string) string {
			if l.quoted {
				return "<" + v + ">"
			}
			return v
		}
		if l.array {
			fmt.Fprintf(&b, "%s%s= (0..%d)\n", prefix, l.key, len(values)-1)
			parts := make([]string, len(values))
			for i, v := range values {
				parts[i] = wrap(v)
			}
			b.WriteString(strings.Join(parts, " "))
			b.WriteByte('\n')
			continue
		}
		v := ""
		if len(values) > 0 {
			v = values[0]
		}
		fmt.Fprintf(&b, "%s%s= %s\n", prefix, l.key, wrap(v))
	}
	return b.Bytes()
}
