package fid

import (
	"slices"
	"strconv"
	"strings"
	"sync"
)

// params is the name → values map shared by every HeaderStore variant.
// The embedding store uses mu to guard its backing document as well.
type params struct {
	mu     sync.RWMutex
	values map[string][]string
	order  []string
}

func newParams() *params {
	return &params{values: make(map[string][]string)}
}

func (p *params) Get(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v := p.values[name]
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func (p *params) Double(name string) (float64, bool) {
	s, ok := p.Get(name)
	if !ok {
		return 0, false
	}
	return parseDouble(s)
}

func (p *params) Int(name string) (int, bool) {
	s, ok := p.Get(name)
	if !ok {
		return 0, false
	}
	return parseInt(s)
}

func (p *params) Bool(name string) (bool, bool) {
	s, ok := p.Get(name)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, true
	case "false", "no", "off", "0":
		return false, true
	}
	return false, false
}

func (p *params) List(name string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.values[name])
}

func (p *params) DoubleList(name string) []float64 {
	var out []float64
	for _, s := range p.List(name) {
		if v, ok := parseDouble(s); ok {
			out = append(out, v)
		}
	}
	return out
}

func (p *params) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.order)
}

// put replaces the values of name. Callers hold mu.
func (p *params) put(name string, values []string) {
	if _, ok := p.values[name]; !ok {
		p.order = append(p.order, name)
	}
	p.values[name] = slices.Clone(values)
}

// drop removes name. Callers hold mu.
func (p *params) drop(name string) {
	if _, ok := p.values[name]; !ok {
		return
	}
	delete(p.values, name)
	p.order = slices.DeleteFunc(p.order, func(n string) bool { return n == name })
}

func (p *params) clone() *params {
	c := newParams()
	for _, name := range p.order {
		c.put(name, p.values[name])
	}
	return c
}

func parseDouble(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func formatDouble(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
