// Package payload rewrites references inside JSON content bodies.
//
// A reference is an object carrying a "type" tag together with a field named
// after the tag plus "Id", either next to the tag or inside the object's
// "attrs" member:
//
//	{"type": "writingBlock", "writingBlockId": "3f2a..."}
//	{"type": "writingBlock", "attrs": {"writingBlockId": "3f2a..."}}
//
// Only the matched id literals are replaced. Every other byte of the body,
// including key order, whitespace, escapes and number text, is kept.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-json"
)

// ErrMalformed is returned when a body is not valid JSON.
var ErrMalformed = errors.New("payload: malformed JSON")

// Rules maps a type tag to the id replacements for references of that tag.
type Rules map[string]map[string]string

// Add records that references of tag pointing at oldID must point at newID.
func (r Rules) Add(tag, oldID, newID string) {
	ids, ok := r[tag]
	if !ok {
		ids = make(map[string]string)
		r[tag] = ids
	}
	ids[oldID] = newID
}

// Len returns the number of recorded replacements across all tags.
func (r Rules) Len() int {
	n := 0
	for _, ids := range r {
		n += len(ids)
	}
	return n
}

// Rewrite replaces every reference in body that matches rules and returns the
// new body with the number of replacements. body is never modified. When
// nothing matches, or rules is empty, body itself is returned.
func Rewrite(body []byte, rules Rules) ([]byte, int, error) {
	if rules.Len() == 0 || len(bytes.TrimSpace(body)) == 0 {
		return body, 0, nil
	}
	if !json.Valid(body) {
		return nil, 0, fmt.Errorf("%w: invalid document", ErrMalformed)
	}

	s := &scanner{body: body, rules: rules, edits: make(map[int]edit)}
	s.space()
	if _, _, err := s.value(); err != nil {
		return nil, 0, err
	}
	s.space()
	if s.pos != len(body) {
		return nil, 0, fmt.Errorf("%w: trailing data after document", ErrMalformed)
	}
	if len(s.edits) == 0 {
		return body, 0, nil
	}
	return s.splice(), len(s.edits), nil
}

// literal is a string value and the byte range of its quoted form.
type literal struct {
	start, end int
	text       string
}

type edit struct {
	end int
	lit []byte
}

type scanner struct {
	body  []byte
	pos   int
	rules Rules
	edits map[int]edit
}

func (s *scanner) malformed(what string) error {
	return fmt.Errorf("%w: %s at offset %d", ErrMalformed, what, s.pos)
}

func (s *scanner) space() {
	for s.pos < len(s.body) {
		switch s.body[s.pos] {
		case ' ', '\t', '\r', '\n':
			s.pos++
		default:
			return
		}
	}
}

func (s *scanner) expect(c byte) error {
	s.space()
	if s.pos >= len(s.body) || s.body[s.pos] != c {
		return s.malformed(fmt.Sprintf("expected %q", c))
	}
	s.pos++
	return nil
}

// value scans the value at the cursor. A string value is returned as lit; an
// object returns its string members.
func (s *scanner) value() (lit *literal, members map[string]literal, err error) {
	s.space()
	if s.pos >= len(s.body) {
		return nil, nil, s.malformed("unexpected end")
	}
	switch s.body[s.pos] {
	case '"':
		l, err := s.str()
		if err != nil {
			return nil, nil, err
		}
		return &l, nil, nil
	case '{':
		members, err := s.object()
		return nil, members, err
	case '[':
		return nil, nil, s.array()
	default:
		s.scalar()
		return nil, nil, nil
	}
}

func (s *scanner) object() (map[string]literal, error) {
	s.pos++
	strs := make(map[string]literal)
	var attrs map[string]literal

	s.space()
	if s.pos < len(s.body) && s.body[s.pos] == '}' {
		s.pos++
		return strs, nil
	}
	for {
		s.space()
		key, err := s.str()
		if err != nil {
			return nil, err
		}
		if err := s.expect(':'); err != nil {
			return nil, err
		}
		lit, members, err := s.value()
		if err != nil {
			return nil, err
		}
		switch {
		case lit != nil:
			strs[key.text] = *lit
		case key.text == "attrs" && members != nil:
			attrs = members
		}

		s.space()
		if s.pos >= len(s.body) {
			return nil, s.malformed("unterminated object")
		}
		c := s.body[s.pos]
		s.pos++
		if c == '}' {
			break
		}
		if c != ',' {
			return nil, s.malformed("expected ',' or '}'")
		}
	}

	tag, ok := strs["type"]
	if !ok {
		return strs, nil
	}
	ids, ok := s.rules[tag.text]
	if !ok {
		return strs, nil
	}
	field := tag.text + "Id"
	if ref, ok := strs[field]; ok {
		if err := s.replace(ref, ids); err != nil {
			return nil, err
		}
	}
	if ref, ok := attrs[field]; ok {
		if err := s.replace(ref, ids); err != nil {
			return nil, err
		}
	}
	return strs, nil
}

func (s *scanner) array() error {
	s.pos++
	s.space()
	if s.pos < len(s.body) && s.body[s.pos] == ']' {
		s.pos++
		return nil
	}
	for {
		if _, _, err := s.value(); err != nil {
			return err
		}
		s.space()
		if s.pos >= len(s.body) {
			return s.malformed("unterminated array")
		}
		c := s.body[s.pos]
		s.pos++
		if c == ']' {
			return nil
		}
		if c != ',' {
			return s.malformed("expected ',' or ']'")
		}
	}
}

func (s *scanner) str() (literal, error) {
	if s.pos >= len(s.body) || s.body[s.pos] != '"' {
		return literal{}, s.malformed("expected string")
	}
	start := s.pos
	escaped := false
	for s.pos++; s.pos < len(s.body); s.pos++ {
		switch s.body[s.pos] {
		case '\\':
			escaped = true
			s.pos++
		case '"':
			s.pos++
			l := literal{start: start, end: s.pos}
			if !escaped {
				l.text = string(s.body[start+1 : s.pos-1])
				return l, nil
			}
			if err := json.Unmarshal(s.body[start:s.pos], &l.text); err != nil {
				return literal{}, fmt.Errorf("%w: %w", ErrMalformed, err)
			}
			return l, nil
		}
	}
	return literal{}, s.malformed("unterminated string")
}

// scalar skips a number or a true/false/null literal.
func (s *scanner) scalar() {
	for s.pos < len(s.body) {
		switch s.body[s.pos] {
		case ',', '}', ']', ' ', '\t', '\r', '\n':
			return
		}
		s.pos++
	}
}

func (s *scanner) replace(ref literal, ids map[string]string) error {
	id, ok := ids[ref.text]
	if !ok {
		return nil
	}
	lit, err := json.MarshalNoEscape(id)
	if err != nil {
		return fmt.Errorf("payload: encode id: %w", err)
	}
	s.edits[ref.start] = edit{end: ref.end, lit: lit}
	return nil
}

// splice copies body with every edit applied in offset order.
func (s *scanner) splice() []byte {
	starts := make([]int, 0, len(s.edits))
	grow := 0
	for start, e := range s.edits {
		starts = append(starts, start)
		grow += len(e.lit) - (e.end - start)
	}
	slices.Sort(starts)

	out := make([]byte, 0, len(s.body)+max(grow, 0))
	prev := 0
	for _, start := range starts {
		e := s.edits[start]
		out = append(out, s.body[prev:start]...)
		out = append(out, e.lit...)
		prev = e.end
	}
	return append(out, s.body[prev:]...)
}
