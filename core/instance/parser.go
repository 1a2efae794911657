// Package instance reads the instance folder of a simulated day. Every file
// is a comma separated table where lines starting with '#' are comments.
package instance

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformed reports an instance file that cannot be interpreted.
var ErrMalformed = errors.New("malformed instance file")

// Parser walks the data rows of a file. The first error is sticky: once
// set, Next returns nil rows and conversions return zero values.
type Parser struct {
	name string
	r    *csv.Reader
	line int
	err  error
}

// NewParser reads r. name is only used in error messages.
func NewParser(name string, r io.Reader) *Parser {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &Parser{name: name, r: cr}
}

// ParseBytes is NewParser over an in-memory file.
func ParseBytes(name string, b []byte) *Parser { return NewParser(name, bytes.NewReader(b)) }

// Next returns the next data row with trimmed fields.
func (p *Parser) Next() []string {
	if p.err != nil {
		return nil
	}
	rec, err := p.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.err = fmt.Errorf("%w: %s: %w", ErrMalformed, p.name, io.ErrUnexpectedEOF)
		} else {
			p.err = fmt.Errorf("%w: %s: %v", ErrMalformed, p.name, err)
		}
		return nil
	}
	p.line, _ = p.r.FieldPos(0)
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	return rec
}

func (p *Parser) field(row []string, i int) (string, bool) {
	if p.err != nil {
		return "", false
	}
	if i >= len(row) {
		p.err = fmt.Errorf("%w: %s:%d: expected at least %d fields, got %d", ErrMalformed, p.name, p.line, i+1, len(row))
		return "", false
	}
	return row[i], true
}

// Float converts field i of row.
func (p *Parser) Float(row []string, i int) float64 {
	s, ok := p.field(row, i)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("%w: %s:%d: field %d: %v", ErrMalformed, p.name, p.line, i+1, err)
		return 0
	}
	return v
}

// Int converts field i of row.
func (p *Parser) Int(row []string, i int) int {
	s, ok := p.field(row, i)
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("%w: %s:%d: field %d: %v", ErrMalformed, p.name, p.line, i+1, err)
		return 0
	}
	return v
}

// Ints converts every field of row.
func (p *Parser) Ints(row []string) []int {
	out := make([]int, 0, len(row))
	for i := range row {
		out = append(out, p.Int(row, i))
	}
	return out
}

// Index converts field i of row and checks it lies in [lo, hi].
func (p *Parser) Index(row []string, i, lo, hi int) int {
	v := p.Int(row, i)
	if p.err == nil && (v < lo || v > hi) {
		p.err = fmt.Errorf("%w: %s:%d: index %d outside [%d, %d]", ErrMalformed, p.name, p.line, v, lo, hi)
		return lo
	}
	return v
}

// Err returns the first error met.
func (p *Parser) Err() error { return p.err }
