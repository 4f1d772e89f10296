/*
Package xyz reads extended XYZ structure files.

An extended XYZ frame is an atom count line, a comment line holding a flat
list of key=value pairs, and one line per atom. The comment line may carry
the special keys Lattice, Properties and pbc, which describe the cell and
the per-atom columns. Every other pair ends up in the frame's Info map,
converted to the narrowest type that fits the value: int, float64, bool
or string. Values with several whitespace separated numbers become []int
or []float64.

A file may contain several frames back to back. Use a Reader to walk them,
or ReadFile to get the first one.
*/
package xyz

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Frame is one configuration read from an XYZ file.
type Frame struct {
	// Info holds the comment line pairs, minus Lattice, Properties and pbc.
	Info map[string]any

	// Lattice is the 3x3 cell, row major. nil if the frame has none.
	Lattice []float64

	// PBC gives the periodic boundary flags. nil if not given.
	PBC []bool

	// Properties describes the per-atom columns.
	Properties []Property

	// Atoms has one entry per atom line, in file order.
	Atoms []Atom
}

// Property is a named group of columns in the per-atom block.
// Type is one of 'S' (string), 'R' (real), 'I' (integer) or 'L' (logical).
type Property struct {
	Name string
	Type byte
	Cols int
}

// Atom is a single atom line.
type Atom struct {
	Symbol   string
	Position [3]float64
	// Extra holds the raw text of any columns after species and pos.
	Extra []string
}

// ParseError reports a problem reading a frame. Line is 1-based.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("xyz: line %d: %s", e.Line, e.Msg)
}

// the columns assumed when there is no Properties key
var defaultProperties = []Property{
	{Name: "species", Type: 'S', Cols: 1},
	{Name: "pos", Type: 'R', Cols: 3},
}

// the count line is untrusted; larger frames grow as atoms are read
const maxPrealloc = 1 << 16

// Reader reads successive frames from an input stream.
type Reader struct {
	s    *bufio.Scanner
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	// comment lines can be long when they carry many properties
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{s: s}
}

// Next returns the next frame in the stream. It returns io.EOF when there
// are no more frames. Blank lines between frames are skipped.
func (r *Reader) Next() (*Frame, error) {
	var countLine string
	for {
		text, ok := r.scan()
		if !ok {
			if err := r.s.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		if strings.TrimSpace(text) != "" {
			countLine = text
			break
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(countLine))
	if err != nil || n < 0 {
		return nil, &ParseError{Line: r.line, Msg: fmt.Sprintf("bad atom count %q", countLine)}
	}

	comment, ok := r.scan()
	if !ok {
		return nil, r.unexpectedEOF("comment line")
	}
	f, err := parseComment(comment)
	if err != nil {
		return nil, &ParseError{Line: r.line, Msg: err.Error()}
	}

	ncols := 0
	for _, p := range f.Properties {
		ncols += p.Cols
	}
	f.Atoms = make([]Atom, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		text, ok := r.scan()
		if !ok {
			return nil, r.unexpectedEOF(fmt.Sprintf("atom %d of %d", i+1, n))
		}
		atom, err := parseAtom(strings.Fields(text), f.Properties, ncols)
		if err != nil {
			return nil, &ParseError{Line: r.line, Msg: err.Error()}
		}
		f.Atoms = append(f.Atoms, atom)
	}
	return f, nil
}

func (r *Reader) scan() (string, bool) {
	if !r.s.Scan() {
		return "", false
	}
	r.line++
	return r.s.Text(), true
}

func (r *Reader) unexpectedEOF(want string) error {
	if err := r.s.Err(); err != nil {
		return err
	}
	return &ParseError{Line: r.line + 1, Msg: "unexpected end of file, expected " + want}
}

// ReadFile returns the first frame in the file at path. A missing file gives
// an error satisfying errors.Is(err, fs.ErrNotExist).
func ReadFile(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	frame, err := NewReader(f).Next()
	if err == io.EOF {
		err = &ParseError{Line: 1, Msg: "empty file"}
	}
	return frame, err
}

func parseAtom(fields []string, props []Property, ncols int) (Atom, error) {
	var atom Atom
	if len(fields) < ncols {
		return atom, fmt.Errorf("expected %d columns, found %d", ncols, len(fields))
	}
	col := 0
	for _, p := range props {
		switch p.Name {
		case "species":
			atom.Symbol = fields[col]
		case "pos":
			if p.Cols != 3 {
				return atom, errors.New("pos property must have 3 columns")
			}
			for k := 0; k < 3; k++ {
				v, err := strconv.ParseFloat(fields[col+k], 64)
				if err != nil {
					return atom, fmt.Errorf("bad coordinate %q", fields[col+k])
				}
				atom.Position[k] = v
			}
		default:
			atom.Extra = append(atom.Extra, fields[col:col+p.Cols]...)
		}
		col += p.Cols
	}
	return atom, nil
}
