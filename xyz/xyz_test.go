package xyz

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sample = `2
config=60 phase=solid pressure=150 temperature=2000 rs=1.32 method="DFT PBE" converged Lattice="4.0 0.0 0.0 0.0 4.0 0.0 0.0 0.0 4.0" Properties=species:S:1:pos:R:3:forces:R:3 pbc="T T T"
H 0.0 0.1 0.2 1.0 2.0 3.0
H 1.5 1.6 1.7 -1.0 -2.0 -3.0
`

func TestReadFrame(t *testing.T) {
	f, err := NewReader(strings.NewReader(sample)).Next()
	if err != nil {
		t.Fatal(err)
	}
	var info = []struct {
		key   string
		value any
	}{
		{"config", 60},
		{"phase", "solid"},
		{"pressure", 150},
		{"temperature", 2000},
		{"rs", 1.32},
		{"method", "DFT PBE"},
		{"converged", true},
	}
	for _, test := range info {
		got, ok := f.Info[test.key]
		if !ok {
			t.Errorf("missing key %s", test.key)
			continue
		}
		if !reflect.DeepEqual(got, test.value) {
			t.Errorf("%s: got %#v, expected %#v", test.key, got, test.value)
		}
	}
	for _, key := range []string{"Lattice", "Properties", "pbc"} {
		if _, ok := f.Info[key]; ok {
			t.Errorf("%s should not be in Info", key)
		}
	}
	if len(f.Lattice) != 9 || f.Lattice[0] != 4.0 || f.Lattice[8] != 4.0 {
		t.Errorf("Lattice is %v", f.Lattice)
	}
	if !reflect.DeepEqual(f.PBC, []bool{true, true, true}) {
		t.Errorf("PBC is %v", f.PBC)
	}
	if len(f.Atoms) != 2 {
		t.Fatalf("got %d atoms, expected 2", len(f.Atoms))
	}
	a := f.Atoms[1]
	if a.Symbol != "H" || a.Position != [3]float64{1.5, 1.6, 1.7} {
		t.Errorf("atom 2 is %+v", a)
	}
	if !reflect.DeepEqual(a.Extra, []string{"-1.0", "-2.0", "-3.0"}) {
		t.Errorf("atom 2 extra is %v", a.Extra)
	}
}

func TestConvertValue(t *testing.T) {
	var table = []struct {
		input  string
		output any
	}{
		{"12", 12},
		{"-3", -3},
		{"1.5", 1.5},
		{"1e3", 1000.0},
		{"T", true},
		{"False", false},
		{"solid", "solid"},
		{"1 2 3", []int{1, 2, 3}},
		{"1 2.5 3", []float64{1, 2.5, 3}},
		{"a b", "a b"},
	}
	for _, test := range table {
		got := convertValue(test.input)
		if !reflect.DeepEqual(got, test.output) {
			t.Errorf("convertValue(%q) = %#v, expected %#v", test.input, got, test.output)
		}
	}
}

func TestSplitPairs(t *testing.T) {
	var table = []struct {
		input  string
		output []pair
	}{
		{"", nil},
		{"a=1", []pair{{key: "a", value: "1"}}},
		{"a = 1 b", []pair{{key: "a", value: "1"}, {key: "b", bare: true}}},
		{`name="a \"b\" c"`, []pair{{key: "name", value: `a "b" c`}}},
		{"v={1, 2, 3} w=[4,5]", []pair{{key: "v", value: "1  2  3"}, {key: "w", value: "4 5"}}},
		{`"odd key"=x`, []pair{{key: "odd key", value: "x"}}},
	}
	for _, test := range table {
		got, err := splitPairs(test.input)
		if err != nil {
			t.Errorf("%q: %s", test.input, err)
			continue
		}
		if !reflect.DeepEqual(got, test.output) {
			t.Errorf("%q: got %+v, expected %+v", test.input, got, test.output)
		}
	}
}

func TestMalformed(t *testing.T) {
	var table = []struct {
		name  string
		input string
	}{
		{"count", "two\ncomment\nH 0 0 0\n"},
		{"short", "3\na=1\nH 0 0 0\n"},
		{"no comment", "1\n"},
		{"quote", "1\na=\"open\nH 0 0 0\n"},
		{"coord", "1\na=1\nH 0 x 0\n"},
		{"lattice", "1\nLattice=\"1 2 3\"\nH 0 0 0\n"},
		{"properties", "1\nProperties=species:S\nH 0 0 0\n"},
		{"huge count", "999999999999999999\nconfig=1\nH 0 0 0\n"},
		{"overflow count", "99999999999999999999999\nconfig=1\nH 0 0 0\n"},
		{"negative count", "-1\nconfig=1\n"},
	}
	for _, test := range table {
		_, err := NewReader(strings.NewReader(test.input)).Next()
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("%s: got %v, expected a ParseError", test.name, err)
		}
	}
}

func TestMultipleFrames(t *testing.T) {
	input := "1\nstep=1\nH 0 0 0\n\n1\nstep=2\nH 1 1 1\n"
	r := NewReader(strings.NewReader(input))
	for step := 1; step <= 2; step++ {
		f, err := r.Next()
		if err != nil {
			t.Fatal(err)
		}
		if f.Info["step"] != step {
			t.Errorf("got step %v, expected %d", f.Info["step"], step)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("got %v, expected io.EOF", err)
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.xyz"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("got %v, expected fs.ErrNotExist", err)
	}
}
