package xyz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// parseComment turns an extended XYZ comment line into a Frame with Info,
// Lattice, PBC and Properties filled in.
func parseComment(line string) (*Frame, error) {
	pairs, err := splitPairs(line)
	if err != nil {
		return nil, err
	}
	f := &Frame{
		Info:       make(map[string]any, len(pairs)),
		Properties: defaultProperties,
	}
	for _, kv := range pairs {
		switch strings.ToLower(kv.key) {
		case "lattice":
			f.Lattice, err = parseLattice(kv.value)
		case "properties":
			f.Properties, err = parseProperties(kv.value)
		case "pbc":
			f.PBC, err = parsePBC(kv.value)
		default:
			if kv.bare {
				f.Info[kv.key] = true
			} else {
				f.Info[kv.key] = convertValue(kv.value)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", kv.key, err)
		}
	}
	return f, nil
}

type pair struct {
	key   string
	value string
	bare  bool // key had no "=value" part
}

// splitPairs tokenizes a comment line. Values may be double quoted (with
// backslash escapes), or wrapped in {} or [].
func splitPairs(line string) ([]pair, error) {
	var result []pair
	i := 0
	n := len(line)
	skip := func() {
		for i < n && isSpace(line[i]) {
			i++
		}
	}
	for {
		skip()
		if i >= n {
			return result, nil
		}
		key, next, err := readToken(line, i, true)
		if err != nil {
			return nil, err
		}
		i = next
		if key == "" {
			return nil, fmt.Errorf("empty key at column %d", i+1)
		}
		skip()
		if i >= n || line[i] != '=' {
			result = append(result, pair{key: key, bare: true})
			continue
		}
		i++ // the '='
		skip()
		if i >= n {
			return nil, fmt.Errorf("missing value for key %s", key)
		}
		value, next, err := readToken(line, i, false)
		if err != nil {
			return nil, err
		}
		i = next
		result = append(result, pair{key: key, value: value})
	}
}

// readToken reads one key or value starting at line[i]. It returns the
// token text, with quotes or brackets removed, and the index just past it.
func readToken(line string, i int, isKey bool) (string, int, error) {
	n := len(line)
	switch line[i] {
	case '"':
		var b strings.Builder
		for j := i + 1; j < n; j++ {
			c := line[j]
			if c == '\\' && j+1 < n {
				j++
				b.WriteByte(line[j])
				continue
			}
			if c == '"' {
				return b.String(), j + 1, nil
			}
			b.WriteByte(c)
		}
		return "", n, errors.New("unterminated quoted string")
	case '{', '[':
		if isKey {
			break
		}
		open := line[i]
		closer := byte('}')
		if open == '[' {
			closer = ']'
		}
		depth := 0
		for j := i; j < n; j++ {
			switch line[j] {
			case open:
				depth++
			case closer:
				depth--
				if depth == 0 {
					inner := strings.ReplaceAll(line[i+1:j], ",", " ")
					return inner, j + 1, nil
				}
			}
		}
		return "", n, fmt.Errorf("unterminated %c", open)
	}
	j := i
	for j < n && !isSpace(line[j]) && !(isKey && line[j] == '=') {
		j++
	}
	return line[i:j], j, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// convertValue gives the narrowest Go value for s.
func convertValue(s string) any {
	fields := strings.Fields(s)
	switch len(fields) {
	case 0:
		return s
	case 1:
		return convertScalar(fields[0])
	}
	if ints, ok := allInts(fields); ok {
		return ints
	}
	if floats, ok := allFloats(fields); ok {
		return floats
	}
	return s
}

func convertScalar(s string) any {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	if v, ok := parseBool(s); ok {
		return v
	}
	return s
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "T", "True", "true", "TRUE":
		return true, true
	case "F", "False", "false", "FALSE":
		return false, true
	}
	return false, false
}

func allInts(fields []string) ([]int, bool) {
	result := make([]int, len(fields))
	for i, s := range fields {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, false
		}
		result[i] = v
	}
	return result, true
}

func allFloats(fields []string) ([]float64, bool) {
	result := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		result[i] = v
	}
	return result, true
}

func parseLattice(s string) ([]float64, error) {
	v, ok := allFloats(strings.Fields(s))
	if !ok || len(v) != 9 {
		return nil, errors.New("lattice needs 9 numbers")
	}
	return v, nil
}

func parsePBC(s string) ([]bool, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return nil, errors.New("pbc needs 3 flags")
	}
	result := make([]bool, 3)
	for i, f := range fields {
		v, ok := parseBool(f)
		if !ok {
			return nil, fmt.Errorf("bad pbc flag %q", f)
		}
		result[i] = v
	}
	return result, nil
}

// parseProperties decodes "name:type:cols:name:type:cols...".
func parseProperties(s string) ([]Property, error) {
	parts := strings.Split(s, ":")
	if len(parts)%3 != 0 {
		return nil, errors.New("properties must be name:type:cols triples")
	}
	result := make([]Property, 0, len(parts)/3)
	for i := 0; i < len(parts); i += 3 {
		typ := strings.ToUpper(parts[i+1])
		if len(typ) != 1 || !strings.Contains("SRIL", typ) {
			return nil, fmt.Errorf("bad property type %q", parts[i+1])
		}
		cols, err := strconv.Atoi(parts[i+2])
		if err != nil || cols < 1 {
			return nil, fmt.Errorf("bad column count %q", parts[i+2])
		}
		result = append(result, Property{Name: parts[i], Type: typ[0], Cols: cols})
	}
	return result, nil
}
