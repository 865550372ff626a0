package planner

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

var errTrailingData = errors.New("trailing data after JSON value")

// ExtractJSON recovers a JSON object from oracle output.
//
// The whole text is tried first. Failing that, the first balanced {...} span
// is tried; braces inside string literals do not count. Numbers are kept as
// json.Number so field values come back exactly as written.
func ExtractJSON(text string) (map[string]any, bool) {
	if value, err := decodeStrict(text); err == nil {
		obj, ok := value.(map[string]any)
		return obj, ok
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}

	end := matchingBrace(text, start)
	if end < 0 {
		return nil, false
	}

	value, err := decodeStrict(text[start : end+1])
	if err != nil {
		return nil, false
	}

	obj, ok := value.(map[string]any)

	return obj, ok
}

// decodeStrict parses exactly one JSON value with nothing but whitespace around it
func decodeStrict(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return nil, errTrailingData
		}
		return nil, err
	}

	return value, nil
}

// matchingBrace returns the index of the '}' closing the '{' at start, skipping
// braces inside string literals, or -1.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
