package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// HasTrailingCommas reports whether data uses the IDE's trailing-comma
// dialect anywhere.
func HasTrailingCommas(data []byte) bool {
	return len(StripTrailingCommas(data)) != len(data)
}

// AddTrailingCommas puts a comma after the last value of every non-empty
// object and array, the way the IDE writes them. Commas already present are
// kept, so the result of a second call is unchanged.
func AddTrailingCommas(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	inString := false
	var prev byte
	prevEnd := 0
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			if c == '\\' && i+1 < len(data) {
				i++
				out = append(out, data[i])
			} else if c == '"' {
				inString = false
				prev, prevEnd = c, len(out)
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
		case (c == '}' || c == ']') && prev != 0 && prev != ',' && prev != '{' && prev != '[':
			out = append(out[:prevEnd], append([]byte{','}, out[prevEnd:]...)...)
		}
		out = append(out, c)
		if !inString && !isJSONSpace(c) {
			prev, prevEnd = c, len(out)
		}
	}
	return out
}

// ReplaceArray rewrites the array under the top-level key of doc with one
// entry per line. Indentation, line endings and the trailing-comma dialect
// are taken from doc; entries are written as given apart from the commas the
// dialect asks for. Everything outside the array keeps its bytes. A missing
// key is appended to the root object.
func ReplaceArray(doc []byte, key string, entries [][]byte) ([]byte, error) {
	if !validJSON(doc) {
		return nil, errors.New("replace array: invalid json")
	}
	nl := "\n"
	if bytes.Contains(doc, []byte("\r\n")) {
		nl = "\r\n"
	}
	trailing := HasTrailingCommas(doc)

	current := gjson.GetBytes(doc, key)
	if !current.Exists() {
		return insertKey(doc, key, formatArray(entries, "    ", "  ", nl, trailing), nl, trailing)
	}
	if !current.IsArray() || current.Index == 0 {
		return nil, fmt.Errorf("replace array: %s is not an array", key)
	}
	start, end := current.Index, current.Index+len(current.Raw)
	outer := lineIndent(doc, start)
	inner := outer + "  "
	current.ForEach(func(_, v gjson.Result) bool {
		if indent, ok := indentBefore(doc, v.Index); ok {
			inner = indent
		}
		return false
	})
	if indent, ok := indentBefore(doc, end-1); ok {
		outer = indent
	}

	out := make([]byte, 0, len(doc)+len(entries)*64)
	out = append(out, doc[:start]...)
	out = append(out, formatArray(entries, inner, outer, nl, trailing)...)
	return append(out, doc[end:]...), nil
}

func formatArray(entries [][]byte, inner, outer, nl string, trailing bool) []byte {
	if len(entries) == 0 {
		return []byte("[]")
	}
	var b bytes.Buffer
	b.WriteByte('[')
	for i, entry := range entries {
		entry = bytes.TrimSpace(entry)
		if trailing {
			entry = AddTrailingCommas(entry)
		}
		b.WriteString(nl + inner)
		b.Write(entry)
		if trailing || i < len(entries)-1 {
			b.WriteByte(',')
		}
	}
	b.WriteString(nl + outer + "]")
	return b.Bytes()
}

func insertKey(doc []byte, key string, value []byte, nl string, trailing bool) ([]byte, error) {
	end := bytes.LastIndexByte(doc, '}')
	if end < 0 {
		return nil, errors.New("replace array: document is not an object")
	}
	last := end - 1
	for last >= 0 && isJSONSpace(doc[last]) {
		last--
	}
	quoted, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	b.Write(doc[:last+1])
	if last >= 0 && doc[last] != ',' && doc[last] != '{' {
		b.WriteByte(',')
	}
	b.WriteString(nl + "  ")
	b.Write(quoted)
	b.WriteString(": ")
	b.Write(value)
	if trailing {
		b.WriteByte(',')
	}
	b.WriteString(nl)
	b.Write(doc[end:])
	return b.Bytes(), nil
}

// lineIndent is the leading whitespace of the line holding pos.
func lineIndent(doc []byte, pos int) string {
	start := bytes.LastIndexByte(doc[:pos], '\n') + 1
	end := start
	for end < pos && (doc[end] == ' ' || doc[end] == '\t') {
		end++
	}
	return string(doc[start:end])
}

// indentBefore returns what precedes pos on its line when that is only
// whitespace.
func indentBefore(doc []byte, pos int) (string, bool) {
	start := bytes.LastIndexByte(doc[:pos], '\n') + 1
	if start == 0 {
		return "", false
	}
	indent := doc[start:pos]
	if len(bytes.Trim(indent, " \t")) != 0 {
		return "", false
	}
	return string(indent), true
}
