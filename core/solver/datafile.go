package solver

import (
	"bytes"
	"fmt"
	"strconv"
)

// DataFile builds the comma separated data files read by the models. Lines
// starting with '#' are comments.
type DataFile struct {
	name string
	buf  bytes.Buffer
}

// NewDataFile starts a data file named name.
func NewDataFile(name string) *DataFile { return &DataFile{name: name} }

// Comment appends a comment line.
func (f *DataFile) Comment(text string) *DataFile {
	f.buf.WriteString("# ")
	f.buf.WriteString(text)
	f.buf.WriteByte('\n')
	return f
}

// Line appends text verbatim.
func (f *DataFile) Line(text string) *DataFile {
	f.buf.WriteString(text)
	f.buf.WriteByte('\n')
	return f
}

// Row appends a line of comma separated values.
func (f *DataFile) Row(values ...any) *DataFile {
	for i, v := range values {
		if i > 0 {
			f.buf.WriteByte(',')
		}
		f.buf.WriteString(Format(v))
	}
	f.buf.WriteByte('\n')
	return f
}

// Spaced appends a line of values separated by a comma and a space.
func (f *DataFile) Spaced(values ...any) *DataFile {
	for i, v := range values {
		if i > 0 {
			f.buf.WriteString(", ")
		}
		f.buf.WriteString(Format(v))
	}
	f.buf.WriteByte('\n')
	return f
}

// Ints appends a line of integers.
func (f *DataFile) Ints(values []int) *DataFile {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return f.Row(row...)
}

// Input returns the file as a problem input.
func (f *DataFile) Input() Input {
	return Input{Name: f.name, Content: append([]byte(nil), f.buf.Bytes()...)}
}

// String returns the file content.
func (f *DataFile) String() string { return f.buf.String() }

// Format renders a value the way the models expect it.
func Format(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
