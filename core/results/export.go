package results

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrFormat reports an export path with an unsupported extension.
var ErrFormat = errors.New("unsupported result format")

// Header is the XML declaration of result documents.
const Header = `<?xml version="1.0" encoding="ISO-8859-1" ?>` + "\n"

// WriteXML writes doc as an ISO-8859-1 document. Runes outside ASCII are
// written as character references.
func WriteXML(w io.Writer, doc *Document) error {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if _, err := io.WriteString(w, Header); err != nil {
		return err
	}
	if _, err := w.Write(asciiOnly(buf.Bytes())); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func asciiOnly(b []byte) []byte {
	if !bytes.ContainsFunc(b, func(r rune) bool { return r >= utf8.RuneSelf }) {
		return b
	}
	var out bytes.Buffer
	for _, r := range string(b) {
		if r < utf8.RuneSelf {
			out.WriteRune(r)
		} else {
			fmt.Fprintf(&out, "&#%d;", r)
		}
	}
	return out.Bytes()
}

// ReadXML decodes a document written by WriteXML.
func ReadXML(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(charset string, in io.Reader) (io.Reader, error) {
		if strings.EqualFold(charset, "ISO-8859-1") || strings.EqualFold(charset, "latin1") {
			return in, nil
		}
		return nil, fmt.Errorf("%w: charset %s", ErrFormat, charset)
	}
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &doc, nil
}

// Export writes doc to path. The extension selects the format: .xml, .json,
// .html charts or .zip, an archive holding <name>.xml.
func Export(path string, doc *Document) error {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		if err := WriteXML(&buf, doc); err != nil {
			return err
		}
	case ".json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	case ".html":
		if err := WriteHTML(&buf, doc); err != nil {
			return err
		}
	case ".zip":
		zw := zip.NewWriter(&buf)
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".xml"
		f, err := zw.Create(name)
		if err != nil {
			return err
		}
		if err := WriteXML(f, doc); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrFormat, path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load reads a document exported by Export.
func Load(path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadXML(f)
	case ".json":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		return &doc, nil
	case ".zip":
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".xml"
		f, err := zr.Open(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer f.Close()
		return ReadXML(f)
	}
	return nil, fmt.Errorf("%w: %s", ErrFormat, path)
}
