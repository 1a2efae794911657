// Package results builds the result document of a simulated day and exports
// it as XML, JSON or a zipped XML file. It also aggregates the results of
// several days into a summary.
package results

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Document is the result of one simulated day.
type Document struct {
	XMLName   xml.Name  `xml:"xml" json:"-"`
	Periods   int       `xml:"periods" json:"periods"`
	Externals []Element `xml:"externals>element,omitempty" json:"externals,omitempty"`
	General   General   `xml:"general" json:"general"`
	Elements  []Element `xml:"elements>element" json:"elements"`
}

// General holds the values of the whole system.
type General struct {
	Data     []Datum  `xml:"data" json:"data"`
	TimeData []Series `xml:"timedata" json:"timedata"`
	Graphs   []Graph  `xml:"timegraph" json:"timegraphs"`
}

// Element is an actor, a line or a bus.
type Element struct {
	ID       string     `xml:"id,attr" json:"id"`
	Name     string     `xml:"name,attr" json:"name"`
	Data     []Datum    `xml:"data" json:"data,omitempty"`
	TimeData []Series   `xml:"timedata" json:"timedata,omitempty"`
	Graphs   []Graph    `xml:"timegraph" json:"timegraphs,omitempty"`
	Style    *TimeStyle `xml:"timestyle" json:"timestyle,omitempty"`
	Text     *TimeStyle `xml:"timetext" json:"timetext,omitempty"`
}

// Datum is a labelled scalar, already formatted.
type Datum struct {
	ID    string `xml:"id,attr" json:"id"`
	Value string `xml:",chardata" json:"value"`
}

// Series is a labelled value per period.
type Series struct {
	ID     string `xml:"id,attr" json:"id"`
	Values Floats `xml:",chardata" json:"values"`
}

// Graph groups the series drawn together.
type Graph struct {
	ID     string   `xml:"id,attr" json:"id"`
	Title  string   `xml:"title,attr" json:"title"`
	YLabel string   `xml:"ylabel,attr" json:"ylabel"`
	Data   []Series `xml:"timegraphdata" json:"data"`
}

// TimeStyle is a default rendering hint with one override per period.
type TimeStyle struct {
	Default string `xml:"default" json:"default"`
	Periods string `xml:"periods" json:"periods"`
}

// Floats renders as comma separated values with four decimals in XML.
type Floats []float64

func (f Floats) MarshalText() ([]byte, error) {
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = fmt.Sprintf("%.4f", v)
	}
	return []byte(strings.Join(parts, ",")), nil
}

func (f *Floats) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	*f = (*f)[:0]
	if s == "" {
		return nil
	}
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("series value %q: %w", p, err)
		}
		*f = append(*f, v)
	}
	return nil
}

func (f Floats) MarshalJSON() ([]byte, error) { return json.Marshal([]float64(f)) }

func (f *Floats) UnmarshalJSON(b []byte) error { return json.Unmarshal(b, (*[]float64)(f)) }

// Value returns the general datum id.
func (d *Document) Value(id string) (string, bool) {
	for _, v := range d.General.Data {
		if v.ID == id {
			return v.Value, true
		}
	}
	return "", false
}

// Series returns the general time data id.
func (d *Document) Series(id string) (Floats, bool) {
	for _, s := range d.General.TimeData {
		if s.ID == id {
			return s.Values, true
		}
	}
	return nil, false
}

// Element returns the element id, searching the externals first.
func (d *Document) Element(id string) (*Element, bool) {
	for _, list := range [][]Element{d.Externals, d.Elements} {
		for i := range list {
			if list[i].ID == id {
				return &list[i], true
			}
		}
	}
	return nil, false
}

// Value returns the datum id of the element.
func (e *Element) Value(id string) (string, bool) {
	for _, v := range e.Data {
		if v.ID == id {
			return v.Value, true
		}
	}
	return "", false
}

// Graph returns the graph id of the element.
func (e *Element) Graph(id string) (*Graph, bool) {
	for i := range e.Graphs {
		if e.Graphs[i].ID == id {
			return &e.Graphs[i], true
		}
	}
	return nil, false
}

// Series returns the series id of the graph.
func (g *Graph) Series(id string) (Floats, bool) {
	for _, s := range g.Data {
		if s.ID == id {
			return s.Values, true
		}
	}
	return nil, false
}
