package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// ErrNoDays reports a summary over no document.
var ErrNoDays = errors.New("no day to summarize")

// SummaryAttributes are the general values aggregated over the days.
var SummaryAttributes = []string{
	"Welfare", "Protections cost", "DSOs costs", "TSOs surplus", "Producers surplus",
	"Retailers surplus", "Total energy shed", "Max. imbalance", "Total production",
	"Total consumption", "Total imbalance", "Total usage of flex.", "Total opp. usage of flex.",
}

// DayAttributes are the general values listed per day.
var DayAttributes = []string{
	"Welfare", "Time", "Iterations", "DSOs costs", "Protections cost", "TSOs surplus",
	"Producers surplus", "Retailers surplus", "Total energy shed", "Total production",
	"Total consumption", "Max. imbalance", "Total imbalance", "Total usage of flex.",
}

// Stat is the mean, minimum and maximum of a value over the days.
type Stat struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

func newStat() Stat { return Stat{Min: math.Inf(1), Max: math.Inf(-1)} }

func (s *Stat) add(v float64) {
	s.Mean += v
	s.Min = math.Min(s.Min, v)
	s.Max = math.Max(s.Max, v)
}

// Summary aggregates the results of several days.
type Summary struct {
	Days       []string            `json:"days"`
	Attributes map[string]Stat     `json:"attributes"`
	DayResults map[string][]string `json:"dayResults"`
	// Actors holds the costs of every external element.
	Actors map[string]Stat `json:"actors"`
}

// Summarize aggregates docs, named after days in the same order.
func Summarize(days []string, docs []*Document) (*Summary, error) {
	if len(docs) == 0 {
		return nil, ErrNoDays
	}
	if len(days) != len(docs) {
		return nil, fmt.Errorf("%d day names for %d documents", len(days), len(docs))
	}
	s := &Summary{
		Days:       append([]string(nil), days...),
		Attributes: make(map[string]Stat, len(SummaryAttributes)),
		DayResults: make(map[string][]string, len(DayAttributes)),
		Actors:     map[string]Stat{},
	}
	for _, a := range SummaryAttributes {
		s.Attributes[a] = newStat()
	}
	for i, doc := range docs {
		for _, a := range SummaryAttributes {
			v, err := docValue(doc, a)
			if err != nil {
				return nil, fmt.Errorf("day %s: %w", days[i], err)
			}
			st := s.Attributes[a]
			st.add(v)
			s.Attributes[a] = st
		}
		for _, a := range DayAttributes {
			v, _ := doc.Value(a)
			s.DayResults[a] = append(s.DayResults[a], v)
		}
		for _, e := range doc.Externals {
			raw, ok := e.Value("costs")
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("day %s: costs of %s: %w", days[i], e.Name, err)
			}
			st, ok := s.Actors[e.Name]
			if !ok {
				st = newStat()
			}
			st.add(v)
			s.Actors[e.Name] = st
		}
	}
	n := float64(len(docs))
	for a, st := range s.Attributes {
		st.Mean /= n
		s.Attributes[a] = st
	}
	for a, st := range s.Actors {
		st.Mean /= n
		s.Actors[a] = st
	}
	return s, nil
}

func docValue(doc *Document, id string) (float64, error) {
	raw, ok := doc.Value(id)
	if !ok {
		return 0, fmt.Errorf("missing %q", id)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", id, err)
	}
	return v, nil
}

// WriteCSV writes the summary as three comment headed tables: attributes,
// days and actors.
func (s *Summary) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	stat := func(name string, st Stat) []string { return []string{name, f(st.Mean), f(st.Min), f(st.Max)} }

	records := [][]string{{"# attribute", "mean", "min", "max"}}
	for _, a := range SummaryAttributes {
		records = append(records, stat(a, s.Attributes[a]))
	}
	records = append(records, append([]string{"# day"}, DayAttributes...))
	for i, day := range s.Days {
		row := []string{day}
		for _, a := range DayAttributes {
			if i < len(s.DayResults[a]) {
				row = append(row, s.DayResults[a][i])
			} else {
				row = append(row, "")
			}
		}
		records = append(records, row)
	}
	records = append(records, []string{"# actor", "mean", "min", "max"})
	names := make([]string, 0, len(s.Actors))
	for name := range s.Actors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		records = append(records, stat(name, s.Actors[name]))
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
