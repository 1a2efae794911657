package instance

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/flexmarket/core/market"
)

// File names of an instance folder.
const (
	PricesFile           = "prices.csv"
	NetworkFile          = "network.csv"
	QualifiedFlexFile    = "qualified-flex.csv"
	TSOFile              = "tso.csv"
	InteractionModelFile = "interaction-model.csv"
	InteractionModelYAML = "interaction-model.yaml"
	RetailersDir         = "retailers"
	ProducersDir         = "producers"
)

// Prices holds the general data of prices.csv. Every price is multiplied by
// Dt.
type Prices struct {
	T                int
	Eps              float64
	ImbalancePenalty float64
	Dt               float64

	Energy        []float64
	UpImbalance   []float64
	DownImbalance []float64
}

// ReadPrices parses prices.csv: a row T, EPS, pi^i, dt followed by T rows
// t, piE, piI+, piI-.
func ReadPrices(r io.Reader) (*Prices, error) {
	p := NewParser(PricesFile, r)
	row := p.Next()
	pr := &Prices{T: p.Int(row, 0), Eps: p.Float(row, 1), Dt: p.Float(row, 3)}
	pr.ImbalancePenalty = p.Float(row, 2) * pr.Dt
	if err := p.Err(); err != nil {
		return nil, err
	}
	if pr.T < 1 {
		return nil, fmt.Errorf("%w: %s: %d periods", ErrMalformed, PricesFile, pr.T)
	}
	pr.Energy = make([]float64, pr.T)
	pr.UpImbalance = make([]float64, pr.T)
	pr.DownImbalance = make([]float64, pr.T)
	for i := 0; i < pr.T; i++ {
		row := p.Next()
		t := p.Index(row, 0, 1, pr.T) - 1
		pr.Energy[t] = p.Float(row, 1) * pr.Dt
		pr.UpImbalance[t] = p.Float(row, 2) * pr.Dt
		pr.DownImbalance[t] = p.Float(row, 3) * pr.Dt
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return pr, nil
}

// ReadNodeCount returns N, the first field of the first row of network.csv.
func ReadNodeCount(r io.Reader) (int, error) {
	p := NewParser(NetworkFile, r)
	n := p.Int(p.Next(), 0)
	if err := p.Err(); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %s: %d nodes", ErrMalformed, NetworkFile, n)
	}
	return n, nil
}

// ReadInteractionModel parses key,value rows over the defaults.
func ReadInteractionModel(r io.Reader) (market.InteractionModel, error) {
	m := market.DefaultInteractionModel()
	p := NewParser(InteractionModelFile, r)
	for {
		row := p.Next()
		if row == nil {
			break
		}
		if len(row) != 2 {
			return m, fmt.Errorf("%w: %s:%d: require 2 fields, got %q", market.ErrInvalidOption, InteractionModelFile, p.line, row)
		}
		if err := m.Set(row[0], row[1]); err != nil {
			return m, fmt.Errorf("%s:%d: %w", InteractionModelFile, p.line, err)
		}
	}
	if err := p.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return m, err
	}
	return m, nil
}

// DecodeInteractionModel reads a YAML document with the keys of the CSV
// form over the defaults.
func DecodeInteractionModel(r io.Reader) (market.InteractionModel, error) {
	m := market.DefaultInteractionModel()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return m, fmt.Errorf("%w: %s: %v", market.ErrInvalidOption, InteractionModelYAML, err)
	}
	ar, err := market.ParseAccessRestriction(string(m.AccessRestriction))
	if err != nil {
		return m, err
	}
	m.AccessRestriction = ar
	bc, err := market.ParseBoundsComputation(string(m.AccessBoundsComputation))
	if err != nil {
		return m, err
	}
	m.AccessBoundsComputation = bc
	m.DSOFlexCost = market.FlexCost(strings.ToLower(string(m.DSOFlexCost)))
	return m, m.Validate()
}

// Actor is the raw file of a producer or retailer. Name is the base name of
// the file.
type Actor struct {
	Name string
	Raw  []byte
}

// Instance is the content of an instance folder.
type Instance struct {
	Dir    string
	Prices *Prices
	N      int
	Model  market.InteractionModel

	PricesRaw     []byte
	Network       []byte
	QualifiedFlex []byte
	TSO           []byte
	Retailers     []Actor
	Producers     []Actor
}

// Load reads the instance folder dir. Actor files are sorted by name.
func Load(dir string) (*Instance, error) {
	in := &Instance{Dir: dir}
	var err error
	read := func(name string) []byte {
		if err != nil {
			return nil
		}
		var b []byte
		b, err = os.ReadFile(filepath.Join(dir, name))
		return b
	}
	in.PricesRaw = read(PricesFile)
	in.Network = read(NetworkFile)
	in.QualifiedFlex = read(QualifiedFlexFile)
	in.TSO = read(TSOFile)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", dir, err)
	}

	if in.Prices, err = ReadPrices(bytes.NewReader(in.PricesRaw)); err != nil {
		return nil, err
	}
	if in.N, err = ReadNodeCount(bytes.NewReader(in.Network)); err != nil {
		return nil, err
	}
	if in.Model, err = loadModel(dir); err != nil {
		return nil, err
	}
	if in.Retailers, err = loadActors(filepath.Join(dir, RetailersDir)); err != nil {
		return nil, err
	}
	if in.Producers, err = loadActors(filepath.Join(dir, ProducersDir)); err != nil {
		return nil, err
	}
	return in, nil
}

func loadModel(dir string) (market.InteractionModel, error) {
	if f, err := os.Open(filepath.Join(dir, InteractionModelFile)); err == nil {
		defer f.Close()
		return ReadInteractionModel(f)
	} else if !errors.Is(err, os.ErrNotExist) {
		return market.InteractionModel{}, err
	}
	if f, err := os.Open(filepath.Join(dir, InteractionModelYAML)); err == nil {
		defer f.Close()
		return DecodeInteractionModel(f)
	} else if !errors.Is(err, os.ErrNotExist) {
		return market.InteractionModel{}, err
	}
	return market.DefaultInteractionModel(), nil
}

func loadActors(dir string) ([]Actor, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make([]Actor, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, Actor{Name: strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)), Raw: b})
	}
	return out, nil
}

// NewData builds the shared state of the instance.
func (in *Instance) NewData() *market.Data {
	pr := in.Prices
	d := market.NewData(pr.T, in.N)
	d.Dt = pr.Dt
	d.Eps = pr.Eps
	d.ImbalancePenalty = pr.ImbalancePenalty
	copy(d.EnergyPrice, pr.Energy)
	copy(d.UpImbalancePrice, pr.UpImbalance)
	copy(d.DownImbalancePrice, pr.DownImbalance)
	d.Model = in.Model
	d.ResetIteration()
	return d
}
