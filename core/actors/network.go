package actors

import (
	"fmt"

	"github.com/kilianp07/flexmarket/core/instance"
)

// Network is the static description of the distribution grid.
type Network struct {
	N           int
	L           int
	BasePower   float64 // Sb
	BaseVoltage float64 // Vb
	// Capacity of line l is Capacity[l-1].
	Capacity []float64
	VMin     []float64
	VMax     []float64
}

// ReadNetwork parses network.csv: a row N, L, _, _, Sb, Vb, L line rows
// with the capacity in the sixth field and N bus rows n, _, Vmin, Vmax.
func ReadNetwork(b []byte) (*Network, error) {
	p := instance.ParseBytes(NetworkDataFile, b)
	row := p.Next()
	nw := &Network{N: p.Int(row, 0), L: p.Int(row, 1), BasePower: p.Float(row, 4), BaseVoltage: p.Float(row, 5)}
	if err := p.Err(); err != nil {
		return nil, err
	}
	if nw.N < 1 || nw.L < 0 {
		return nil, fmt.Errorf("%w: %s: %d nodes and %d lines", instance.ErrMalformed, NetworkDataFile, nw.N, nw.L)
	}
	nw.Capacity = make([]float64, nw.L)
	for i := 0; i < nw.L; i++ {
		row := p.Next()
		l := p.Index(row, 0, 1, nw.L)
		nw.Capacity[l-1] = p.Float(row, 5)
	}
	nw.VMin = make([]float64, nw.N)
	nw.VMax = make([]float64, nw.N)
	for i := 0; i < nw.N; i++ {
		row := p.Next()
		n := p.Index(row, 0, 0, nw.N-1)
		nw.VMin[n] = p.Float(row, 2)
		nw.VMax[n] = p.Float(row, 3)
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return nw, nil
}
