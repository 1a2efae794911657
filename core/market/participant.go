package market

import (
	"context"

	"github.com/kilianp07/flexmarket/core/solver"
)

// Kind classifies market participants. The platform ranks buyers by kind.
type Kind uint8

const (
	KindOther Kind = iota
	KindDSO
	KindTSO
	KindProducer
	KindRetailer
)

func (k Kind) String() string {
	switch k {
	case KindDSO:
		return "DSO"
	case KindTSO:
		return "TSO"
	case KindProducer:
		return "producer"
	case KindRetailer:
		return "retailer"
	default:
		return "other"
	}
}

// Participant is a buyer or seller of flexibility.
type Participant interface {
	Name() string
	Nodes() []int
	Kind() Kind
}

// FSU is a flexibility service user. During clearing the platform hands it
// the bid books it may buy from.
type FSU interface {
	Participant
	EvaluateFlexibility(ctx context.Context, d *Data, books []solver.Input) error
}

func controls(p Participant, bus int) bool {
	for _, n := range p.Nodes() {
		if n == bus {
			return true
		}
	}
	return false
}
