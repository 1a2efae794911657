package market

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidOption reports an unknown market design key or value.
var ErrInvalidOption = errors.New("invalid interaction model option")

// FlexCost selects the activation price the DSO pays for obligations.
type FlexCost string

const (
	FlexCostImbalance FlexCost = "imbalance"
	FlexCostNormal    FlexCost = "normal"
	FlexCostFull      FlexCost = "full"
)

// AccessRestriction selects how the DSO restricts the access of grid users.
type AccessRestriction string

const (
	AccessNone            AccessRestriction = "none"
	AccessConservative    AccessRestriction = "conservative"
	AccessFlexible        AccessRestriction = "flexible"
	AccessSafe            AccessRestriction = "safe"
	AccessDynamic         AccessRestriction = "dynamic"
	AccessDynamicBaseline AccessRestriction = "dynamicBaseline"
)

// BoundsComputation selects how grid users derive their access bounds.
type BoundsComputation string

const (
	BoundsHorizon   BoundsComputation = "horizon"
	BoundsInstalled BoundsComputation = "installed"
	BoundsDynamic   BoundsComputation = "dynamic"
	BoundsPeriodic  BoundsComputation = "periodic"
)

// InteractionModel gathers the market design choices of a run. It is read
// once and never modified afterwards.
type InteractionModel struct {
	DSOIsFSU                   bool              `yaml:"DSOIsFSU" json:"DSOIsFSU"`
	DSOFlexCost                FlexCost          `yaml:"DSOFlexCost" json:"DSOFlexCost"`
	ProductionFlexObligations  float64           `yaml:"productionFlexObligations" json:"productionFlexObligations"`
	ConsumptionFlexObligations float64           `yaml:"consumptionFlexObligations" json:"consumptionFlexObligations"`
	DSOImbalancePriceRatio     float64           `yaml:"DSOImbalancePriceRatio" json:"DSOImbalancePriceRatio"`
	AccessRestriction          AccessRestriction `yaml:"accessRestriction" json:"accessRestriction"`
	AccessBoundsComputation    BoundsComputation `yaml:"accessBoundsComputation" json:"accessBoundsComputation"`
	RelativeDeviation          float64           `yaml:"relativeDeviation" json:"relativeDeviation"`
}

// DefaultInteractionModel returns the reference market design.
func DefaultInteractionModel() InteractionModel {
	return InteractionModel{
		DSOIsFSU:                true,
		DSOFlexCost:             FlexCostImbalance,
		DSOImbalancePriceRatio:  100,
		AccessRestriction:       AccessNone,
		AccessBoundsComputation: BoundsHorizon,
		RelativeDeviation:       0.1,
	}
}

// DynamicBaseline reports whether baselines are proposed before the DSO
// computes dynamic ranges.
func (m InteractionModel) DynamicBaseline() bool {
	return m.AccessRestriction == AccessDynamicBaseline
}

// RestrictsFlexibility reports whether the DSO access restriction also
// limits the flexible range (conservative and safe access).
func (m InteractionModel) RestrictsFlexibility() bool {
	return m.AccessRestriction == AccessConservative || m.AccessRestriction == AccessSafe
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// Set assigns one option from its textual form. Legacy keys are translated.
func (m *InteractionModel) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch strings.TrimSpace(key) {
	case "DSOIsFSU":
		m.DSOIsFSU = parseBool(value)
	case "DSOFlexCost":
		c := FlexCost(strings.ToLower(value))
		if c != FlexCostImbalance && c != FlexCostNormal && c != FlexCostFull {
			return fmt.Errorf("%w: DSOFlexCost %q", ErrInvalidOption, value)
		}
		m.DSOFlexCost = c
	case "DSOAltCosts":
		if parseBool(value) {
			m.DSOFlexCost = FlexCostFull
		} else {
			m.DSOFlexCost = FlexCostNormal
		}
	case "nullAltCosts":
		if parseBool(value) {
			m.DSOFlexCost = FlexCostImbalance
		}
	case "productionFlexObligations":
		return setFloat(&m.ProductionFlexObligations, key, value)
	case "consumptionFlexObligations":
		return setFloat(&m.ConsumptionFlexObligations, key, value)
	case "DSOImbalancePriceRatio":
		return setFloat(&m.DSOImbalancePriceRatio, key, value)
	case "relativeDeviation":
		return setFloat(&m.RelativeDeviation, key, value)
	case "accessRestriction":
		r, err := ParseAccessRestriction(value)
		if err != nil {
			return err
		}
		m.AccessRestriction = r
	case "accessBoundsComputation", "prequalificationTimeWindow":
		b, err := ParseBoundsComputation(value)
		if err != nil {
			return err
		}
		m.AccessBoundsComputation = b
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidOption, key)
	}
	return nil
}

func setFloat(dst *float64, key, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrInvalidOption, key, value, err)
	}
	*dst = v
	return nil
}

// ParseAccessRestriction matches the restriction names case insensitively.
func ParseAccessRestriction(v string) (AccessRestriction, error) {
	for _, r := range []AccessRestriction{AccessNone, AccessConservative, AccessFlexible, AccessSafe, AccessDynamic, AccessDynamicBaseline} {
		if strings.EqualFold(v, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: accessRestriction %q", ErrInvalidOption, v)
}

// ParseBoundsComputation maps an empty value or "none" to the horizon mode.
func ParseBoundsComputation(v string) (BoundsComputation, error) {
	switch strings.ToLower(v) {
	case "", "none", "null", string(BoundsHorizon):
		return BoundsHorizon, nil
	case string(BoundsInstalled):
		return BoundsInstalled, nil
	case string(BoundsDynamic):
		return BoundsDynamic, nil
	case string(BoundsPeriodic):
		return BoundsPeriodic, nil
	}
	return "", fmt.Errorf("%w: accessBoundsComputation %q", ErrInvalidOption, v)
}

// Validate checks values assigned without Set, such as decoded documents.
func (m InteractionModel) Validate() error {
	if _, err := ParseAccessRestriction(string(m.AccessRestriction)); err != nil {
		return err
	}
	if _, err := ParseBoundsComputation(string(m.AccessBoundsComputation)); err != nil {
		return err
	}
	switch m.DSOFlexCost {
	case FlexCostImbalance, FlexCostNormal, FlexCostFull:
	default:
		return fmt.Errorf("%w: DSOFlexCost %q", ErrInvalidOption, m.DSOFlexCost)
	}
	if m.DSOImbalancePriceRatio < 0 {
		return fmt.Errorf("%w: negative DSOImbalancePriceRatio", ErrInvalidOption)
	}
	return nil
}
