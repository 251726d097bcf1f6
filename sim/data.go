package sim

import (
	"fmt"
)

// SurfelData is the simulation state of one surfel.
type SurfelData struct {
	// Entity is the index of the entity the surfel was sampled from.
	Entity int

	// Probability of a ton keeping each kind of motion after a contact.
	DeltaStraight  float64
	DeltaParabolic float64
	DeltaFlow      float64

	// Substances and Deposition are aligned to the substance table.
	Substances []float64
	Deposition []float64

	Rules []SurfelRule
}

// Clone returns a deep copy so that prototypes can be instantiated per surfel.
func (d SurfelData) Clone() SurfelData {
	d.Substances = append([]float64(nil), d.Substances...)
	d.Deposition = append([]float64(nil), d.Deposition...)
	d.Rules = append([]SurfelRule(nil), d.Rules...)
	return d
}

// RuleKind distinguishes surfel rules.
type RuleKind uint8

const (
	RuleTransfer RuleKind = iota
	RuleDeteriorate
	RuleDeposit
)

// SurfelRule is a substance transformation with resolved substance indices.
type SurfelRule struct {
	Kind   RuleKind
	From   int
	To     int
	Factor float64
	Amount float64
}

// Transfer moves factor times the concentration of from into to.
func Transfer(from, to int, factor float64) SurfelRule {
	return SurfelRule{Kind: RuleTransfer, From: from, To: to, Factor: factor}
}

// Deteriorate removes factor times the concentration of substance.
func Deteriorate(substance int, factor float64) SurfelRule {
	return SurfelRule{Kind: RuleDeteriorate, From: substance, Factor: factor}
}

// Deposit adds a constant amount of substance.
func Deposit(substance int, amount float64) SurfelRule {
	return SurfelRule{Kind: RuleDeposit, To: substance, Amount: amount}
}

// Apply transforms substances in place. Concentrations never drop below zero.
func (r SurfelRule) Apply(substances []float64) {
	switch r.Kind {
	case RuleTransfer:
		moved := substances[r.From] * r.Factor
		substances[r.From] = max(0, substances[r.From]-moved)
		substances[r.To] = max(0, substances[r.To]+moved)
	case RuleDeteriorate:
		substances[r.From] = max(0, substances[r.From]-substances[r.From]*r.Factor)
	case RuleDeposit:
		substances[r.To] = max(0, substances[r.To]+r.Amount)
	}
}

func (r SurfelRule) String() string {
	switch r.Kind {
	case RuleTransfer:
		return fmt.Sprintf("transfer(%d -> %d, %g)", r.From, r.To, r.Factor)
	case RuleDeteriorate:
		return fmt.Sprintf("deteriorate(%d, %g)", r.From, r.Factor)
	case RuleDeposit:
		return fmt.Sprintf("deposit(%d, %g)", r.To, r.Amount)
	}
	return "unknown rule"
}
