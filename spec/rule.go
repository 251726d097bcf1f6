package spec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SurfelRuleSpec is a substance transformation applied to every surfel after
// each transport pass. Exactly one variant is set. In YAML the variant is
// recognized by its keys:
//
//	{from, to, factor}  transfer
//	{from, factor}      deteriorate
//	{to, amount}        deposit
type SurfelRuleSpec struct {
	Transfer    *TransferRule
	Deteriorate *DeteriorateRule
	Deposit     *DepositRule
}

// TransferRule moves factor times the from concentration into to.
type TransferRule struct {
	From   string  `yaml:"from"`
	To     string  `yaml:"to"`
	Factor float64 `yaml:"factor"`
}

// DeteriorateRule scales the from concentration by 1 - factor.
type DeteriorateRule struct {
	From   string  `yaml:"from"`
	Factor float64 `yaml:"factor"`
}

// DepositRule adds a constant amount of to.
type DepositRule struct {
	To     string  `yaml:"to"`
	Amount float64 `yaml:"amount"`
}

// Substances lists the substance names the rule references.
func (r SurfelRuleSpec) Substances() []string {
	switch {
	case r.Transfer != nil:
		return []string{r.Transfer.From, r.Transfer.To}
	case r.Deteriorate != nil:
		return []string{r.Deteriorate.From}
	case r.Deposit != nil:
		return []string{r.Deposit.To}
	}
	return nil
}

func (r *SurfelRuleSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: surfel rule must be a mapping", value.Line)
	}
	keys := make(map[string]bool, len(value.Content)/2)
	for i := 0; i < len(value.Content); i += 2 {
		keys[value.Content[i].Value] = true
	}

	switch {
	case keys["from"] && keys["to"] && keys["factor"] && len(keys) == 3:
		var t TransferRule
		if err := value.Decode(&t); err != nil {
			return err
		}
		*r = SurfelRuleSpec{Transfer: &t}
	case keys["from"] && keys["factor"] && len(keys) == 2:
		var d DeteriorateRule
		if err := value.Decode(&d); err != nil {
			return err
		}
		*r = SurfelRuleSpec{Deteriorate: &d}
	case keys["to"] && keys["amount"] && len(keys) == 2:
		var d DepositRule
		if err := value.Decode(&d); err != nil {
			return err
		}
		*r = SurfelRuleSpec{Deposit: &d}
	default:
		return fmt.Errorf("line %d: surfel rule matches none of transfer {from, to, factor}, deteriorate {from, factor}, deposit {to, amount}", value.Line)
	}
	return nil
}

func (r SurfelRuleSpec) MarshalYAML() (any, error) {
	switch {
	case r.Transfer != nil:
		return r.Transfer, nil
	case r.Deteriorate != nil:
		return r.Deteriorate, nil
	case r.Deposit != nil:
		return r.Deposit, nil
	}
	return nil, fmt.Errorf("empty surfel rule")
}
