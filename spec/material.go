package spec

// SurfelSpec describes the surfels sampled on entities with a given material.
type SurfelSpec struct {
	Name        string             `yaml:"name,omitempty"`
	Description string             `yaml:"description,omitempty"`
	Reflectance ReflectanceSpec    `yaml:"reflectance"`
	Initial     map[string]float64 `yaml:"initial,omitempty"`
	Deposit     map[string]float64 `yaml:"deposit,omitempty"`
	Rules       []SurfelRuleSpec   `yaml:"rules,omitempty"`
}

// ReflectanceSpec holds the probability of a ton keeping its motion after
// hitting a surfel, per motion type.
type ReflectanceSpec struct {
	DeltaStraight  float64 `yaml:"delta_straight"`
	DeltaParabolic float64 `yaml:"delta_parabolic"`
	DeltaFlow      float64 `yaml:"delta_flow"`
}

// SourceSpec describes an emitter of tons.
type SourceSpec struct {
	Name              string             `yaml:"name,omitempty"`
	Description       string             `yaml:"description,omitempty"`
	Mesh              string             `yaml:"mesh"`
	EmissionCount     int                `yaml:"emission_count"`
	Diffuse           bool               `yaml:"diffuse,omitempty"`
	PStraight         float64            `yaml:"p_straight"`
	PParabolic        float64            `yaml:"p_parabolic"`
	PFlow             float64            `yaml:"p_flow"`
	Initial           map[string]float64 `yaml:"initial,omitempty"`
	Absorb            map[string]float64 `yaml:"absorb,omitempty"`
	InteractionRadius float64            `yaml:"interaction_radius"`
	ParabolaHeight    float64            `yaml:"parabola_height"`
	FlowDistance      float64            `yaml:"flow_distance"`
	FlowDirection     *[3]float64        `yaml:"flow_direction,omitempty"`
}
