// Package config holds the planning policy: box geometry, miniprep count,
// reaction totals and extra reagent lookups. Policies are YAML files layered
// over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPolicyFile names the environment variable pointing at a policy file.
const EnvPolicyFile = "LABPLANNER_POLICY_FILE"

// Policy configures allocation and lab-sheet generation.
type Policy struct {
	Box       BoxPolicy      `yaml:"box"`
	Minipreps int            `yaml:"minipreps"`
	Reactions ReactionPolicy `yaml:"reactions"`
	// Extra name to reagent mappings layered over the built-in tables.
	Enzymes     map[string]string `yaml:"enzymes"`
	Strains     map[string]string `yaml:"strains"`
	Antibiotics map[string]string `yaml:"antibiotics"`
	// Assembly supplies a reaction template for assembly sheets. Nil leaves
	// assembly recipes unspecified.
	Assembly *AssemblyPolicy `yaml:"assembly"`
}

// BoxPolicy describes the boxes the allocator creates.
type BoxPolicy struct {
	Rows     int    `yaml:"rows"`
	Cols     int    `yaml:"cols"`
	Location string `yaml:"location"`
	// Description is a format string receiving the experiment name.
	Description string `yaml:"description"`
}

// ReactionPolicy holds totals in microliters and sheet metadata.
type ReactionPolicy struct {
	PCRTotal        float64 `yaml:"pcr_total"`
	DigestTotal     float64 `yaml:"digest_total"`
	LigateTotal     float64 `yaml:"ligate_total"`
	TransformTotal  float64 `yaml:"transform_total"`
	PCRElution      float64 `yaml:"pcr_elution"`
	DigestElution   float64 `yaml:"digest_elution"`
	LigateElution   float64 `yaml:"ligate_elution"`
	MiniprepElution float64 `yaml:"miniprep_elution"`
	GelSize         int     `yaml:"gel_size"`
	PCRProgram      string  `yaml:"pcr_program"`
	PCRProtocol     string  `yaml:"pcr_protocol"`
	PCRInstrument   string  `yaml:"pcr_instrument"`
}

// AssemblyPolicy is a reaction template for assembly steps: fixed reagents,
// one FragmentVolume slot per fragment, and Balance filling up to Total.
type AssemblyPolicy struct {
	Total          float64         `yaml:"total"`
	FragmentVolume float64         `yaml:"fragment_volume"`
	Reagents       []ReagentVolume `yaml:"reagents"`
	Balance        string          `yaml:"balance"`
}

// ReagentVolume is a reagent line of a configured template.
type ReagentVolume struct {
	Reagent string  `yaml:"reagent"`
	Volume  float64 `yaml:"volume"`
}

// DefaultPolicy returns the reference policy: 9x9 boxes stored at minus20,
// four minipreps per transformation, 50/20/20/400 uL reactions.
func DefaultPolicy() Policy {
	return Policy{
		Box: BoxPolicy{
			Rows:        9,
			Cols:        9,
			Location:    "minus20",
			Description: "Materials for %s",
		},
		Minipreps: 4,
		Reactions: ReactionPolicy{
			PCRTotal:        50,
			DigestTotal:     20,
			LigateTotal:     20,
			TransformTotal:  400,
			PCRElution:      25,
			DigestElution:   20,
			LigateElution:   20,
			MiniprepElution: 50,
			GelSize:         3800,
			PCRProgram:      "PG3K55",
			PCRProtocol:     "PrimeSTAR",
			PCRInstrument:   "Thermocycler 2A",
		},
	}
}

// Validate reports every inconsistent policy value.
func (p Policy) Validate() error {
	var errs []error
	if p.Box.Rows < 1 || p.Box.Rows > 26 {
		errs = append(errs, fmt.Errorf("box rows %d outside 1..26", p.Box.Rows))
	}
	if p.Box.Cols < 1 {
		errs = append(errs, fmt.Errorf("box cols %d must be positive", p.Box.Cols))
	}
	if p.Minipreps < 0 || p.Minipreps > 26 {
		errs = append(errs, fmt.Errorf("minipreps %d outside 0..26", p.Minipreps))
	}
	r := p.Reactions
	for name, v := range map[string]float64{
		"pcr_total": r.PCRTotal, "digest_total": r.DigestTotal,
		"ligate_total": r.LigateTotal, "transform_total": r.TransformTotal,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if r.GelSize <= 0 {
		errs = append(errs, errors.New("gel_size must be positive"))
	}
	if a := p.Assembly; a != nil {
		if a.Total <= 0 || a.FragmentVolume <= 0 {
			errs = append(errs, errors.New("assembly total and fragment_volume must be positive"))
		}
	}
	return errors.Join(errs...)
}

// LoadPolicy reads a YAML policy file over DefaultPolicy. An empty path
// returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// LoadPolicyFromEnv loads the file named by LABPLANNER_POLICY_FILE.
func LoadPolicyFromEnv() (Policy, error) {
	return LoadPolicy(os.Getenv(EnvPolicyFile))
}

// BoxDescription renders the box description for an experiment.
func (p Policy) BoxDescription(experiment string) string {
	if !strings.Contains(p.Box.Description, "%s") {
		return p.Box.Description
	}
	return fmt.Sprintf(p.Box.Description, experiment)
}
