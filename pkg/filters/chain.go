package filters

import (
	"fmt"
	"strings"

	"nanorods/internal/models"
)

// Filter is one configurable stage of the filter bank
type Filter interface {
	// Name identifies the filter in logs
	Name() string

	// Validate checks the thresholds before any image is processed
	Validate() error

	// Apply returns the label map with the rejected regions zeroed
	Apply(labels *models.LabelMap, pixelSize float64) *models.LabelMap
}

// AreaFilter keeps regions larger than MinNm2
type AreaFilter struct {
	MinNm2 float64
}

func (f AreaFilter) Name() string { return "area" }

func (f AreaFilter) Validate() error {
	if f.MinNm2 < 0 {
		return fmt.Errorf("%w: area threshold must be non-negative, got %v", models.ErrInvalidParameter, f.MinNm2)
	}
	return nil
}

func (f AreaFilter) Apply(labels *models.LabelMap, pixelSize float64) *models.LabelMap {
	return ByArea(labels, f.MinNm2, pixelSize)
}

// MinorAxisFilter keeps regions whose minor axis is shorter than MaxNm
type MinorAxisFilter struct {
	MaxNm float64
}

func (f MinorAxisFilter) Name() string { return "minorAxis" }

func (f MinorAxisFilter) Validate() error {
	if f.MaxNm < 0 {
		return fmt.Errorf("%w: minor axis threshold must be non-negative, got %v", models.ErrInvalidParameter, f.MaxNm)
	}
	return nil
}

func (f MinorAxisFilter) Apply(labels *models.LabelMap, pixelSize float64) *models.LabelMap {
	return ByMinorAxisLength(labels, f.MaxNm, pixelSize)
}

// EccentricityFilter keeps regions with an eccentricity above Min
type EccentricityFilter struct {
	Min float64
}

func (f EccentricityFilter) Name() string { return "eccentricity" }

func (f EccentricityFilter) Validate() error {
	if f.Min < 0 || f.Min >= 1 {
		return fmt.Errorf("%w: eccentricity threshold must be in [0, 1), got %v", models.ErrInvalidParameter, f.Min)
	}
	return nil
}

func (f EccentricityFilter) Apply(labels *models.LabelMap, _ float64) *models.LabelMap {
	return ByEccentricity(labels, f.Min)
}

// AreaToLengthFilter keeps regions whose effective width lies in [MinRatio, MaxRatio]
type AreaToLengthFilter struct {
	OffsetNm float64
	MinRatio float64
	MaxRatio float64
}

func (f AreaToLengthFilter) Name() string { return "areaToLength" }

func (f AreaToLengthFilter) Validate() error {
	if f.MinRatio < 0 || f.MaxRatio < 0 || f.OffsetNm < 0 {
		return fmt.Errorf("%w: area to length bounds and offset must be non-negative", models.ErrInvalidParameter)
	}
	if f.MinRatio > f.MaxRatio {
		return fmt.Errorf("%w: area to length min %v exceeds max %v", models.ErrInvalidParameter, f.MinRatio, f.MaxRatio)
	}
	return nil
}

func (f AreaToLengthFilter) Apply(labels *models.LabelMap, pixelSize float64) *models.LabelMap {
	return ByAreaToLength(labels, pixelSize, f.OffsetNm, f.MinRatio, f.MaxRatio)
}

// Chain applies filters in order
type Chain []Filter

// Validate checks every filter of the chain
func (c Chain) Validate() error {
	for _, f := range c {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("filter %s: %w", f.Name(), err)
		}
	}
	return nil
}

// Apply runs the chain, each filter consuming the previous filter's output
func (c Chain) Apply(labels *models.LabelMap, pixelSize float64) *models.LabelMap {
	for _, f := range c {
		labels = f.Apply(labels, pixelSize)
	}
	return labels
}

// Rule is the configuration form of a filter
type Rule struct {
	// Type is one of area, minorAxis, eccentricity, areaToLength
	Type string `yaml:"type"`

	// Value is the single threshold of area, minorAxis and eccentricity filters
	Value float64 `yaml:"value,omitempty"`

	// Min and Max bound the areaToLength filter
	Min float64 `yaml:"min,omitempty"`
	Max float64 `yaml:"max,omitempty"`
}

// FromRules builds and validates a chain. offsetNm is used by the areaToLength filter.
func FromRules(rules []Rule, offsetNm float64) (Chain, error) {
	chain := make(Chain, 0, len(rules))
	for i, s := range rules {
		var f Filter
		switch strings.ToLower(s.Type) {
		case "area":
			f = AreaFilter{MinNm2: s.Value}
		case "minoraxis", "minor_axis", "minoraxislength":
			f = MinorAxisFilter{MaxNm: s.Value}
		case "eccentricity":
			f = EccentricityFilter{Min: s.Value}
		case "areatolength", "area_to_length":
			f = AreaToLengthFilter{OffsetNm: offsetNm, MinRatio: s.Min, MaxRatio: s.Max}
		default:
			return nil, fmt.Errorf("%w: filter %d has unknown type %q", models.ErrInvalidParameter, i, s.Type)
		}
		chain = append(chain, f)
	}
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	return chain, nil
}

// DefaultRules returns the filters used for the reference nanorod batches
func DefaultRules() []Rule {
	return []Rule{
		{Type: "area", Value: 500},
		{Type: "minorAxis", Value: 40},
	}
}

// DefaultChain returns DefaultRules as a chain
func DefaultChain() Chain {
	return Chain{
		AreaFilter{MinNm2: 500},
		MinorAxisFilter{MaxNm: 40},
	}
}
