// Package config reads the typed YAML configuration document supplying
// every construction parameter a ROUKF filter needs, so example drivers and
// CLI glue don't have to hand-assemble filter parameters in Go.
//
// Missing optional fields (convergence tolerance, max iterations, sigma
// distribution) log a warning and fall back to their documented defaults
// rather than failing the load.
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roukf/roukf-go/mapping"
	"github.com/roukf/roukf-go/sigma"
)

// FilterType selects between the joint state-parameter filter and the
// parameter-only filter.
type FilterType int

const (
	// FilterFull is the joint state-and-parameter variant (roukf.Full).
	FilterFull FilterType = iota
	// FilterStatic is the parameter-only variant (roukf.Static).
	FilterStatic
)

const (
	defaultConvergenceTol  = 1e-5
	defaultMaxIterations   = 1000
	defaultSigmaDist       = int(sigma.CANONIC)
	mappingTypeIdentity    = 0
	mappingTypeExponential = 1
	mappingTypeSigmoid     = 2
)

// MapperSpec describes one block of a composite parameter mapping, mirroring
// the file's `{type, numParam, min?, max?}` entries.
type MapperSpec struct {
	Type     int     `yaml:"type"`
	NumParam int     `yaml:"numParam"`
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
}

// Config is the typed configuration document.
type Config struct {
	FilterType             int          `yaml:"filterType"`
	States                 int          `yaml:"states"`
	Parameters             int          `yaml:"parameters"`
	Observations           int          `yaml:"observations"`
	InitialGuess           []float64    `yaml:"initialGuess"`
	ParameterUncertainty   []float64    `yaml:"parameterUncertainty"`
	ObservationsValues     [][]float64  `yaml:"observationsValues"`
	ObservationsUncertainty []float64   `yaml:"observationsUncertainty"`
	ParameterMapping       []MapperSpec `yaml:"parameterMapping"`
	SigmaDistribution      *int         `yaml:"sigmaDistribution"`
	ConvergenceTol         *float64     `yaml:"convergenceTol"`
	MaxIterations          *float64     `yaml:"maxIterations"`
}

// Load reads and parses a YAML configuration file from path, applying the
// documented defaults to any missing optional field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML configuration document from data, applying the
// documented defaults to any missing optional field.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: failed to parse: %w", err)
	}

	if c.SigmaDistribution == nil {
		log.Printf("config: sigmaDistribution not set, defaulting to CANONIC")
		d := defaultSigmaDist
		c.SigmaDistribution = &d
	}
	if c.ConvergenceTol == nil {
		log.Printf("config: convergenceTol not set, defaulting to %g", defaultConvergenceTol)
		t := defaultConvergenceTol
		c.ConvergenceTol = &t
	}
	if c.MaxIterations == nil {
		log.Printf("config: maxIterations not set, defaulting to %g", float64(defaultMaxIterations))
		m := float64(defaultMaxIterations)
		c.MaxIterations = &m
	}

	return &c, nil
}

// Mapper builds the mapping.Mapper the configuration describes: a single
// elementary mapper if there is exactly one block spanning every parameter,
// otherwise a mapping.Composite over the listed blocks.
func (c *Config) Mapper() (mapping.Mapper, error) {
	if len(c.ParameterMapping) == 0 {
		return mapping.NewIdentity(), nil
	}

	blocks := make([]mapping.Block, len(c.ParameterMapping))
	for i, m := range c.ParameterMapping {
		mapper, err := elementaryMapper(m)
		if err != nil {
			return nil, fmt.Errorf("config: parameterMapping[%d]: %w", i, err)
		}
		blocks[i] = mapping.Block{Count: m.NumParam, Mapper: mapper}
	}

	if len(blocks) == 1 && blocks[0].Count == c.Parameters {
		return blocks[0].Mapper, nil
	}
	return mapping.NewComposite(blocks)
}

func elementaryMapper(m MapperSpec) (mapping.Mapper, error) {
	switch m.Type {
	case mappingTypeIdentity:
		return mapping.NewIdentity(), nil
	case mappingTypeExponential:
		return mapping.NewExponential(), nil
	case mappingTypeSigmoid:
		s, err := mapping.NewSigmoid(m.Min, m.Max)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unrecognized mapping type %d", m.Type)
	}
}

// SigmaDist returns the configured sigma-point distribution.
func (c *Config) SigmaDist() sigma.Distribution {
	return sigma.Distribution(*c.SigmaDistribution)
}

// FilterKind returns the configured filter variant.
func (c *Config) FilterKind() FilterType {
	return FilterType(c.FilterType)
}
