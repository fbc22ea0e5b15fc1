package verlet

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

// Scenario describes the initial particle population.
type Scenario struct {
	Name     string  `yaml:"name"`
	Timestep float64 `yaml:"timestep"`
	Groups   []Group `yaml:"groups"`
}

// Group is a block of identical particles.
type Group struct {
	Count    int       `yaml:"count"`
	Position []float64 `yaml:"position"`
	Velocity []float64 `yaml:"velocity"`
	Force    []float64 `yaml:"force"`
	Mass     float64   `yaml:"mass"`
}

// DefaultScenario places n unit-mass particles at the origin moving with
// velocity (0.2, 0.5, 1.0) and a step of 1.
func DefaultScenario(n int) *Scenario {
	return &Scenario{
		Name:     "harmonic",
		Timestep: 1.0,
		Groups: []Group{{
			Count:    n,
			Position: []float64{0, 0, 0},
			Velocity: []float64{0.2, 0.5, 1.0},
			Force:    []float64{0, 0, 0},
			Mass:     1.0,
		}},
	}
}

// SimpleScenario is the force-free drift workload: velocity (-1, 1, 1), step 0.01.
func SimpleScenario(n int) *Scenario {
	return &Scenario{
		Name:     "simple",
		Timestep: 0.01,
		Groups: []Group{{
			Count:    n,
			Position: []float64{0, 0, 0},
			Velocity: []float64{-1, 1, 1},
			Mass:     1.0,
		}},
	}
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks counts, masses and vector lengths. Omitted vectors mean zero.
func (s *Scenario) Validate() error {
	if !(s.Timestep >= 0) {
		return fmt.Errorf("%w: negative timestep %v", ErrInvalidScenario, s.Timestep)
	}
	if len(s.Groups) == 0 {
		return fmt.Errorf("%w: no particle groups", ErrInvalidScenario)
	}
	for i, g := range s.Groups {
		if g.Count < 0 {
			return fmt.Errorf("%w: group %d has negative count %d", ErrInvalidScenario, i, g.Count)
		}
		if !(g.Mass > 0) {
			return fmt.Errorf("%w: group %d mass must be positive, got %v", ErrInvalidScenario, i, g.Mass)
		}
		for name, v := range map[string][]float64{"position": g.Position, "velocity": g.Velocity, "force": g.Force} {
			if len(v) != 0 && len(v) != 3 {
				return fmt.Errorf("%w: group %d %s needs 3 components, got %d", ErrInvalidScenario, i, name, len(v))
			}
		}
	}
	return nil
}

// Count returns the total number of particles.
func (s *Scenario) Count() int {
	n := 0
	for _, g := range s.Groups {
		n += g.Count
	}
	return n
}

func vec3(v []float64) mgl64.Vec3 {
	if len(v) != 3 {
		return mgl64.Vec3{}
	}
	return mgl64.Vec3{v[0], v[1], v[2]}
}

// Initial returns the group's starting position, velocity and force.
func (g Group) Initial() (pos, vel, force mgl64.Vec3) {
	return vec3(g.Position), vec3(g.Velocity), vec3(g.Force)
}
