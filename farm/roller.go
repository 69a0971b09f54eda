package farm

import (
	"math/rand"
)

// Roller decides the random farming outcomes. The claimer takes it by
// injection so tests can supply deterministic sequences.
type Roller interface {
	// Chance reports a win with probability p (0..1).
	Chance(p float64) bool
	// Amount returns a uniform value in [min, max].
	Amount(min, max int) int
}

// NewRoller returns the production Roller backed by math/rand.
func NewRoller() Roller { return stdRoller{} }

type stdRoller struct{}

//nolint:gosec // G404: simulated farming outcomes, not used for security
func (stdRoller) Chance(p float64) bool { return rand.Float64() < p }

//nolint:gosec // G404: simulated farming outcomes, not used for security
func (stdRoller) Amount(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min+1)
}
