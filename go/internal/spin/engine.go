// Package spin computes the locally-presented elimination pick and the
// animation target driving it. The result is presentation only: the
// server's round outcome arrives separately and always wins.
package spin

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/Riqtu/hohma-sync/go/internal/models"
)

// ExtraRotations is how many full turns the wheel makes on top of the
// shortest path to the target, so every spin looks like a real spin.
const ExtraRotations = 5

// ErrNoItems is returned when there is nothing left to pick from.
var ErrNoItems = errors.New("spin: no active items")

// Pick describes one spin: the selected index and the rotation the
// animation should land on.
type Pick struct {
	Index       int
	TargetAngle float64 // angle inside the winning slot, degrees
	Delta       float64 // total signed rotation to animate, degrees
	Rotation    float64 // absolute rotation after the spin, degrees
}

// Outcome reports what a locally applied elimination did.
type Outcome struct {
	Eliminated models.Item
	Completed  bool
	Winner     *models.Item
}

// Engine draws uniformly over the currently-active items. The generator is
// injectable so tests can fix the sequence.
type Engine struct {
	rng *rand.Rand
}

func NewEngine() *Engine {
	return &Engine{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewEngineWithSource fixes the random source.
func NewEngineWithSource(src rand.Source) *Engine {
	return &Engine{rng: rand.New(src)}
}

// PickElimination selects a uniform random index among n active items and
// derives the rotation needed to land inside that item's slot. The current
// rotation is normalized into [0, 360) first so repeated spins never
// accumulate a discontinuity.
func (e *Engine) PickElimination(itemCount int, currentRotation float64) (Pick, error) {
	if itemCount <= 0 {
		return Pick{}, ErrNoItems
	}
	anglePer := 360.0 / float64(itemCount)
	index := e.rng.Intn(itemCount)
	target := float64(index)*anglePer + e.rng.Float64()*anglePer

	current := normalizeAngle(currentRotation)
	delta := normalizeAngle(-target - current)
	total := 360.0*ExtraRotations + delta

	return Pick{
		Index:       index,
		TargetAngle: target,
		Delta:       total,
		Rotation:    current + total,
	}, nil
}

// ApplyElimination removes the item at index from the active slice and
// prepends it to the eliminated slice, preserving the
// most-recently-eliminated-first display order. Inputs are not mutated.
func ApplyElimination(index int, items, eliminated []models.Item) ([]models.Item, []models.Item, Outcome, error) {
	if index < 0 || index >= len(items) {
		return nil, nil, Outcome{}, errors.New("spin: elimination index out of range")
	}
	active := append([]models.Item(nil), items...)
	out := append([]models.Item(nil), eliminated...)

	picked := active[index]
	picked.Eliminated = true
	active = append(active[:index], active[index+1:]...)
	out = append([]models.Item{picked}, out...)

	outcome := Outcome{Eliminated: picked}
	if len(active) == 1 && len(out) > 0 {
		winner := active[0]
		winner.Winner = true
		active[0] = winner
		outcome.Completed = true
		outcome.Winner = &winner
	}
	return active, out, outcome, nil
}

func normalizeAngle(deg float64) float64 {
	m := math.Mod(deg, 360)
	if m < 0 {
		m += 360
	}
	return m
}
