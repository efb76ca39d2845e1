/*
	Madrox
	Copyright (c) 2026 The Madrox Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package hivemind

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

// LayoutParams are the constants of the force simulation.
type LayoutParams struct {
	Repulsion      float64 `json:"repulsion"`
	SpringConstant float64 `json:"spring_constant"`
	RestLength     float64 `json:"rest_length"`
	CenterGravity  float64 `json:"center_gravity"`
	Damping        float64 `json:"damping"`
	MaxSpeed       float64 `json:"max_speed"`

	// The layout has converged once the mean velocity stays below
	// ConvergenceThreshold for SettleTicks ticks in a row, or after
	// MaxIterations ticks regardless.
	ConvergenceThreshold float64 `json:"convergence_threshold"`
	SettleTicks          int     `json:"settle_ticks"`
	MaxIterations        int     `json:"max_iterations"`

	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultLayoutParams returns the standard simulation constants.
func DefaultLayoutParams() LayoutParams {
	return LayoutParams{
		Repulsion:            800,
		SpringConstant:       0.005,
		RestLength:           120,
		CenterGravity:        0.01,
		Damping:              0.92,
		MaxSpeed:             10,
		ConvergenceThreshold: 0.01,
		SettleTicks:          10,
		MaxIterations:        500,
		Width:                600,
		Height:               450,
	}
}

// Body is a simulated node.
type Body struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Pinned bool    `json:"pinned,omitempty"`
}

// Spring connects the bodies at indices A and B.
type Spring struct {
	A, B int
}

// Step advances the simulation by one tick and returns the mean
// absolute velocity of the bodies that are free to move. Pinned
// bodies exert forces but do not move. rng breaks ties between
// bodies at the same position.
func Step(bodies []Body, springs []Spring, p LayoutParams, rng *rand.Rand) float64 {
	n := len(bodies)
	fx := make([]float64, n)
	fy := make([]float64, n)

	// pairwise repulsion
	for i := range n {
		for j := i + 1; j < n; j++ {
			dx := bodies[i].X - bodies[j].X
			dy := bodies[i].Y - bodies[j].Y
			distSq := dx*dx + dy*dy
			if distSq < 1 {
				dx = rng.Float64()*2 - 1
				dy = rng.Float64()*2 - 1
				distSq = 1
			}
			dist := math.Sqrt(distSq)
			force := p.Repulsion / distSq
			fx[i] += force * dx / dist
			fy[i] += force * dy / dist
			fx[j] -= force * dx / dist
			fy[j] -= force * dy / dist
		}
	}

	// springs along edges
	for _, s := range springs {
		a, b := &bodies[s.A], &bodies[s.B]
		dx := b.X - a.X
		dy := b.Y - a.Y
		dist := math.Sqrt(dx*dx + dy*dy)
		if dist < 1 {
			continue
		}
		force := (dist - p.RestLength) * p.SpringConstant
		fx[s.A] += force * dx / dist
		fy[s.A] += force * dy / dist
		fx[s.B] -= force * dx / dist
		fy[s.B] -= force * dy / dist
	}

	cx, cy := p.Width/2, p.Height/2
	var total float64
	var free int
	for i := range bodies {
		b := &bodies[i]
		if b.Pinned {
			b.VX, b.VY = 0, 0
			continue
		}
		fx[i] += (cx - b.X) * p.CenterGravity
		fy[i] += (cy - b.Y) * p.CenterGravity

		b.VX = (b.VX + fx[i]) * p.Damping
		b.VY = (b.VY + fy[i]) * p.Damping
		if speed := math.Hypot(b.VX, b.VY); speed > p.MaxSpeed {
			b.VX *= p.MaxSpeed / speed
			b.VY *= p.MaxSpeed / speed
		}
		b.X += b.VX
		b.Y += b.VY

		total += math.Abs(b.VX) + math.Abs(b.VY)
		free++
	}
	if free == 0 {
		return 0
	}
	return total / float64(free)
}

// LayoutState is the state of a Layout's simulation.
type LayoutState string

// Layout states.
const (
	LayoutUninitialized LayoutState = "uninitialized"
	LayoutRunning       LayoutState = "running"
	LayoutConverged     LayoutState = "converged"
)

// Layout positions the nodes of a graph with a force simulation.
// It runs until the layout settles and starts again when the graph
// changes or a node is pinned, dragged, or released. It is safe for
// concurrent use; each tick holds the lock for its whole duration.
type Layout struct {
	mu      sync.Mutex
	params  LayoutParams
	rng     *rand.Rand
	bodies  []Body
	index   map[string]int
	springs []Spring
	state   LayoutState
	ticks   int
	calm    int
}

// NewLayout returns an empty layout. The seed makes initial
// placement and tie-breaking reproducible.
func NewLayout(params LayoutParams, seed uint64) *Layout {
	return &Layout{
		params: params,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		index:  make(map[string]int),
		state:  LayoutUninitialized,
	}
}

// SetGraph replaces the simulated graph. Nodes that were already
// laid out keep their positions and pins; new nodes are placed
// around a circle at the center. Edges whose endpoints are missing
// are ignored. If the graph is unchanged, nothing happens.
func (l *Layout) SetGraph(g Graph) {
	ids := make([]string, 0, len(g.Nodes))
	index := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := index[n.ID]; dup {
			continue
		}
		index[n.ID] = len(ids)
		ids = append(ids, n.ID)
	}
	var springs []Spring
	for _, e := range g.Edges {
		a, okA := index[e.Source]
		b, okB := index[e.Target]
		if !okA || !okB || a == b {
			continue
		}
		springs = append(springs, Spring{A: a, B: b})
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sameGraph(ids, springs) {
		return
	}

	cx, cy := l.params.Width/2, l.params.Height/2
	spread := 0.3 * math.Min(l.params.Width, l.params.Height)
	bodies := make([]Body, len(ids))
	for i, id := range ids {
		if old, ok := l.index[id]; ok {
			bodies[i] = l.bodies[old]
			continue
		}
		angle := 2 * math.Pi * float64(i) / float64(len(ids))
		bodies[i] = Body{
			ID: id,
			X:  cx + spread*math.Cos(angle) + (l.rng.Float64()*2-1)*20,
			Y:  cy + spread*math.Sin(angle) + (l.rng.Float64()*2-1)*20,
		}
	}

	l.bodies, l.index, l.springs = bodies, index, springs
	if len(bodies) == 0 {
		l.state = LayoutUninitialized
		return
	}
	l.restart()
}

func (l *Layout) sameGraph(ids []string, springs []Spring) bool {
	if l.state == LayoutUninitialized && len(ids) > 0 {
		return false
	}
	if len(ids) != len(l.bodies) || !slices.Equal(springs, l.springs) {
		return false
	}
	for i, id := range ids {
		if l.bodies[i].ID != id {
			return false
		}
	}
	return true
}

// restart must be called with l.mu held.
func (l *Layout) restart() {
	l.state = LayoutRunning
	l.ticks = 0
	l.calm = 0
}

// Tick advances a running simulation by one step and
// returns the resulting state.
func (l *Layout) Tick() LayoutState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != LayoutRunning {
		return l.state
	}

	v := Step(l.bodies, l.springs, l.params, l.rng)
	l.ticks++
	if v < l.params.ConvergenceThreshold {
		l.calm++
	} else {
		l.calm = 0
	}
	if l.calm >= l.params.SettleTicks || l.ticks >= l.params.MaxIterations {
		l.state = LayoutConverged
	}
	return l.state
}

// Settle runs the simulation without delay between ticks until it
// converges or ctx is done. It may be called again to resume.
func (l *Layout) Settle(ctx context.Context) (LayoutState, error) {
	for {
		if err := ctx.Err(); err != nil {
			return l.State(), err
		}
		if st := l.Tick(); st != LayoutRunning {
			return st, nil
		}
	}
}

// Run ticks the simulation every interval until it converges or
// ctx is done, calling onTick (if not nil) after each tick with a
// snapshot suitable for rendering.
func (l *Layout) Run(ctx context.Context, interval time.Duration, onTick func(LayoutSnapshot)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st := l.Tick()
			if onTick != nil {
				onTick(l.Snapshot())
			}
			if st != LayoutRunning {
				return nil
			}
		}
	}
}

// Pin holds the node in place until it is unpinned.
func (l *Layout) Pin(id string) error {
	return l.withBody(id, func(b *Body) {
		b.Pinned = true
		b.VX, b.VY = 0, 0
	})
}

// Drag pins the node at (x, y) in simulation space.
func (l *Layout) Drag(id string, x, y float64) error {
	return l.withBody(id, func(b *Body) {
		b.Pinned = true
		b.X, b.Y = x, y
		b.VX, b.VY = 0, 0
	})
}

// Unpin lets the node move freely again.
func (l *Layout) Unpin(id string) error {
	return l.withBody(id, func(b *Body) { b.Pinned = false })
}

func (l *Layout) withBody(id string, fn func(*Body)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return fmt.Errorf("layout node %s: %w", id, ErrNotFound)
	}
	fn(&l.bodies[i])
	l.restart()
	return nil
}

// State returns the simulation state.
func (l *Layout) State() LayoutState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Position returns the simulated position of a node.
func (l *Layout) Position(id string) (x, y float64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return 0, 0, false
	}
	return l.bodies[i].X, l.bodies[i].Y, true
}

// LayoutSnapshot is the state and node positions of a layout
// at one moment.
type LayoutSnapshot struct {
	State  LayoutState `json:"state"`
	Ticks  int         `json:"ticks"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Nodes  []Body      `json:"nodes"`
}

// Snapshot returns a copy of the current layout.
func (l *Layout) Snapshot() LayoutSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LayoutSnapshot{
		State:  l.state,
		Ticks:  l.ticks,
		Width:  l.params.Width,
		Height: l.params.Height,
		Nodes:  slices.Clone(l.bodies),
	}
}
