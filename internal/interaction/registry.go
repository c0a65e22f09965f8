package interaction

import (
	"errors"
	"slices"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	ErrPointActive  = errors.New("interaction: another point is active")
	ErrNotVisible   = errors.New("interaction: point is not visible")
	ErrUnknownPoint = errors.New("interaction: point is not registered")
)

// Registry is the ordered set of points of one session. At most one point is
// active at a time.
type Registry struct {
	log    zerolog.Logger
	points []*Point
	active *Point
	count  int
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{log: log.With().Str("component", "registry").Logger()}
}

// Load replaces the registry contents. Points are stably sorted by start then
// end time and numbered from 1.
func (r *Registry) Load(points []*Point) {
	r.Clear()
	sorted := slices.Clone(points)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})
	for _, p := range sorted {
		r.Add(p)
	}
	r.log.Debug().Int("points", len(sorted)).Msg("points loaded")
}

// Add appends p with the next display number. The point starts hidden.
func (r *Registry) Add(p *Point) {
	r.count++
	p.Number = r.count
	p.visible = false
	p.active = false
	pn := p.panel()
	pn.SetActive(false)
	pn.SetVisible(false)
	r.points = append(r.points, p)
}

// Remove releases p. Removing the active point deactivates it first.
func (r *Registry) Remove(p *Point) bool {
	i := slices.Index(r.points, p)
	if i < 0 {
		return false
	}
	if r.active == p {
		r.Deactivate()
	}
	p.visible = false
	p.panel().Release()
	r.points = slices.Delete(r.points, i, i+1)
	return true
}

// Clear removes every point and restarts numbering.
func (r *Registry) Clear() {
	for len(r.points) > 0 {
		r.Remove(r.points[len(r.points)-1])
	}
	r.count = 0
}

// UpdateVisibility recomputes visibility for time t. If the active point left
// its window it is deactivated and returned.
func (r *Registry) UpdateVisibility(t float64) (closed *Point) {
	for _, p := range r.points {
		v := p.InWindow(t)
		if v != p.visible {
			p.visible = v
			p.panel().SetVisible(v)
		}
	}
	if r.active != nil && !r.active.visible {
		return r.Deactivate()
	}
	return nil
}

// Activate opens p and marks it seen.
func (r *Registry) Activate(p *Point) error {
	if r.active != nil {
		return ErrPointActive
	}
	if !slices.Contains(r.points, p) {
		return ErrUnknownPoint
	}
	if !p.visible {
		return ErrNotVisible
	}
	r.active = p
	p.active = true
	p.Seen = true
	p.panel().SetActive(true)
	r.log.Debug().Int("point", p.Number).Stringer("kind", p.Kind()).Msg("point activated")
	return nil
}

// Deactivate closes the active point and returns it, or nil if none was open.
func (r *Registry) Deactivate() *Point {
	p := r.active
	if p == nil {
		return nil
	}
	r.active = nil
	p.active = false
	p.panel().SetActive(false)
	r.log.Debug().Int("point", p.Number).Msg("point deactivated")
	return p
}

func (r *Registry) Active() *Point { return r.active }

func (r *Registry) Points() []*Point { return slices.Clone(r.points) }

func (r *Registry) Len() int { return len(r.points) }

// Get returns the point with display number n.
func (r *Registry) Get(n int) (*Point, bool) {
	return lo.Find(r.points, func(p *Point) bool { return p.Number == n })
}

func (r *Registry) Visible() []*Point {
	return lo.Filter(r.points, func(p *Point, _ int) bool { return p.visible })
}

// Remaining counts mandatory points not yet seen.
func (r *Registry) Remaining() int {
	return lo.CountBy(r.points, func(p *Point) bool { return p.Mandatory && !p.Seen })
}
