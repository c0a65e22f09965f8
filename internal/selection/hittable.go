package selection

import (
	"slices"

	"github.com/ivlev/sphereplay/internal/geom"
)

// Hittable is a UI element that can be pointed at, such as a panel close
// button or a volume button.
type Hittable struct {
	Name     string
	Collider geom.Sphere

	OnHit        func()
	OnHoverStart func()
	OnHoverStay  func()
	OnHoverEnd   func()
}

// Handle identifies a registered hittable. The zero Handle is never issued.
type Handle uint64

type hittableState struct {
	Hittable
	hovering bool
}

type hittableSet struct {
	next     Handle
	order    []Handle
	byHandle map[Handle]*hittableState
}

func newHittableSet() hittableSet {
	return hittableSet{byHandle: make(map[Handle]*hittableState)}
}

// Register adds h to the UI layer.
func (e *Engine) Register(h Hittable) Handle {
	e.hittables.next++
	handle := e.hittables.next
	e.hittables.byHandle[handle] = &hittableState{Hittable: h}
	e.hittables.order = append(e.hittables.order, handle)
	return handle
}

// Unregister removes h. A hovered hittable gets its hover-end callback first.
func (e *Engine) Unregister(h Handle) bool {
	hs, ok := e.hittables.byHandle[h]
	if !ok {
		return false
	}
	if hs.hovering && hs.OnHoverEnd != nil {
		hs.OnHoverEnd()
	}
	delete(e.hittables.byHandle, h)
	e.hittables.order = slices.DeleteFunc(e.hittables.order, func(o Handle) bool { return o == h })
	if e.candidate.handle == h {
		e.candidate = target{}
		e.resetTimer()
	}
	return true
}

// Close unregisters every hittable in registration order.
func (e *Engine) Close() {
	for _, h := range slices.Clone(e.hittables.order) {
		e.Unregister(h)
	}
}

// Hovering reports whether h was hovered on the last tick.
func (e *Engine) Hovering(h Handle) bool {
	hs, ok := e.hittables.byHandle[h]
	return ok && hs.hovering
}

func (e *Engine) updateHover(rayHit Handle, controllerHover []Handle) {
	// Callbacks may unregister hittables, so walk a snapshot and skip the
	// removed ones.
	for _, h := range slices.Clone(e.hittables.order) {
		hs, ok := e.hittables.byHandle[h]
		if !ok {
			continue
		}
		now := h == rayHit || slices.Contains(controllerHover, h)
		switch {
		case now && !hs.hovering:
			if hs.OnHoverStart != nil {
				hs.OnHoverStart()
			}
		case now && hs.hovering:
			if hs.OnHoverStay != nil {
				hs.OnHoverStay()
			}
		case !now && hs.hovering:
			if hs.OnHoverEnd != nil {
				hs.OnHoverEnd()
			}
		}
		hs.hovering = now
	}
}
