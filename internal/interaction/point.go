// Package interaction holds the time-windowed points overlaid on the video
// sphere and the registry that tracks their visibility and the single open
// point.
package interaction

import (
	"fmt"

	"github.com/ivlev/sphereplay/internal/geom"
)

// Kind identifies the payload variant of a point.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindVideo
	KindMultipleChoice
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindMultipleChoice:
		return "multiple-choice"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Payload is the content shown when a point opens. The set of variants is
// closed: Text, Image, Video, MultipleChoice and Audio.
type Payload interface {
	Kind() Kind
	payload()
}

type Text struct {
	Body string
}

type Image struct {
	Files []string
}

type Video struct {
	File string
}

type MultipleChoice struct {
	Question string
	Options  []string
}

type Audio struct {
	File string
}

func (Text) Kind() Kind           { return KindText }
func (Image) Kind() Kind          { return KindImage }
func (Video) Kind() Kind          { return KindVideo }
func (MultipleChoice) Kind() Kind { return KindMultipleChoice }
func (Audio) Kind() Kind          { return KindAudio }

func (Text) payload()           {}
func (Image) payload()          {}
func (Video) payload()          {}
func (MultipleChoice) payload() {}
func (Audio) payload()          {}

// MediaFiles lists the files a payload references.
func MediaFiles(p Payload) []string {
	switch v := p.(type) {
	case Image:
		return v.Files
	case Video:
		return []string{v.File}
	case Audio:
		return []string{v.File}
	default:
		return nil
	}
}

// Anchor places a point on the sphere. ReturnRay, when valid, is cast against
// the reference sphere after load to recompute Position.
type Anchor struct {
	Position  geom.Vec3
	ReturnRay geom.Ray
}

// Panel is the presentation of a point's payload.
type Panel interface {
	SetVisible(visible bool)
	SetActive(active bool)
	MoveTo(position geom.Vec3)
	Release()
}

// NopPanel discards every call.
type NopPanel struct{}

func (NopPanel) SetVisible(bool)  {}
func (NopPanel) SetActive(bool)   {}
func (NopPanel) MoveTo(geom.Vec3) {}
func (NopPanel) Release()         {}

// Point is one interaction point. Visible and Active are maintained by the
// Registry.
type Point struct {
	Number    int
	Title     string
	Anchor    Anchor
	Start     float64
	End       float64
	Payload   Payload
	TagID     int
	Mandatory bool
	Seen      bool
	Panel     Panel

	visible bool
	active  bool
}

func (p *Point) Kind() Kind { return p.Payload.Kind() }

// Visible reports whether the point was inside its window on the last tick.
func (p *Point) Visible() bool { return p.visible }

func (p *Point) Active() bool { return p.active }

// InWindow reports Start <= t <= End.
func (p *Point) InWindow(t float64) bool {
	return p.Start <= t && t <= p.End
}

// Position is the current anchor position.
func (p *Point) Position() geom.Vec3 { return p.Anchor.Position }

// MoveTo sets the anchor position and moves the panel with it.
func (p *Point) MoveTo(pos geom.Vec3) {
	p.Anchor.Position = pos
	p.panel().MoveTo(pos)
}

func (p *Point) panel() Panel {
	if p.Panel == nil {
		return NopPanel{}
	}
	return p.Panel
}
