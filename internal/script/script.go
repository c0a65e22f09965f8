// Package script drives a headless session from a yaml file: gaze keyframes
// interpolated over wall time plus discrete input events.
package script

import (
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/sphereplay/internal/geom"
	"github.com/ivlev/sphereplay/internal/selection"
)

// Script is the file format.
type Script struct {
	Session   string     `yaml:"session"`
	Duration  float64    `yaml:"duration"`
	Modality  string     `yaml:"modality"` // gaze or controller
	Keyframes []Keyframe `yaml:"keyframes"`
	Events    []Event    `yaml:"events"`
}

// Keyframe is a gaze direction at a wall-clock offset in seconds.
type Keyframe struct {
	Time  float64 `yaml:"time"`
	Yaw   float64 `yaml:"yaw"`
	Pitch float64 `yaml:"pitch"`
}

// Event is a discrete input at a wall-clock offset.
type Event struct {
	Time   float64 `yaml:"time"`
	Action Action  `yaml:"action"`
	// Value is the seek target for scrub and the frame for screenshot.
	Value float64 `yaml:"value,omitempty"`
	Path  string  `yaml:"path,omitempty"`
}

type Action string

const (
	ActionTrigger    Action = "trigger"
	ActionClose      Action = "close"
	ActionScrub      Action = "scrub"
	ActionPlay       Action = "play"
	ActionPause      Action = "pause"
	ActionScreenshot Action = "screenshot"
	ActionBack       Action = "back"
)

func (a Action) valid() bool {
	switch a {
	case ActionTrigger, ActionClose, ActionScrub, ActionPlay, ActionPause, ActionScreenshot, ActionBack:
		return true
	}
	return false
}

// Read parses and validates a script. Keyframes and events are sorted by
// time.
func Read(fs afero.Fs, path string) (*Script, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if _, err := s.InputModality(); err != nil {
		return nil, err
	}
	for _, e := range s.Events {
		if !e.Action.valid() {
			return nil, fmt.Errorf("%s: unknown action %q", path, e.Action)
		}
	}
	sort.SliceStable(s.Keyframes, func(i, j int) bool { return s.Keyframes[i].Time < s.Keyframes[j].Time })
	sort.SliceStable(s.Events, func(i, j int) bool { return s.Events[i].Time < s.Events[j].Time })
	if s.Duration <= 0 {
		s.Duration = s.end()
	}
	return &s, nil
}

func (s *Script) end() float64 {
	var end float64
	if n := len(s.Keyframes); n > 0 {
		end = s.Keyframes[n-1].Time
	}
	if n := len(s.Events); n > 0 {
		end = max(end, s.Events[n-1].Time)
	}
	return end
}

func (s *Script) InputModality() (selection.Modality, error) {
	switch s.Modality {
	case "", "gaze":
		return selection.Gaze, nil
	case "controller":
		return selection.Controller, nil
	default:
		return 0, fmt.Errorf("unknown modality %q", s.Modality)
	}
}

// Gaze returns the view ray from the sphere center at time t.
func (s *Script) Gaze(t float64) geom.Ray {
	yaw, pitch := InterpolateKeyframes(s.Keyframes, t)
	return geom.NewRay(geom.Vec3{}, geom.Direction(yaw, pitch))
}

// Cursor hands out the events of a script in order as time advances.
type Cursor struct {
	events []Event
	next   int
}

func (s *Script) Cursor() *Cursor {
	return &Cursor{events: s.Events}
}

// Until returns the events with Time <= t not returned before.
func (c *Cursor) Until(t float64) []Event {
	start := c.next
	for c.next < len(c.events) && c.events[c.next].Time <= t {
		c.next++
	}
	return c.events[start:c.next]
}

func (c *Cursor) Done() bool { return c.next >= len(c.events) }
