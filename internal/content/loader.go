package content

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/ivlev/sphereplay/internal/geom"
	"github.com/ivlev/sphereplay/internal/interaction"
)

var ErrUnsupportedKind = errors.New("content: unsupported interaction kind")

// ParseKind maps a session file type name to a Kind.
func ParseKind(s string) (interaction.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return interaction.KindText, nil
	case "image":
		return interaction.KindImage, nil
	case "video":
		return interaction.KindVideo, nil
	case "multiplechoice", "multiple-choice", "multiple_choice":
		return interaction.KindMultipleChoice, nil
	case "audio":
		return interaction.KindAudio, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
}

// PanelFactory builds the presentation for a point. An error skips that
// point; the rest of the session still loads.
type PanelFactory func(p *interaction.Point) (interaction.Panel, error)

// Session is a loaded session file.
type Session struct {
	Path     string
	Dir      string
	File     *File
	VideoURL string
	Points   []*interaction.Point
}

type Loader struct {
	Fs     afero.Fs
	Log    zerolog.Logger
	Panels PanelFactory
}

func NewLoader(fs afero.Fs, log zerolog.Logger) *Loader {
	return &Loader{Fs: fs, Log: log.With().Str("component", "content").Logger()}
}

// Load reads path and builds its points. Media files are resolved against
// the session directory; missing ones are logged and the point is kept. An
// unknown point type fails the whole load.
func (l *Loader) Load(path string) (*Session, error) {
	f, err := Read(l.Fs, path)
	if err != nil {
		return nil, err
	}
	if f.Video == "" {
		return nil, fmt.Errorf("%s: no video", path)
	}

	s := &Session{
		Path: path,
		Dir:  filepath.Dir(path),
		File: f,
	}
	s.VideoURL = l.resolve(s.Dir, f.Video)

	for i, desc := range f.Points {
		kind, err := ParseKind(desc.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: point %d: %w", path, i, err)
		}
		p := &interaction.Point{
			Title:     desc.Title,
			Start:     desc.StartTime,
			End:       desc.EndTime,
			TagID:     desc.TagID,
			Mandatory: desc.Mandatory,
			Payload:   l.payload(kind, s.Dir, desc),
			Anchor: interaction.Anchor{
				Position: vec(desc.Position),
				ReturnRay: geom.Ray{
					Origin: vec(desc.ReturnRayOrigin),
					Dir:    vec(desc.ReturnRayDirection),
				},
			},
		}
		if l.Panels != nil {
			panel, err := l.Panels(p)
			if err != nil {
				l.Log.Warn().Err(err).Int("index", i).Str("title", desc.Title).Msg("panel failed, point skipped")
				continue
			}
			p.Panel = panel
		}
		s.Points = append(s.Points, p)
	}

	l.Log.Info().
		Str("session", f.Meta.GUID).
		Str("video", s.VideoURL).
		Int("points", len(s.Points)).
		Msg("session loaded")
	return s, nil
}

// payload builds the variant for kind. This is the only place a kind is
// mapped to its fields.
func (l *Loader) payload(kind interaction.Kind, dir string, desc PointDesc) interaction.Payload {
	switch kind {
	case interaction.KindText:
		return interaction.Text{Body: desc.Body}
	case interaction.KindImage:
		names := lo.Filter(strings.Split(desc.Filename, Separator), func(n string, _ int) bool { return n != "" })
		files := lo.Map(names, func(n string, _ int) string { return l.media(dir, n) })
		return interaction.Image{Files: files}
	case interaction.KindVideo:
		return interaction.Video{File: l.media(dir, desc.Filename)}
	case interaction.KindMultipleChoice:
		return interaction.MultipleChoice{Question: desc.Title, Options: strings.Split(desc.Body, Separator)}
	case interaction.KindAudio:
		return interaction.Audio{File: l.media(dir, desc.Filename)}
	default:
		panic(fmt.Sprintf("content: no payload for %v", kind))
	}
}

// media resolves name and warns when the file is missing.
func (l *Loader) media(dir, name string) string {
	path := l.resolve(dir, name)
	if ok, err := afero.Exists(l.Fs, path); err != nil || !ok {
		l.Log.Warn().Str("file", path).Msg("media file missing")
	}
	return path
}

func (l *Loader) resolve(dir, name string) string {
	if name == "" || filepath.IsAbs(name) || strings.Contains(name, "://") {
		return name
	}
	return filepath.Join(dir, name)
}

func vec(a [3]float64) geom.Vec3 {
	return geom.Vec3{X: a[0], Y: a[1], Z: a[2]}
}
