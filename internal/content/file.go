// Package content reads session files: the video to play and the
// interaction points overlaid on it.
package content

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// File is the on-disk session description.
type File struct {
	Meta     Meta        `yaml:"meta"`
	Video    string      `yaml:"video"`
	Duration float64     `yaml:"duration,omitempty"`
	Points   []PointDesc `yaml:"points"`
}

type Meta struct {
	GUID        string `yaml:"guid"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
}

// PointDesc describes one interaction point. For image points Filename holds
// several names separated by form feeds; for multiple-choice points Body
// holds the options, separated the same way, and Title is the question.
type PointDesc struct {
	StartTime          float64    `yaml:"startTime"`
	EndTime            float64    `yaml:"endTime"`
	Type               string     `yaml:"type"`
	Title              string     `yaml:"title"`
	Body               string     `yaml:"body,omitempty"`
	Filename           string     `yaml:"filename,omitempty"`
	TagID              int        `yaml:"tagId,omitempty"`
	Mandatory          bool       `yaml:"mandatory,omitempty"`
	Position           [3]float64 `yaml:"position,flow"`
	ReturnRayOrigin    [3]float64 `yaml:"returnRayOrigin,flow"`
	ReturnRayDirection [3]float64 `yaml:"returnRayDirection,flow"`
}

// Separator splits multi-valued fields.
const Separator = "\f"

// Read parses the session file at path.
func Read(fs afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// Write stores f at path, creating the directory if needed.
func Write(fs afero.Fs, path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0644)
}

// FindLatest returns the most recently modified .yaml or .yml file in dir.
func FindLatest(fs afero.Fs, dir string) (string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return "", fmt.Errorf("read session directory: %w", err)
	}

	var files []string
	modTimes := make(map[string]int64)
	for _, entry := range entries {
		name := strings.ToLower(entry.Name())
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		files = append(files, path)
		modTimes[path] = entry.ModTime().UnixNano()
	}

	if len(files) == 0 {
		return "", fmt.Errorf("no session files found in %s", dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return modTimes[files[i]] > modTimes[files[j]]
	})
	return files[0], nil
}
