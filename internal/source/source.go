package source

import (
	"fmt"
	"image"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Source is a random-access sequence of still frames. The stills decoder turns
// one into a clock-driven video: frame i is shown at i/fps seconds.
type Source interface {
	FrameCount() int
	FrameDimensions(index int) (width, height float64, err error)
	RenderFrame(index int) (image.Image, error)
	Close() error
}

// Open picks the source implementation from the path: a .pdf becomes a paged
// document, anything else an image file or a directory of images.
func Open(path string, dpi int) (Source, error) {
	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return NewFitzPDFSource(path, dpi)
	}
	return NewImageSource(path)
}

// FitzPDFSource renders the pages of a PDF, one page per frame.
type FitzPDFSource struct {
	doc  *fitz.Document
	path string
	dpi  int
}

func NewFitzPDFSource(path string, dpi int) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	if dpi <= 0 {
		dpi = 72
	}
	return &FitzPDFSource{doc: doc, path: path, dpi: dpi}, nil
}

func (f *FitzPDFSource) FrameCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) FrameDimensions(index int) (float64, float64, error) {
	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	scale := float64(f.dpi) / 72
	return float64(rect.Dx()) * scale, float64(rect.Dy()) * scale, nil
}

// RenderFrame opens its own document handle so that renders running on
// decoder workers never share the fitz context with the probe handle.
func (f *FitzPDFSource) RenderFrame(index int) (image.Image, error) {
	workerDoc, err := fitz.New(f.path)
	if err != nil {
		return nil, err
	}
	defer workerDoc.Close()
	return workerDoc.ImageDPI(index, float64(f.dpi))
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
