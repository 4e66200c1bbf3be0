// Package pdf renders document artifacts and embeds signature images at
// fixed page regions. The Renderer interface keeps the engine independent of
// any particular PDF backend; the in-process TextRenderer produces a
// deterministic plain-text artifact that carries the same structure
// (header, body, signature blocks) for tests and dev deployments.
package pdf

import (
	"fmt"
	"strings"
	"time"
)

// Region is a rectangle on the signature page, in points from the top-left
// corner.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Fixed signature regions. The two boxes must never overlap: the client
// signs on the left half of the signature band, the certifier on the right.
var (
	ClientRegion    = Region{X: 50, Y: 150, Width: 200, Height: 60}
	CertifierRegion = Region{X: 270, Y: 150, Width: 200, Height: 60}
)

// Overlaps reports whether two regions intersect.
func (r Region) Overlaps(other Region) bool {
	return r.X < other.X+other.Width && other.X < r.X+r.Width &&
		r.Y < other.Y+other.Height && other.Y < r.Y+r.Height
}

// Renderer produces and annotates document artifacts.
type Renderer interface {
	// Render produces the base artifact for a document.
	Render(title, body string) ([]byte, error)
	// EmbedSignature places a signature image inside the given region.
	EmbedSignature(artifact []byte, imageData string, signer string, region Region) ([]byte, error)
	// StampCertification adds the certification seal.
	StampCertification(artifact []byte, certifier string, at time.Time) ([]byte, error)
}

// TextRenderer is the in-process Renderer. Artifacts are UTF-8 text with a
// stable section layout.
type TextRenderer struct{}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

func (TextRenderer) Render(title, body string) ([]byte, error) {
	if title == "" {
		return nil, fmt.Errorf("render: title is required")
	}
	var b strings.Builder
	b.WriteString("=== " + title + " ===\n\n")
	b.WriteString(body)
	b.WriteString("\n\n--- signatures ---\n")
	return []byte(b.String()), nil
}

func (TextRenderer) EmbedSignature(artifact []byte, imageData string, signer string, region Region) ([]byte, error) {
	if len(artifact) == 0 {
		return nil, fmt.Errorf("embed signature: empty artifact")
	}
	if imageData == "" {
		return nil, fmt.Errorf("embed signature: empty image")
	}
	block := fmt.Sprintf("[signature signer=%q region=(%.0f,%.0f %.0fx%.0f) bytes=%d]\n",
		signer, region.X, region.Y, region.Width, region.Height, len(imageData))
	return append(artifact, []byte(block)...), nil
}

func (TextRenderer) StampCertification(artifact []byte, certifier string, at time.Time) ([]byte, error) {
	if len(artifact) == 0 {
		return nil, fmt.Errorf("stamp certification: empty artifact")
	}
	stamp := fmt.Sprintf("[certified by=%q at=%s]\n", certifier, at.UTC().Format(time.RFC3339))
	return append(artifact, []byte(stamp)...), nil
}
