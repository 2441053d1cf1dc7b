// Package media resolves message attachments into uploaded media handles.
package media

import (
	_ "embed"
	"fmt"
	"mime"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/pders01/fwrdpost/internal/model"
)

//go:embed media_types.toml
var mediaTypesTOML []byte

type Type int

const (
	TypeUnknown Type = iota
	TypeImage
	TypeGIF
	TypeVideo
	TypeAudio
	TypePDF
)

func (t Type) String() string {
	switch t {
	case TypeImage:
		return "image"
	case TypeGIF:
		return "gif"
	case TypeVideo:
		return "video"
	case TypeAudio:
		return "audio"
	case TypePDF:
		return "pdf"
	default:
		return "unknown"
	}
}

type TypeConfig struct {
	Postable   bool     `toml:"postable"`
	MaxBytes   int64    `toml:"max_bytes"`
	MIMETypes  []string `toml:"mime_types"`
	Extensions []string `toml:"extensions"`
}

type TypesConfig struct {
	Image TypeConfig `toml:"image"`
	GIF   TypeConfig `toml:"gif"`
	Video TypeConfig `toml:"video"`
	Audio TypeConfig `toml:"audio"`
	PDF   TypeConfig `toml:"pdf"`
}

func (c *TypesConfig) byType() map[Type]TypeConfig {
	return map[Type]TypeConfig{
		TypeImage: c.Image,
		TypeGIF:   c.GIF,
		TypeVideo: c.Video,
		TypeAudio: c.Audio,
		TypePDF:   c.PDF,
	}
}

// Detected is the outcome of inspecting a media object.
type Detected struct {
	Type        Type
	ContentType string
}

type TypeDetector struct {
	types map[Type]TypeConfig
}

func NewTypeDetector() (*TypeDetector, error) {
	return NewTypeDetectorFrom(mediaTypesTOML)
}

// NewTypeDetectorFrom builds a detector from a TOML table shaped like the
// embedded media_types.toml.
func NewTypeDetectorFrom(data []byte) (*TypeDetector, error) {
	var cfg TypesConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing media types: %w", err)
	}
	return &TypeDetector{types: cfg.byType()}, nil
}

// Detect classifies an object from its leading bytes, falling back to the
// extension of name.
func (d *TypeDetector) Detect(name string, data []byte) Detected {
	sniffed := http.DetectContentType(data)
	if mt, _, err := mime.ParseMediaType(sniffed); err == nil {
		sniffed = mt
	}
	for t, cfg := range d.types {
		if slices.Contains(cfg.MIMETypes, sniffed) {
			return Detected{Type: t, ContentType: sniffed}
		}
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if ext != "" {
		for t, cfg := range d.types {
			if slices.Contains(cfg.Extensions, ext) {
				ct := sniffed
				if len(cfg.MIMETypes) > 0 {
					ct = cfg.MIMETypes[0]
				}
				return Detected{Type: t, ContentType: ct}
			}
		}
	}
	return Detected{Type: TypeUnknown, ContentType: sniffed}
}

// Check returns the detected kind of data, or model.ErrMediaUnavailable if
// it cannot be attached to a post.
func (d *TypeDetector) Check(name string, data []byte) (Detected, error) {
	det := d.Detect(name, data)
	cfg, ok := d.types[det.Type]
	if !ok || !cfg.Postable {
		return det, fmt.Errorf("%w: %s (%s) cannot be attached to a post", model.ErrMediaUnavailable, det.Type, det.ContentType)
	}
	if cfg.MaxBytes > 0 && int64(len(data)) > cfg.MaxBytes {
		return det, fmt.Errorf("%w: %s of %d bytes exceeds limit of %d", model.ErrMediaUnavailable, det.Type, len(data), cfg.MaxBytes)
	}
	return det, nil
}
