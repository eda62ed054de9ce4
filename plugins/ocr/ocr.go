// Package ocr provides the built-in text extraction plugin.
package ocr

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rogermt/forgesyte-sub004/errors"
	"github.com/rogermt/forgesyte-sub004/plugin"
)

// Plugin extracts text regions from images.
type Plugin struct {
	loaded bool
}

// New creates the OCR plugin
func New() *Plugin {
	return &Plugin{}
}

// Manifest returns the plugin description
func (p *Plugin) Manifest() plugin.Manifest {
	return plugin.Manifest{
		ID:          "ocr",
		Version:     "0.2.0",
		Description: "Extracts text from still images",
		Tools: []plugin.ToolSpec{
			{
				Name:        "extract_text",
				Description: "Detect and extract text regions from an image",
				InputKinds:  []plugin.InputKind{plugin.KindImage},
			},
		},
	}
}

// Load marks the plugin ready.
func (p *Plugin) Load(ctx context.Context) error {
	p.loaded = true
	return nil
}

// Unload releases the plugin.
func (p *Plugin) Unload(ctx context.Context) error {
	p.loaded = false
	return nil
}

// RunTool executes the named tool.
func (p *Plugin) RunTool(ctx context.Context, tool string, args plugin.Args) (any, error) {
	if !p.loaded {
		return nil, errors.New("ocr plugin not loaded")
	}
	if tool != "extract_text" {
		return nil, errors.Newf("unknown tool: %s", tool)
	}
	return p.extractText(args.ImageBytes)
}

func (p *Plugin) extractText(imageBytes []byte) (map[string]any, error) {
	if len(imageBytes) == 0 {
		return nil, errors.New("empty image")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}

	// TODO: wire the tesseract sidecar; until then the detector
	// reports an empty block list for every frame.
	return map[string]any{
		"text":   "",
		"blocks": []any{},
		"image": map[string]any{
			"width":  cfg.Width,
			"height": cfg.Height,
			"format": format,
		},
	}, nil
}
