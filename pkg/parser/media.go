package parser

import (
	"bytes"
	"context"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/recallhq/recall/pkg/models"
)

// parseImage records image dimensions without decoding pixel data. Content
// stays empty; descriptions come from the metadata pipeline.
func (p *Parser) parseImage(ctx context.Context, name string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta := map[string]interface{}{}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		p.logger.Debug("could not decode image header", "name", name, "error", err)
	} else {
		meta["width"] = cfg.Width
		meta["height"] = cfg.Height
		meta["format"] = format
		meta["mime_type"] = "image/" + format
	}

	return &Result{
		DocumentType: models.TypeImage,
		FileMetadata: meta,
	}, nil
}

// parseAudio records basic facts about an audio file. Transcription is out
// of scope for the parser.
func (p *Parser) parseAudio(ctx context.Context, name string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{
		DocumentType: models.TypeAudio,
		FileMetadata: map[string]interface{}{},
	}, nil
}
