package gemini

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultMimeType is used for inputs and response parts that carry no MIME type.
const DefaultMimeType = "image/png"

// ImageInput is one caller-supplied image: base64 Data or a filesystem Path.
// Data wins when both are set.
type ImageInput struct {
	Data     string
	Path     string
	MimeType string
}

// InlineData is a base64 image tagged with its MIME type, as sent on the wire.
type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Part is one request content element: text or inline image.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// Content groups the parts of one turn.
type Content struct {
	Parts []Part `json:"parts"`
}

// GenerationConfig carries optional provider generation settings.
type GenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// Request is the generateContent request body.
type Request struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// BuildRequest places the prompt first and the images after it in input order.
// Downstream model behavior depends on this ordering.
func BuildRequest(prompt string, images []InlineData) Request {
	parts := make([]Part, 0, len(images)+1)
	parts = append(parts, Part{Text: prompt})
	for i := range images {
		img := images[i]
		parts = append(parts, Part{InlineData: &img})
	}
	return Request{Contents: []Content{{Parts: parts}}}
}

// ResolveInputs turns every input into inline data. All inputs are checked for
// a data source before any file is read, so a bad input never costs I/O.
func ResolveInputs(images []ImageInput, readFile func(string) ([]byte, error)) ([]InlineData, error) {
	for i, img := range images {
		if img.Data == "" && img.Path == "" {
			return nil, &Error{
				Kind:    KindInput,
				Message: fmt.Sprintf("image %d has neither data nor path", i+1),
			}
		}
	}

	out := make([]InlineData, 0, len(images))
	for i, img := range images {
		mimeType := img.MimeType

		var data string
		if img.Data != "" {
			var urlMime string
			data, urlMime = SplitDataURL(img.Data)
			if mimeType == "" {
				mimeType = urlMime
			}
		} else {
			raw, err := readFile(img.Path)
			if err != nil {
				return nil, &Error{
					Kind:    KindInput,
					Message: fmt.Sprintf("image %d could not be read from %s", i+1, img.Path),
					Err:     err,
				}
			}
			data = base64.StdEncoding.EncodeToString(raw)
		}

		if mimeType == "" {
			mimeType = DefaultMimeType
		}
		out = append(out, InlineData{MimeType: mimeType, Data: data})
	}
	return out, nil
}

// SplitDataURL removes a "data:<mime>;base64," prefix and returns the payload
// and the MIME it named. Plain base64 comes back unchanged with an empty MIME.
func SplitDataURL(s string) (string, string) {
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	header, payload, ok := strings.Cut(s, ",")
	if !ok {
		return s, ""
	}
	mimeType := strings.TrimPrefix(header, "data:")
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return payload, mimeType
}
