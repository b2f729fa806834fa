package gemini

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Image is one decoded result: raw bytes plus MIME type.
type Image struct {
	Data     []byte
	MimeType string
}

// ResponsePart is a tagged union: exactly one of Text or Inline is meaningful.
// Both the camelCase and the snake_case wire spellings are accepted.
type ResponsePart struct {
	Text   string
	Inline *InlineData
}

type wireBlob struct {
	MimeType      string `json:"mimeType"`
	MimeTypeSnake string `json:"mime_type"`
	Data          string `json:"data"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ResponsePart) UnmarshalJSON(b []byte) error {
	var raw struct {
		Text            string    `json:"text"`
		InlineData      *wireBlob `json:"inlineData"`
		InlineDataSnake *wireBlob `json:"inline_data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	blob := raw.InlineData
	if blob == nil {
		blob = raw.InlineDataSnake
	}
	if blob == nil {
		*p = ResponsePart{Text: raw.Text}
		return nil
	}

	mimeType := blob.MimeType
	if mimeType == "" {
		mimeType = blob.MimeTypeSnake
	}
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	*p = ResponsePart{Inline: &InlineData{MimeType: mimeType, Data: blob.Data}}
	return nil
}

// IsImage reports whether the part carries inline image data.
func (p ResponsePart) IsImage() bool {
	return p.Inline != nil && p.Inline.Data != ""
}

type candidate struct {
	Content *struct {
		Parts []ResponsePart `json:"parts"`
	} `json:"content"`
	FinishReason string `json:"finishReason"`
}

// Response is the subset of the generateContent response the pipeline reads.
type Response struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// DecodeResponse extracts every inline image of the first candidate.
// An empty result is a permanent failure: the provider answered but produced
// nothing, which another attempt will not change.
func DecodeResponse(body []byte) ([]Image, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{
			Kind:    KindPermanent,
			Message: "failed to decode provider response",
			Body:    truncate(string(body), maxBodyInError),
			Err:     err,
		}
	}

	var images []Image
	var text []string
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for i, part := range resp.Candidates[0].Content.Parts {
			if !part.IsImage() {
				if part.Text != "" {
					text = append(text, part.Text)
				}
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.Inline.Data)
			if err != nil {
				return nil, &Error{
					Kind:    KindPermanent,
					Message: fmt.Sprintf("part %d carries invalid base64 image data", i),
					Err:     err,
				}
			}
			images = append(images, Image{Data: data, MimeType: part.Inline.MimeType})
		}
	}

	if len(images) == 0 {
		return nil, &Error{
			Kind:    KindPermanent,
			Message: noImageMessage(resp, text),
		}
	}
	return images, nil
}

func noImageMessage(resp Response, text []string) string {
	msg := "no image data in provider response"
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		msg += fmt.Sprintf(" (prompt blocked: %s)", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 {
		if reason := resp.Candidates[0].FinishReason; reason != "" && reason != "STOP" {
			msg += fmt.Sprintf(" (finish reason: %s)", reason)
		}
	}
	if len(text) > 0 {
		msg += ": " + truncate(strings.Join(text, " "), maxBodyInError)
	}
	return msg
}
