package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantMimes []string
		wantData  []string
		wantErr   string
	}{
		{
			name:      "camelCase parts",
			body:      `{"candidates":[{"content":{"parts":[{"text":"hi"},{"inlineData":{"mimeType":"image/jpeg","data":"QUJD"}}]}}]}`,
			wantMimes: []string{"image/jpeg"},
			wantData:  []string{"ABC"},
		},
		{
			name:      "snake_case parts",
			body:      `{"candidates":[{"content":{"parts":[{"inline_data":{"mime_type":"image/webp","data":"QUJD"}}]}}]}`,
			wantMimes: []string{"image/webp"},
			wantData:  []string{"ABC"},
		},
		{
			name:      "missing mime defaults to png",
			body:      `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"QUJD"}}]}}]}`,
			wantMimes: []string{"image/png"},
			wantData:  []string{"ABC"},
		},
		{
			name:      "every inline part is collected in order",
			body:      `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"QQ=="}},{"text":"and"},{"inlineData":{"mimeType":"image/gif","data":"Qg=="}}]}}]}`,
			wantMimes: []string{"image/png", "image/gif"},
			wantData:  []string{"A", "B"},
		},
		{
			name:      "only the first candidate is read",
			body:      `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"QQ=="}}]}},{"content":{"parts":[{"inlineData":{"data":"Qg=="}}]}}]}`,
			wantMimes: []string{"image/png"},
			wantData:  []string{"A"},
		},
		{
			name:    "text only",
			body:    `{"candidates":[{"content":{"parts":[{"text":"no can do"}]},"finishReason":"STOP"}]}`,
			wantErr: "no image data",
		},
		{
			name:    "blocked prompt",
			body:    `{"promptFeedback":{"blockReason":"SAFETY"}}`,
			wantErr: "prompt blocked: SAFETY",
		},
		{
			name:    "no candidates",
			body:    `{"candidates":[]}`,
			wantErr: "no image data",
		},
		{
			name:    "candidate without content",
			body:    `{"candidates":[{"finishReason":"RECITATION"}]}`,
			wantErr: "finish reason: RECITATION",
		},
		{
			name:    "empty inline data is skipped",
			body:    `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":""}}]}}]}`,
			wantErr: "no image data",
		},
		{
			name:    "invalid base64",
			body:    `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"%%%"}}]}}]}`,
			wantErr: "invalid base64",
		},
		{
			name:    "not JSON",
			body:    `<html>gateway</html>`,
			wantErr: "failed to decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images, err := DecodeResponse([]byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, KindPermanent, KindOf(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.Len(t, images, len(tt.wantData))
			for i := range images {
				assert.Equal(t, tt.wantMimes[i], images[i].MimeType)
				assert.Equal(t, tt.wantData[i], string(images[i].Data))
			}
		})
	}
}

func TestResponsePart_IsImage(t *testing.T) {
	assert.False(t, ResponsePart{Text: "x"}.IsImage())
	assert.False(t, ResponsePart{Inline: &InlineData{}}.IsImage())
	assert.True(t, ResponsePart{Inline: &InlineData{Data: "QQ=="}}.IsImage())
}
