package gemini

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBuildRequest_PartOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prompt := rapid.StringMatching(`[a-zA-Z0-9 ]{1,200}`).Draw(rt, "prompt")
		count := rapid.IntRange(0, 10).Draw(rt, "count")

		images := make([]InlineData, count)
		for i := range images {
			images[i] = InlineData{
				MimeType: rapid.SampledFrom([]string{"image/png", "image/jpeg", "image/webp"}).Draw(rt, "mime"),
				Data:     fmt.Sprintf("image-%d", i),
			}
		}

		req := BuildRequest(prompt, images)
		require.Len(rt, req.Contents, 1)
		parts := req.Contents[0].Parts
		require.Len(rt, parts, count+1)

		assert.Equal(rt, prompt, parts[0].Text)
		assert.Nil(rt, parts[0].InlineData)
		for i, img := range images {
			require.NotNil(rt, parts[i+1].InlineData, "part %d", i+1)
			assert.Equal(rt, img, *parts[i+1].InlineData, "part %d", i+1)
			assert.Empty(rt, parts[i+1].Text)
		}
	})
}

func TestBuildRequest_PartsDoNotAlias(t *testing.T) {
	images := []InlineData{{MimeType: "image/png", Data: "a"}, {MimeType: "image/png", Data: "b"}}
	req := BuildRequest("p", images)

	images[0].Data = "changed"
	assert.Equal(t, "a", req.Contents[0].Parts[1].InlineData.Data)
	assert.Equal(t, "b", req.Contents[0].Parts[2].InlineData.Data)
}

func TestBuildRequest_WireShape(t *testing.T) {
	req := BuildRequest("draw", []InlineData{{MimeType: "image/gif", Data: "R0lG"}})

	body, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"contents":[{"parts":[{"text":"draw"},{"inline_data":{"mime_type":"image/gif","data":"R0lG"}}]}]}`,
		string(body))
}

func TestBase64RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		original := rapid.SliceOfN(rapid.Byte(), 1, 4096).Draw(rt, "bytes")
		encoded := base64.StdEncoding.EncodeToString(original)

		inline, err := ResolveInputs([]ImageInput{{Data: encoded, MimeType: "image/png"}}, nil)
		require.NoError(rt, err)

		req := BuildRequest("echo", inline)
		sentPart := req.Contents[0].Parts[1].InlineData

		// The provider echoes the same payload back.
		resp := fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":%q,"data":%q}}]}}]}`,
			sentPart.MimeType, sentPart.Data)

		images, err := DecodeResponse([]byte(resp))
		require.NoError(rt, err)
		require.Len(rt, images, 1)
		assert.Equal(rt, original, images[0].Data)
		assert.Equal(rt, "image/png", images[0].MimeType)
	})
}

func TestResolveInputs(t *testing.T) {
	files := map[string][]byte{
		"/in/a.png": {1, 2, 3},
	}
	readFile := func(path string) ([]byte, error) {
		if data, ok := files[path]; ok {
			return data, nil
		}
		return nil, errors.New("file does not exist")
	}

	t.Run("data wins over path", func(t *testing.T) {
		got, err := ResolveInputs([]ImageInput{{Data: "QUJD", Path: "/in/a.png"}}, readFile)
		require.NoError(t, err)
		assert.Equal(t, []InlineData{{MimeType: DefaultMimeType, Data: "QUJD"}}, got)
	})

	t.Run("path is read and encoded", func(t *testing.T) {
		got, err := ResolveInputs([]ImageInput{{Path: "/in/a.png", MimeType: "image/webp"}}, readFile)
		require.NoError(t, err)
		assert.Equal(t, []InlineData{{MimeType: "image/webp", Data: "AQID"}}, got)
	})

	t.Run("data URL prefix is stripped", func(t *testing.T) {
		got, err := ResolveInputs([]ImageInput{{Data: "data:image/jpeg;base64,QUJD"}}, readFile)
		require.NoError(t, err)
		assert.Equal(t, []InlineData{{MimeType: "image/jpeg", Data: "QUJD"}}, got)
	})

	t.Run("explicit mime beats data URL", func(t *testing.T) {
		got, err := ResolveInputs([]ImageInput{{Data: "data:image/jpeg;base64,QUJD", MimeType: "image/png"}}, readFile)
		require.NoError(t, err)
		assert.Equal(t, "image/png", got[0].MimeType)
	})

	t.Run("missing source fails before any read", func(t *testing.T) {
		reads := 0
		counting := func(path string) ([]byte, error) {
			reads++
			return readFile(path)
		}
		_, err := ResolveInputs([]ImageInput{{Path: "/in/a.png"}, {}}, counting)
		assert.Equal(t, KindInput, KindOf(err))
		assert.Zero(t, reads)
	})

	t.Run("unreadable path", func(t *testing.T) {
		_, err := ResolveInputs([]ImageInput{{Path: "/in/missing.png"}}, readFile)
		assert.Equal(t, KindInput, KindOf(err))
		assert.Contains(t, err.Error(), "/in/missing.png")
	})

	t.Run("empty input list", func(t *testing.T) {
		got, err := ResolveInputs(nil, readFile)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
