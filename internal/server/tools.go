package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func promptProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"minLength":   1,
		"maxLength":   maxPromptLength,
	}
}

func saveProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Optional file path for the result, relative to the server's working directory. The extension is derived from the image type when omitted. Existing files are never overwritten; a numeric suffix is added instead.",
	}
}

func mimeTypeProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "MIME type of the image. Defaults to the file extension for paths, otherwise image/png.",
		"enum":        []string{"image/png", "image/jpeg", "image/jpg", "image/webp", "image/gif"},
	}
}

// imageObjectSchema describes one image supplied as base64 data or a path.
func imageObjectSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"data": map[string]interface{}{
				"type":        "string",
				"description": "Base64-encoded image data, optionally as a data: URL. Takes precedence over path.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to an image file inside the server's working directory",
			},
			"mimeType": mimeTypeProperty(),
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "generate",
			Description: "Generate a new image from a text prompt.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt":         promptProperty("Description of the image to generate"),
					"saveToFilePath": saveProperty(),
				},
				"required": []string{"prompt"},
			},
		},
		{
			Name:        "edit",
			Description: "Edit an existing image according to a text instruction.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt": promptProperty("What to change in the image"),
					"imageData": map[string]interface{}{
						"type":        "string",
						"description": "Base64-encoded source image. Takes precedence over imagePath.",
					},
					"imagePath": map[string]interface{}{
						"type":        "string",
						"description": "Path to the source image inside the server's working directory",
					},
					"mimeType":       mimeTypeProperty(),
					"saveToFilePath": saveProperty(),
				},
				"required": []string{"prompt"},
			},
		},
		{
			Name:        "compose",
			Description: "Combine 2 to 10 images into one new image guided by a text prompt. Images are passed to the model in the order given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt": promptProperty("How to combine the images"),
					"images": map[string]interface{}{
						"type":     "array",
						"items":    imageObjectSchema("One input image"),
						"minItems": minComposeImages,
						"maxItems": maxComposeImages,
					},
					"saveToFilePath": saveProperty(),
				},
				"required": []string{"prompt", "images"},
			},
		},
		{
			Name:        "style_transfer",
			Description: "Render the base image in the artistic style of the style image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"baseImage":      imageObjectSchema("Image whose content and composition are kept"),
					"styleImage":     imageObjectSchema("Image whose style is applied"),
					"prompt":         promptProperty("Optional instruction replacing the default style transfer prompt"),
					"saveToFilePath": saveProperty(),
				},
				"required": []string{"baseImage", "styleImage"},
			},
		},
	}
}
