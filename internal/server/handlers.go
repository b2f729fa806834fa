package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ironsheep/image-gen-mcp/internal/gemini"
	"github.com/ironsheep/image-gen-mcp/internal/imaging"
	"github.com/ironsheep/image-gen-mcp/internal/metrics"
	"go.uber.org/zap"
)

// defaultStylePrompt is sent by style_transfer when the caller gives no prompt.
// The base image is always the first image part, the style image the second.
const defaultStylePrompt = "Redraw the first image in the artistic style of the second image. " +
	"Keep the subject, composition and layout of the first image, and take the colors, " +
	"textures and brushwork from the second image."

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "generate", "compose").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// ContentBlock is one element of a tool result.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is the result of tools/call. IsError marks a tool failure that
// the model should see, as opposed to a protocol error.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// toolCall is a validated invocation ready for the pipeline.
type toolCall struct {
	tool     string
	prompt   string
	images   []gemini.ImageInput
	saveHint string
}

// handleToolsCall processes a tools/call request.
//
// Argument problems are JSON-RPC errors with code -32602. Failures inside the
// pipeline or while saving come back as a normal result with isError set, so
// the client can show the message to the model.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) (resp *MCPResponse) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool call panicked", zap.Any("panic", r))
			resp = errorResponse(req.ID, codeInternalError, "Internal error", fmt.Sprint(r))
		}
	}()

	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	call, err := s.prepareTool(params.Name, params.Arguments)
	if err != nil {
		s.metrics.RecordToolCall(metricToolName(params.Name), metrics.OutcomeInvalid, 0)
		return errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  s.runTool(ctx, call),
	}
}

// prepareTool decodes and validates the arguments of the named tool.
func (s *Server) prepareTool(name string, args json.RawMessage) (*toolCall, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	case "generate":
		return s.prepareGenerate(args)
	case "edit":
		return s.prepareEdit(args)
	case "compose":
		return s.prepareCompose(args)
	case "style_transfer":
		return s.prepareStyleTransfer(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// runTool executes the pipeline, annotates and saves each image, and renders
// the MCP result.
func (s *Server) runTool(ctx context.Context, call *toolCall) *ToolResult {
	log := s.logger.With(zap.String("tool", call.tool), zap.Int("input_images", len(call.images)))
	start := time.Now()

	images, err := s.generator.Execute(ctx, call.prompt, call.images)
	if err != nil {
		log.Warn("tool failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		s.metrics.RecordToolCall(call.tool, metrics.OutcomeToolError, time.Since(start))
		return errorResult(describeFailure(err))
	}

	result := &ToolResult{}
	lines := []string{fmt.Sprintf("Generated %d image(s) with %s.", len(images), call.tool)}
	var saveErr error

	for i, img := range images {
		result.Content = append(result.Content, ContentBlock{
			Type:     "image",
			Data:     base64.StdEncoding.EncodeToString(img.Data),
			MimeType: img.MimeType,
		})

		line := fmt.Sprintf("Image %d: %s", i+1, img.MimeType)
		if info, err := imaging.Describe(img.Data); err == nil {
			line += ", " + info.String()
		} else {
			log.Debug("image metadata unavailable", zap.Int("image", i+1), zap.Error(err))
			line += fmt.Sprintf(", %d bytes", len(img.Data))
		}

		if saveErr == nil {
			path, err := s.saver.Save(img.Data, img.MimeType, call.saveHint, call.tool)
			switch {
			case err != nil:
				saveErr = err
				log.Error("failed to save image", zap.Int("image", i+1), zap.Error(err))
			case path != "":
				s.metrics.RecordSave()
				line += ", saved to " + path
			}
		}
		lines = append(lines, line)
	}

	outcome := metrics.OutcomeSuccess
	if saveErr != nil {
		result.IsError = true
		outcome = metrics.OutcomeToolError
		lines = append(lines, "Saving failed: "+saveErr.Error())
	}
	s.metrics.RecordToolCall(call.tool, outcome, time.Since(start))

	result.Content = append(result.Content, ContentBlock{Type: "text", Text: strings.Join(lines, "\n")})
	log.Info("tool completed",
		zap.Int("results", len(images)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("save_failed", saveErr != nil),
	)
	return result
}

// metricToolName keeps arbitrary client input out of metric labels.
func metricToolName(name string) string {
	switch name {
	case "generate", "edit", "compose", "style_transfer":
		return name
	}
	return "unknown"
}

func errorResult(msg string) *ToolResult {
	return &ToolResult{
		Content: []ContentBlock{{Type: "text", Text: msg}},
		IsError: true,
	}
}

// describeFailure renders a pipeline error for the model.
func describeFailure(err error) string {
	var gerr *gemini.Error
	if !errors.As(err, &gerr) {
		return "Image generation failed: " + err.Error()
	}
	switch gerr.Kind {
	case gemini.KindCredential:
		return "Image generation is not configured: " + gerr.Message
	case gemini.KindTimeout:
		return "Image generation timed out: " + gerr.Message
	case gemini.KindInput:
		return "Invalid image input: " + err.Error()
	default:
		return "Image generation failed: " + err.Error()
	}
}

// imageArg is one image given as base64 data or a path.
type imageArg struct {
	Data     string `json:"data"`
	Path     string `json:"path"`
	MimeType string `json:"mimeType"`
}

// toInput validates an image argument and turns it into a pipeline input.
// Without an explicit MIME type, data inputs take it from a data URL prefix
// and path inputs from the file extension.
func (s *Server) toInput(field string, a imageArg) (gemini.ImageInput, error) {
	if a.Data == "" && a.Path == "" {
		return gemini.ImageInput{}, invalid(field, "either data or path is required")
	}
	if err := validateImageData(field+".data", a.Data); err != nil {
		return gemini.ImageInput{}, err
	}

	in := gemini.ImageInput{Data: a.Data, MimeType: a.MimeType}
	if a.Data != "" && in.MimeType == "" {
		_, in.MimeType = gemini.SplitDataURL(a.Data)
	}
	if a.Data == "" {
		path, err := s.resolvePath(field+".path", a.Path)
		if err != nil {
			return gemini.ImageInput{}, err
		}
		in.Path = path
		if in.MimeType == "" {
			in.MimeType = imaging.DetectMimeType(path)
		}
	}

	if err := validateMimeType(field+".mimeType", in.MimeType); err != nil {
		return gemini.ImageInput{}, err
	}
	return in, nil
}

func (s *Server) resolveSaveHint(hint string) (string, error) {
	if strings.TrimSpace(hint) == "" {
		return "", nil
	}
	return s.resolvePath("saveToFilePath", hint)
}

type generateArgs struct {
	Prompt         string `json:"prompt"`
	SaveToFilePath string `json:"saveToFilePath"`
}

func (s *Server) prepareGenerate(args json.RawMessage) (*toolCall, error) {
	var a generateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := validatePrompt("prompt", a.Prompt); err != nil {
		return nil, err
	}
	hint, err := s.resolveSaveHint(a.SaveToFilePath)
	if err != nil {
		return nil, err
	}
	return &toolCall{tool: "generate", prompt: a.Prompt, saveHint: hint}, nil
}

type editArgs struct {
	Prompt         string `json:"prompt"`
	ImageData      string `json:"imageData"`
	ImagePath      string `json:"imagePath"`
	MimeType       string `json:"mimeType"`
	SaveToFilePath string `json:"saveToFilePath"`
}

func (s *Server) prepareEdit(args json.RawMessage) (*toolCall, error) {
	var a editArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := validatePrompt("prompt", a.Prompt); err != nil {
		return nil, err
	}
	in, err := s.toInput("image", imageArg{Data: a.ImageData, Path: a.ImagePath, MimeType: a.MimeType})
	if err != nil {
		return nil, err
	}
	hint, err := s.resolveSaveHint(a.SaveToFilePath)
	if err != nil {
		return nil, err
	}
	return &toolCall{tool: "edit", prompt: a.Prompt, images: []gemini.ImageInput{in}, saveHint: hint}, nil
}

type composeArgs struct {
	Prompt         string     `json:"prompt"`
	Images         []imageArg `json:"images"`
	SaveToFilePath string     `json:"saveToFilePath"`
}

func (s *Server) prepareCompose(args json.RawMessage) (*toolCall, error) {
	var a composeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := validatePrompt("prompt", a.Prompt); err != nil {
		return nil, err
	}
	if n := len(a.Images); n < minComposeImages || n > maxComposeImages {
		return nil, invalid("images", "got %d images, need %d to %d", n, minComposeImages, maxComposeImages)
	}

	inputs := make([]gemini.ImageInput, 0, len(a.Images))
	for i, img := range a.Images {
		in, err := s.toInput(fmt.Sprintf("images[%d]", i), img)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	hint, err := s.resolveSaveHint(a.SaveToFilePath)
	if err != nil {
		return nil, err
	}
	return &toolCall{tool: "compose", prompt: a.Prompt, images: inputs, saveHint: hint}, nil
}

type styleTransferArgs struct {
	Prompt         string   `json:"prompt"`
	BaseImage      imageArg `json:"baseImage"`
	StyleImage     imageArg `json:"styleImage"`
	SaveToFilePath string   `json:"saveToFilePath"`
}

func (s *Server) prepareStyleTransfer(args json.RawMessage) (*toolCall, error) {
	var a styleTransferArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	prompt := a.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultStylePrompt
	} else if err := validatePrompt("prompt", prompt); err != nil {
		return nil, err
	}

	base, err := s.toInput("baseImage", a.BaseImage)
	if err != nil {
		return nil, err
	}
	style, err := s.toInput("styleImage", a.StyleImage)
	if err != nil {
		return nil, err
	}
	hint, err := s.resolveSaveHint(a.SaveToFilePath)
	if err != nil {
		return nil, err
	}
	return &toolCall{
		tool:     "style_transfer",
		prompt:   prompt,
		images:   []gemini.ImageInput{base, style},
		saveHint: hint,
	}, nil
}
