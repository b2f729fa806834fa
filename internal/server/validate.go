package server

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	maxPromptLength = 2000

	// maxBase64Length is 20 MiB of binary data after base64 expansion,
	// rounded up to a whole quantum.
	maxBase64Length = 27962028

	minComposeImages = 2
	maxComposeImages = 10
)

var allowedMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
	"image/gif":  true,
}

// validationError is a bad tool argument. It maps to JSON-RPC -32602.
type validationError struct {
	Field  string
	Reason string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &validationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func validatePrompt(field, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return invalid(field, "must not be empty")
	}
	if n := utf8.RuneCountInString(prompt); n > maxPromptLength {
		return invalid(field, "%d characters exceeds the limit of %d", n, maxPromptLength)
	}
	return nil
}

func validateMimeType(field, mimeType string) error {
	if mimeType == "" {
		return nil
	}
	if !allowedMimeTypes[strings.ToLower(mimeType)] {
		return invalid(field, "unsupported MIME type %q (allowed: image/png, image/jpeg, image/jpg, image/webp, image/gif)", mimeType)
	}
	return nil
}

func validateImageData(field, data string) error {
	if len(data) > maxBase64Length {
		return invalid(field, "encoded image is %d bytes, limit is %d", len(data), maxBase64Length)
	}
	return nil
}

// resolvePath checks a caller-supplied path and returns it as an absolute path
// inside the server's working directory.
func (s *Server) resolvePath(field, path string) (string, error) {
	if strings.Contains(path, "..") {
		return "", invalid(field, "path must not contain '..'")
	}
	if strings.HasPrefix(path, "~") {
		return "", invalid(field, "path must not start with '~'")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.workDir, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(s.workDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", invalid(field, "path must stay inside %s", s.workDir)
	}
	return abs, nil
}
