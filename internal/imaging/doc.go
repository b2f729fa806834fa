// Package imaging inspects encoded images without keeping them around.
//
// Describe decodes a payload once and reports its dimensions, format, color
// depth and alpha channel. The server uses it to annotate generated images
// in tool results; a payload that cannot be decoded simply goes unannotated.
//
// DetectMimeType maps a file extension to the MIME type sent to the provider
// when a path input does not name one.
//
// # Supported Formats
//
// PNG, JPEG and GIF are decoded. WebP is recognized by extension only.
package imaging
