// Package metrics counts tool calls, provider attempts and saved images.
//
// Metrics are exported under the image_gen_mcp namespace and served by the
// HTTP transport at GET /metrics. The stdio transport records them but has
// nowhere to expose them.
package metrics
