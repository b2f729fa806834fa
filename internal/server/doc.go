// Package server implements the MCP (Model Context Protocol) server for image generation tools.
//
// This package provides a JSON-RPC 2.0 server that exposes Gemini image
// generation through the MCP protocol. Each tool call is validated here,
// forwarded to a Generator and the results are handed to a Saver.
//
// # Transports
//
// Two transports share the same dispatcher:
//   - stdio: one JSON-RPC message per line on stdin, responses on stdout.
//     Requests run concurrently; responses carry the request ID.
//   - http: POST /mcp with one JSON-RPC message per request. An
//     Mcp-Session-Id header is issued on initialize. GET /healthz reports
//     liveness and GET /metrics serves Prometheus metrics when a collector
//     is attached with WithMetrics.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - generate: text to image
//   - edit: change one image following a prompt
//   - compose: combine 2 to 10 images
//   - style_transfer: render a base image in the style of another
//
// # Error Handling
//
// Malformed or invalid arguments are JSON-RPC errors with code -32602.
// Failures of the provider call or of saving are returned as a tool result
// with isError set and a human-readable message, alongside any images that
// were produced.
package server
