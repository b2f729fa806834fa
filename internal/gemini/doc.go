// Package gemini implements the outbound image generation pipeline.
//
// A call runs through three stages:
//   - Input resolution: each ImageInput becomes base64 inline data. Encoded
//     data wins over a path; a missing source fails before any network call.
//   - Request construction: the prompt is the first part, images follow in
//     input order.
//   - Execution: a retry state machine issues the request under a per-attempt
//     timeout and decodes every inline image of the first candidate.
//
// # Retry Policy
//
// HTTP 429, 500 through 598, transport failures and timeouts are retried up to
// MaxRetries times. Attempt n waits BaseDelay*2^n plus a uniform jitter in
// [0, MaxJitter] before the next one. Every other failure is terminal,
// including a successful response that carries no image.
//
// # Errors
//
// Every failure is an *Error whose Kind tells the caller what happened:
//
//	var gerr *gemini.Error
//	if errors.As(err, &gerr) && gerr.Kind == gemini.KindTimeout {
//	    // ...
//	}
//
// The API key never appears in error messages or logs.
package gemini
