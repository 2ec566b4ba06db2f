// Package gemini implements generation.ContentGenerator on top of Google's
// genai client: blog titles come back as schema-constrained JSON, articles
// as plain text, and illustrations from an Imagen model as inline bytes.
//
// Calls are rate limited, retried with exponential backoff and jitter on
// transient failures, and fail fast with generation.ErrInvalidConfig when no
// API key is configured.
package gemini
