package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/phrazzld/sitegen-api/internal/generation"
)

// MockContentGenerator implements generation.ContentGenerator for testing.
// Without overrides it returns deterministic content derived from its inputs.
type MockContentGenerator struct {
	GenerateTitlesFn  func(ctx context.Context, topic string, n int) ([]string, error)
	GenerateArticleFn func(ctx context.Context, topic, title string) (string, error)
	GenerateImageFn   func(ctx context.Context, prompt string) (*generation.ImageRef, error)

	mu sync.Mutex
	// Calls records every call in order as "titles", "article:<title>" or "image".
	Calls []string
}

var _ generation.ContentGenerator = (*MockContentGenerator)(nil)

func (m *MockContentGenerator) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// CallLog returns a copy of the recorded calls.
func (m *MockContentGenerator) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// GenerateTitles implements generation.ContentGenerator.
func (m *MockContentGenerator) GenerateTitles(ctx context.Context, topic string, n int) ([]string, error) {
	m.record("titles")
	if m.GenerateTitlesFn != nil {
		return m.GenerateTitlesFn(ctx, topic, n)
	}
	titles := make([]string, n)
	for i := range titles {
		titles[i] = fmt.Sprintf("%s post %d", topic, i+1)
	}
	return titles, nil
}

// GenerateArticle implements generation.ContentGenerator.
func (m *MockContentGenerator) GenerateArticle(ctx context.Context, topic, title string) (string, error) {
	m.record("article:" + title)
	if m.GenerateArticleFn != nil {
		return m.GenerateArticleFn(ctx, topic, title)
	}
	return strings.Repeat("Body of "+title+". ", 40), nil
}

// GenerateImage implements generation.ContentGenerator.
func (m *MockContentGenerator) GenerateImage(ctx context.Context, prompt string) (*generation.ImageRef, error) {
	m.record("image")
	if m.GenerateImageFn != nil {
		return m.GenerateImageFn(ctx, prompt)
	}
	return &generation.ImageRef{Data: []byte("png"), MIMEType: "image/png"}, nil
}

// MockRelocator implements generation.ArtifactRelocator for testing.
type MockRelocator struct {
	RelocateFn func(ctx context.Context, img *generation.ImageRef, key string) (string, error)

	mu   sync.Mutex
	Keys []string
}

var _ generation.ArtifactRelocator = (*MockRelocator)(nil)

// Relocate implements generation.ArtifactRelocator.
func (m *MockRelocator) Relocate(ctx context.Context, img *generation.ImageRef, key string) (string, error) {
	m.mu.Lock()
	m.Keys = append(m.Keys, key)
	m.mu.Unlock()

	if m.RelocateFn != nil {
		return m.RelocateFn(ctx, img, key)
	}
	return "https://assets.example.test/" + key + "?X-Amz-Expires=604800", nil
}
