package generation

import "context"

// ImageRef points at a generated image. Generators either return the image
// bytes inline or a URL on the provider's side; the relocator accepts both.
type ImageRef struct {
	URL      string
	Data     []byte
	MIMEType string
}

// ContentGenerator is the boundary to the remote AI content service.
type ContentGenerator interface {
	// GenerateTitles returns up to n blog titles for the topic.
	GenerateTitles(ctx context.Context, topic string, n int) ([]string, error)

	// GenerateArticle writes the long-form body of a blog post.
	GenerateArticle(ctx context.Context, topic, title string) (string, error)

	// GenerateImage renders an illustration for the prompt.
	GenerateImage(ctx context.Context, prompt string) (*ImageRef, error)
}

// ArtifactRelocator copies a generated image into the system's object store
// and returns a durable, time-limited URL for it.
type ArtifactRelocator interface {
	Relocate(ctx context.Context, img *ImageRef, key string) (string, error)
}
