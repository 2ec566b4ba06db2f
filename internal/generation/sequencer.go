package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
)

// PreviewLength is the maximum length, in characters, of a blog preview.
const PreviewLength = 300

var (
	ErrNilGenerator = errors.New("content generator cannot be nil")
	ErrNilRelocator = errors.New("artifact relocator cannot be nil")
	ErrNilBlogSink  = errors.New("blog sink cannot be nil")
)

// Blog is one generated blog post ready to be persisted.
type Blog struct {
	Title    string
	Body     string
	Preview  string
	ImageURL string
}

// Plan describes one generation sequence.
type Plan struct {
	// Topic seeds title and article generation.
	Topic string
	// Count is the number of blogs to generate.
	Count int
	// AssetPrefix is prepended to object keys of relocated images.
	AssetPrefix string
}

// Hooks receive the results of a sequence as it advances. BlogReady is
// called for blog i before any content for blog i+1 is requested; an error
// from either hook aborts the sequence.
type Hooks struct {
	TitlesReady func(ctx context.Context, titles []string) error
	BlogReady   func(ctx context.Context, index int, blog *Blog) error
}

// Sequencer drives the remote generator through the strictly ordered
// title -> article -> image steps shared by all generation jobs.
type Sequencer struct {
	gen       ContentGenerator
	relocator ArtifactRelocator
	logger    *slog.Logger
}

// NewSequencer creates a Sequencer.
func NewSequencer(gen ContentGenerator, relocator ArtifactRelocator, logger *slog.Logger) (*Sequencer, error) {
	if gen == nil {
		return nil, ErrNilGenerator
	}
	if relocator == nil {
		return nil, ErrNilRelocator
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		gen:       gen,
		relocator: relocator,
		logger:    logger.With("component", "generation_sequencer"),
	}, nil
}

// Run generates plan.Count blogs. Titles are requested once; blogs are then
// produced one at a time in title order.
func (s *Sequencer) Run(ctx context.Context, plan Plan, hooks Hooks) error {
	if hooks.BlogReady == nil {
		return ErrNilBlogSink
	}

	titles, err := s.Titles(ctx, plan.Topic, plan.Count)
	if err != nil {
		return err
	}
	if hooks.TitlesReady != nil {
		if err := hooks.TitlesReady(ctx, titles); err != nil {
			return err
		}
	}

	for i, title := range titles {
		blog, err := s.Blog(ctx, plan.Topic, title, plan.AssetPrefix)
		if err != nil {
			return fmt.Errorf("blog %d of %d: %w", i+1, len(titles), err)
		}
		if err := hooks.BlogReady(ctx, i, blog); err != nil {
			return err
		}
	}
	return nil
}

// Titles returns exactly n distinct, non-empty titles. Fewer usable titles
// than requested is reported as ErrInvalidResponse.
func (s *Sequencer) Titles(ctx context.Context, topic string, n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: title count must be positive, got %d", ErrGenerationFailed, n)
	}

	raw, err := s.gen.GenerateTitles(ctx, topic, n)
	if err != nil {
		return nil, fmt.Errorf("failed to generate titles: %w", err)
	}

	seen := make(map[string]bool, len(raw))
	titles := make([]string, 0, n)
	for _, t := range raw {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		titles = append(titles, t)
		if len(titles) == n {
			break
		}
	}

	if len(titles) < n {
		return nil, fmt.Errorf("%w: wanted %d titles, got %d usable", ErrInvalidResponse, n, len(titles))
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("titles generated", "count", len(titles))
	return titles, nil
}

// Blog generates the article, preview and relocated image for one title.
func (s *Sequencer) Blog(ctx context.Context, topic, title, assetPrefix string) (*Blog, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	body, err := s.gen.GenerateArticle(ctx, topic, title)
	if err != nil {
		return nil, fmt.Errorf("failed to generate article: %w", err)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: empty article for %q", ErrInvalidResponse, title)
	}

	img, err := s.gen.GenerateImage(ctx, ImagePrompt(topic, title))
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}

	key := path.Join(assetPrefix, uuid.NewString()+imageExtension(img.MIMEType))
	url, err := s.relocator.Relocate(ctx, img, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRelocationFailed, err)
	}

	log.Debug("blog generated", "title", title, "image_key", key)
	return &Blog{
		Title:    title,
		Body:     body,
		Preview:  Preview(body),
		ImageURL: url,
	}, nil
}

// ImagePrompt builds the illustration prompt for a blog title.
func ImagePrompt(topic, title string) string {
	return fmt.Sprintf(
		"An editorial illustration for a blog post titled %q on a website about %s. No text in the image.",
		title, topic)
}

// Preview returns a whitespace-collapsed excerpt of text of at most
// PreviewLength characters, cut at a word boundary when possible.
func Preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}

	runes := []rune(text)
	cut := runes[:PreviewLength-1]
	if i := lastSpace(cut); i > PreviewLength/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + "…"
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return -1
}

func imageExtension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
