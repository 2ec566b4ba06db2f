package gemini

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/phrazzld/sitegen-api/internal/config"
	"github.com/phrazzld/sitegen-api/internal/generation"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// modelsAPI is the subset of *genai.Models used by the generator.
type modelsAPI interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
	GenerateImages(
		ctx context.Context,
		model string,
		prompt string,
		config *genai.GenerateImagesConfig,
	) (*genai.GenerateImagesResponse, error)
}

// Generator implements generation.ContentGenerator using the Gemini API.
type Generator struct {
	logger    *slog.Logger
	config    config.LLMConfig
	models    modelsAPI
	limiter   *rate.Limiter
	titles    *template.Template
	article   *template.Template
	baseDelay time.Duration
}

var _ generation.ContentGenerator = (*Generator)(nil)

// NewGenerator creates a Generator. A missing API key is not an error here:
// the generator is still returned and every call fails with
// generation.ErrInvalidConfig without contacting the service.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}

	var models modelsAPI
	if cfg.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
		}
		models = client.Models
	} else {
		logger.Warn("gemini API key not configured, generation jobs will fail")
	}

	return newGenerator(logger, cfg, models)
}

func newGenerator(logger *slog.Logger, cfg config.LLMConfig, models modelsAPI) (*Generator, error) {
	titles, err := template.ParseFS(promptFS, "prompts/titles.tmpl")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse titles prompt: %v", generation.ErrInvalidConfig, err)
	}
	article, err := template.ParseFS(promptFS, "prompts/article.tmpl")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse article prompt: %v", generation.ErrInvalidConfig, err)
	}

	rpm := cfg.RequestsPerMinute
	if rpm < 1 {
		rpm = 60
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	baseDelay := time.Duration(cfg.RetryDelaySeconds) * time.Second
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}

	return &Generator{
		logger:    logger.With("component", "gemini_generator"),
		config:    cfg,
		models:    models,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		titles:    titles,
		article:   article,
		baseDelay: baseDelay,
	}, nil
}

// GenerateTitles implements generation.ContentGenerator.
func (g *Generator) GenerateTitles(ctx context.Context, topic string, n int) ([]string, error) {
	prompt, err := render(g.titles, promptData{Topic: topic, Count: n})
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.9)),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"titles": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
			},
			Required: []string{"titles"},
		},
	}

	text, err := g.generateText(ctx, "titles", prompt, cfg)
	if err != nil {
		return nil, err
	}
	return parseTitles(text)
}

// GenerateArticle implements generation.ContentGenerator.
func (g *Generator) GenerateArticle(ctx context.Context, topic, title string) (string, error) {
	prompt, err := render(g.article, promptData{Topic: topic, Title: title})
	if err != nil {
		return "", err
	}
	return g.generateText(ctx, "article", prompt, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.7)),
	})
}

// GenerateImage implements generation.ContentGenerator.
func (g *Generator) GenerateImage(ctx context.Context, prompt string) (*generation.ImageRef, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	var img *generation.ImageRef
	err := g.withRetry(ctx, "image", func() error {
		resp, err := g.models.GenerateImages(ctx, g.config.ImageModelName, prompt, &genai.GenerateImagesConfig{
			NumberOfImages: 1,
			OutputMIMEType: "image/png",
		})
		if err != nil {
			return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		}
		img, err = firstImage(resp)
		return err
	})
	return img, err
}

// generateText sends one prompt and returns the concatenated text of the
// first candidate that has any.
func (g *Generator) generateText(
	ctx context.Context,
	op string,
	prompt string,
	cfg *genai.GenerateContentConfig,
) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}

	var text string
	err := g.withRetry(ctx, op, func() error {
		resp, err := g.models.GenerateContent(ctx, g.config.ModelName, genai.Text(prompt), cfg)
		if err != nil {
			return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		}
		text, err = extractText(resp)
		return err
	})
	return text, err
}

// withRetry waits for the rate limiter and runs fn, retrying transient
// failures with exponential backoff and jitter. Blocked content is returned
// immediately; malformed responses are retried like transient errors.
func (g *Generator) withRetry(ctx context.Context, op string, fn func() error) error {
	log := logger.FromContextOrDefault(ctx, g.logger)

	return retry.Do(
		func() error {
			if err := g.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: %v", generation.ErrTransientFailure, err))
			}
			return fn()
		},
		retry.Context(ctx),
		retry.Attempts(uint(g.config.MaxRetries+1)),
		retry.Delay(g.baseDelay),
		retry.MaxJitter(g.baseDelay/2),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, generation.ErrContentBlocked) && !errors.Is(err, generation.ErrInvalidConfig)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("gemini call failed, retrying",
				"operation", op,
				"attempt", n+1,
				"error", err)
		}),
	)
}

func (g *Generator) ready() error {
	if g.models == nil {
		return fmt.Errorf("%w: gemini API key is not configured", generation.ErrInvalidConfig)
	}
	return nil
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	prompt := strings.TrimSpace(buf.String())
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	return prompt, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", generation.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, c := range resp.Candidates {
		if c == nil {
			continue
		}
		if c.FinishReason == genai.FinishReasonSafety {
			return "", generation.ErrContentBlocked
		}
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part != nil && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
		if sb.Len() > 0 {
			break
		}
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: empty content", generation.ErrInvalidResponse)
	}
	return sb.String(), nil
}

func parseTitles(text string) ([]string, error) {
	var parsed titlesResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse titles JSON: %v", generation.ErrInvalidResponse, err)
	}
	if len(parsed.Titles) == 0 {
		return nil, fmt.Errorf("%w: no titles in response", generation.ErrInvalidResponse)
	}
	return parsed.Titles, nil
}

func firstImage(resp *genai.GenerateImagesResponse) (*generation.ImageRef, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil image response", generation.ErrInvalidResponse)
	}
	for _, gi := range resp.GeneratedImages {
		if gi == nil {
			continue
		}
		if gi.Image != nil && len(gi.Image.ImageBytes) > 0 {
			mime := gi.Image.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return &generation.ImageRef{Data: gi.Image.ImageBytes, MIMEType: mime}, nil
		}
		if gi.RAIFilteredReason != "" {
			return nil, fmt.Errorf("%w: %s", generation.ErrContentBlocked, gi.RAIFilteredReason)
		}
	}
	return nil, fmt.Errorf("%w: no image in response", generation.ErrInvalidResponse)
}
