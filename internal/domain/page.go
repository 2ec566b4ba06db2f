package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// HomePageSlug is the slug of the page every website is created with.
const HomePageSlug = "home"

// SectionKind classifies a section on a page.
type SectionKind string

// Possible section kinds
const (
	SectionKindHero   SectionKind = "hero"
	SectionKindBlog   SectionKind = "blog"
	SectionKindFooter SectionKind = "footer"
)

// HeroOrderIndex is the order index reserved for the hero section.
const HeroOrderIndex = 0

// BlockKind classifies a content block within a section.
type BlockKind string

// Possible content block kinds
const (
	BlockKindTitle   BlockKind = "title"
	BlockKindBody    BlockKind = "body"
	BlockKindPreview BlockKind = "preview"
	BlockKindImage   BlockKind = "image"
	BlockKindText    BlockKind = "text"
)

// Common validation errors for pages and sections
var (
	ErrEmptyPageWebsiteID  = errors.New("page website ID cannot be empty")
	ErrEmptySectionPageID  = errors.New("section page ID cannot be empty")
	ErrInvalidSectionKind  = errors.New("invalid section kind")
	ErrSectionWithoutBlock = errors.New("section must have at least one content block")
)

// Page belongs to a website and holds ordered sections.
type Page struct {
	ID        uuid.UUID `json:"id"`
	WebsiteID uuid.UUID `json:"website_id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHomePage creates the home page of a website.
func NewHomePage(websiteID uuid.UUID, title string) (*Page, error) {
	if websiteID == uuid.Nil {
		return nil, ErrEmptyPageWebsiteID
	}
	return &Page{
		ID:        uuid.New(),
		WebsiteID: websiteID,
		Slug:      HomePageSlug,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Section is an ordered region of a page. Order indices are unique per page.
type Section struct {
	ID         uuid.UUID   `json:"id"`
	PageID     uuid.UUID   `json:"page_id"`
	Kind       SectionKind `json:"kind"`
	OrderIndex int         `json:"order_index"`
	// GenerationJobID is the job that wrote the section, empty for
	// sections created outside a job.
	GenerationJobID string          `json:"generation_job_id,omitempty"`
	Blocks          []*ContentBlock `json:"blocks"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ContentBlock is one piece of content inside a section.
type ContentBlock struct {
	ID        uuid.UUID `json:"id"`
	SectionID uuid.UUID `json:"section_id"`
	Kind      BlockKind `json:"kind"`
	Position  int       `json:"position"`
	Value     string    `json:"value"`
}

// NewSection creates a section with the given blocks. Block positions follow
// the order in which the blocks are passed.
func NewSection(
	pageID uuid.UUID,
	kind SectionKind,
	orderIndex int,
	jobID string,
	blocks ...*ContentBlock,
) (*Section, error) {
	s := &Section{
		ID:              uuid.New(),
		PageID:          pageID,
		Kind:            kind,
		OrderIndex:      orderIndex,
		GenerationJobID: jobID,
		CreatedAt:       time.Now().UTC(),
	}
	for i, b := range blocks {
		b.ID = uuid.New()
		b.SectionID = s.ID
		b.Position = i
		s.Blocks = append(s.Blocks, b)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks if the Section has valid data.
func (s *Section) Validate() error {
	if s.PageID == uuid.Nil {
		return ErrEmptySectionPageID
	}
	switch s.Kind {
	case SectionKindHero, SectionKindBlog, SectionKindFooter:
	default:
		return ErrInvalidSectionKind
	}
	if s.OrderIndex < 0 {
		return ErrInvalidOrderIndex
	}
	if len(s.Blocks) == 0 {
		return ErrSectionWithoutBlock
	}
	return nil
}

// Block returns the first block of the given kind, or nil.
func (s *Section) Block(kind BlockKind) *ContentBlock {
	for _, b := range s.Blocks {
		if b.Kind == kind {
			return b
		}
	}
	return nil
}

// NewBlock is shorthand for a ContentBlock with a kind and value.
func NewBlock(kind BlockKind, value string) *ContentBlock {
	return &ContentBlock{Kind: kind, Value: value}
}
