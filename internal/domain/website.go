package domain

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// WebsiteStatus represents how far generation of a website has progressed.
type WebsiteStatus string

// Possible website status values
const (
	// WebsiteStatusGenerating marks a website whose generation job is still
	// writing content. A failed run leaves websites in this state until
	// cleanup removes them.
	WebsiteStatusGenerating WebsiteStatus = "generating"
	WebsiteStatusReady      WebsiteStatus = "ready"
)

// Known template keys.
const (
	TemplateModernNews  = "modernNews"
	TemplateClassicBlog = "classicBlog"
	TemplateMinimal     = "minimal"
)

var templates = map[string]bool{
	TemplateModernNews:  true,
	TemplateClassicBlog: true,
	TemplateMinimal:     true,
}

// subdomainAlphabet is the character set of generated subdomain suffixes.
const subdomainAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// SubdomainSuffixLength is the number of random characters appended to the
// first label of a domain to form a website subdomain.
const SubdomainSuffixLength = 4

// Common validation errors for Website
var (
	ErrEmptyWebsiteID       = errors.New("website ID cannot be empty")
	ErrEmptyWebsiteDomainID = errors.New("website domain ID cannot be empty")
	ErrEmptySubdomain       = errors.New("website subdomain cannot be empty")
	ErrInvalidWebsiteStatus = errors.New("invalid website status")
)

// Website is the generated site for a domain. There is at most one per domain.
type Website struct {
	ID                 uuid.UUID     `json:"id"`
	DomainID           uuid.UUID     `json:"domain_id"`
	UserID             uuid.UUID     `json:"user_id"`
	Subdomain          string        `json:"subdomain"`
	TemplateKey        string        `json:"template_key"`
	ContactFormEnabled bool          `json:"contact_form_enabled"`
	Status             WebsiteStatus `json:"status"`
	// GenerationJobID is the job that created the website.
	GenerationJobID string    `json:"generation_job_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewWebsite creates a Website for the domain in generating state with a
// freshly derived subdomain.
func NewWebsite(d *Domain, templateKey string, contactFormEnabled bool, jobID string) (*Website, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil domain", ErrValidation)
	}
	if !IsKnownTemplate(templateKey) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, templateKey)
	}

	subdomain, err := DeriveSubdomain(d)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	w := &Website{
		ID:                 uuid.New(),
		DomainID:           d.ID,
		UserID:             d.UserID,
		Subdomain:          subdomain,
		TemplateKey:        templateKey,
		ContactFormEnabled: contactFormEnabled,
		Status:             WebsiteStatusGenerating,
		GenerationJobID:    jobID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate checks if the Website has valid data.
func (w *Website) Validate() error {
	if w.ID == uuid.Nil {
		return ErrEmptyWebsiteID
	}
	if w.DomainID == uuid.Nil {
		return ErrEmptyWebsiteDomainID
	}
	if w.Subdomain == "" {
		return ErrEmptySubdomain
	}
	if w.Status != WebsiteStatusGenerating && w.Status != WebsiteStatusReady {
		return ErrInvalidWebsiteStatus
	}
	return nil
}

// IsReady reports whether generation of the website finished.
func (w *Website) IsReady() bool {
	return w.Status == WebsiteStatusReady
}

// DeriveSubdomain returns "<first label>-<4 random [a-z0-9]>" for the domain.
func DeriveSubdomain(d *Domain) (string, error) {
	label, err := d.FirstLabel()
	if err != nil {
		return "", err
	}

	suffix := make([]byte, SubdomainSuffixLength)
	alphabetLen := big.NewInt(int64(len(subdomainAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate subdomain suffix: %w", err)
		}
		suffix[i] = subdomainAlphabet[n.Int64()]
	}

	return label + "-" + string(suffix), nil
}

// IsKnownTemplate reports whether key names a registered website template.
func IsKnownTemplate(key string) bool {
	return templates[key]
}
