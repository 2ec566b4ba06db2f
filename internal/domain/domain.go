package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DomainStatus represents the provisioning state of a registered domain.
type DomainStatus string

// Possible domain status values
const (
	DomainStatusPending DomainStatus = "PENDING"
	DomainStatusActive  DomainStatus = "ACTIVE"
)

// Common validation errors for Domain
var (
	ErrEmptyDomainID     = errors.New("domain ID cannot be empty")
	ErrEmptyDomainUserID = errors.New("domain user ID cannot be empty")
	ErrEmptyDomainName   = errors.New("domain name cannot be empty")
	ErrInvalidDomainStat = errors.New("invalid domain status")
)

// Domain is a hostname owned by a user. A website is generated for it
// exactly once; its status flips to active when generation succeeds.
type Domain struct {
	ID     uuid.UUID    `json:"id"`
	UserID uuid.UUID    `json:"user_id"`
	Name   string       `json:"name"`
	Status DomainStatus `json:"status"`
	// Meaning is optional free text the owner supplied to steer generation.
	Meaning   string    `json:"meaning,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDomain creates a pending Domain for the given user.
func NewDomain(userID uuid.UUID, name, meaning string) (*Domain, error) {
	now := time.Now().UTC()
	d := &Domain{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      strings.ToLower(strings.TrimSpace(name)),
		Meaning:   strings.TrimSpace(meaning),
		Status:    DomainStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks if the Domain has valid data.
func (d *Domain) Validate() error {
	if d.ID == uuid.Nil {
		return ErrEmptyDomainID
	}
	if d.UserID == uuid.Nil {
		return ErrEmptyDomainUserID
	}
	if d.Name == "" {
		return ErrEmptyDomainName
	}
	if !IsValidDomainStatus(d.Status) {
		return ErrInvalidDomainStat
	}
	return nil
}

// FirstLabel returns the leftmost label of the domain name,
// e.g. "example" for "example.com".
func (d *Domain) FirstLabel() (string, error) {
	label, _, _ := strings.Cut(strings.TrimSpace(d.Name), ".")
	if label == "" {
		return "", ErrInvalidDomainName
	}
	return strings.ToLower(label), nil
}

// Topic is the seed used for content generation: the domain name plus the
// owner's description when one was given.
func (d *Domain) Topic() string {
	if d.Meaning == "" {
		return d.Name
	}
	return d.Name + " (" + d.Meaning + ")"
}

// IsValidDomainStatus checks if the given status is a valid DomainStatus.
func IsValidDomainStatus(status DomainStatus) bool {
	switch status {
	case DomainStatusPending, DomainStatusActive:
		return true
	default:
		return false
	}
}
