package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("some error"), false},
		{"ErrNotFound", ErrNotFound, true},
		{"wrapped ErrDomainNotFound", fmt.Errorf("load: %w", ErrDomainNotFound), true},
		{"ErrWebsiteNotFound", ErrWebsiteNotFound, true},
		{"ErrPageNotFound", ErrPageNotFound, true},
		{"ErrWebsiteExists", ErrWebsiteExists, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsNotFoundError(tt.err))
		})
	}
}

func TestIsDuplicateError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDuplicateError(ErrWebsiteExists))
	assert.True(t, IsDuplicateError(fmt.Errorf("create: %w", ErrOrderIndexTaken)))
	assert.False(t, IsDuplicateError(ErrWebsiteNotFound))
	assert.False(t, IsDuplicateError(nil))
}
