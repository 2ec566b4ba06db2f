package testutils

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/stretchr/testify/require"
)

// CreateTestDomain creates a new valid domain for testing.
// It does not save the domain to any store.
func CreateTestDomain(t *testing.T, userID uuid.UUID, name string) *domain.Domain {
	t.Helper()

	d, err := domain.NewDomain(userID, name, "")
	require.NoError(t, err, "Failed to create test domain")
	return d
}

// MustInsertDomain creates a domain owned by userID and saves it in cs.
func MustInsertDomain(t *testing.T, cs *ContentStore, userID uuid.UUID, name string) *domain.Domain {
	t.Helper()

	d := CreateTestDomain(t, userID, name)
	require.NoError(t, cs.Domains.Create(context.Background(), d), "Failed to insert test domain")
	return d
}

// MustInsertReadyWebsite saves a fully generated website for d with a home
// page holding a hero, blogCount blog sections and a footer.
func MustInsertReadyWebsite(t *testing.T, cs *ContentStore, d *domain.Domain, blogCount int) (*domain.Website, *domain.Page) {
	t.Helper()
	ctx := context.Background()

	w, err := domain.NewWebsite(d, domain.TemplateModernNews, false, "seed")
	require.NoError(t, err)
	w.Status = domain.WebsiteStatusReady
	require.NoError(t, cs.Websites.Create(ctx, w))

	page, err := domain.NewHomePage(w.ID, d.Name)
	require.NoError(t, err)
	require.NoError(t, cs.Pages.Create(ctx, page))

	hero, err := domain.NewSection(page.ID, domain.SectionKindHero, domain.HeroOrderIndex, "seed",
		domain.NewBlock(domain.BlockKindTitle, d.Name))
	require.NoError(t, err)
	require.NoError(t, cs.Sections.Create(ctx, hero))

	for i := 1; i <= blogCount; i++ {
		blog, err := domain.NewSection(page.ID, domain.SectionKindBlog, i, "seed",
			domain.NewBlock(domain.BlockKindTitle, "seeded post"),
			domain.NewBlock(domain.BlockKindBody, "body"),
			domain.NewBlock(domain.BlockKindPreview, "body"),
			domain.NewBlock(domain.BlockKindImage, "https://assets.example.test/seed.png"))
		require.NoError(t, err)
		require.NoError(t, cs.Sections.Create(ctx, blog))
	}

	footer, err := domain.NewSection(page.ID, domain.SectionKindFooter, blogCount+1, "seed",
		domain.NewBlock(domain.BlockKindText, d.Name))
	require.NoError(t, err)
	require.NoError(t, cs.Sections.Create(ctx, footer))

	return w, page
}
