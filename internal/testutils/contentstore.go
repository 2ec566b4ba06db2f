package testutils

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/phrazzld/sitegen-api/internal/store"
)

// ContentStore is an in-memory implementation of the content stores. It
// enforces the same constraints as the database schema: one website per
// domain, unique order index per page and cascading deletes from website
// downward.
//
// The hook fields let tests inject failures or interleavings; they run with
// the store unlocked, before the write is applied.
type ContentStore struct {
	Domains  *MemoryDomainStore
	Websites *MemoryWebsiteStore
	Pages    *MemoryPageStore
	Sections *MemorySectionStore

	// BeforeWebsiteCreate runs before each website insert.
	BeforeWebsiteCreate func(ctx context.Context, w *domain.Website) error
	// BeforeSectionCreate runs before each section insert.
	BeforeSectionCreate func(ctx context.Context, s *domain.Section) error

	mu       sync.Mutex
	domains  map[uuid.UUID]domain.Domain
	websites map[uuid.UUID]domain.Website
	pages    map[uuid.UUID]domain.Page
	sections map[uuid.UUID]domain.Section
}

// NewContentStore creates an empty ContentStore.
func NewContentStore() *ContentStore {
	cs := &ContentStore{
		domains:  make(map[uuid.UUID]domain.Domain),
		websites: make(map[uuid.UUID]domain.Website),
		pages:    make(map[uuid.UUID]domain.Page),
		sections: make(map[uuid.UUID]domain.Section),
	}
	cs.Domains = &MemoryDomainStore{cs: cs}
	cs.Websites = &MemoryWebsiteStore{cs: cs}
	cs.Pages = &MemoryPageStore{cs: cs}
	cs.Sections = &MemorySectionStore{cs: cs}
	return cs
}

// DeleteDomain removes a domain and everything generated for it.
func (cs *ContentStore) DeleteDomain(id uuid.UUID) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.domains, id)
	cs.deleteWebsiteLocked(id)
}

// WebsiteCount returns the number of stored websites.
func (cs *ContentStore) WebsiteCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.websites)
}

// SectionCount returns the number of stored sections across all pages.
func (cs *ContentStore) SectionCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.sections)
}

func (cs *ContentStore) deleteWebsiteLocked(domainID uuid.UUID) bool {
	deleted := false
	for wid, w := range cs.websites {
		if w.DomainID != domainID {
			continue
		}
		deleted = true
		delete(cs.websites, wid)
		for pid, p := range cs.pages {
			if p.WebsiteID != wid {
				continue
			}
			delete(cs.pages, pid)
			for sid, s := range cs.sections {
				if s.PageID == pid {
					delete(cs.sections, sid)
				}
			}
		}
	}
	return deleted
}

// MemoryDomainStore implements store.DomainStore.
type MemoryDomainStore struct{ cs *ContentStore }

var _ store.DomainStore = (*MemoryDomainStore)(nil)

// Create implements store.DomainStore.
func (s *MemoryDomainStore) Create(ctx context.Context, d *domain.Domain) error {
	if err := d.Validate(); err != nil {
		return store.ErrInvalidEntity
	}
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	if _, ok := s.cs.domains[d.ID]; ok {
		return store.ErrDuplicate
	}
	s.cs.domains[d.ID] = *d
	return nil
}

// GetByID implements store.DomainStore.
func (s *MemoryDomainStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Domain, error) {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	d, ok := s.cs.domains[id]
	if !ok {
		return nil, store.ErrDomainNotFound
	}
	return &d, nil
}

// UpdateStatus implements store.DomainStore.
func (s *MemoryDomainStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.DomainStatus) error {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	d, ok := s.cs.domains[id]
	if !ok {
		return store.ErrDomainNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	s.cs.domains[id] = d
	return nil
}

// MemoryWebsiteStore implements store.WebsiteStore.
type MemoryWebsiteStore struct{ cs *ContentStore }

var _ store.WebsiteStore = (*MemoryWebsiteStore)(nil)

// Create implements store.WebsiteStore.
func (s *MemoryWebsiteStore) Create(ctx context.Context, w *domain.Website) error {
	if hook := s.cs.BeforeWebsiteCreate; hook != nil {
		if err := hook(ctx, w); err != nil {
			return err
		}
	}
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	if _, ok := s.cs.domains[w.DomainID]; !ok {
		return store.ErrInvalidEntity
	}
	for _, existing := range s.cs.websites {
		if existing.DomainID == w.DomainID {
			return store.ErrWebsiteExists
		}
	}
	s.cs.websites[w.ID] = *w
	return nil
}

// GetByID implements store.WebsiteStore.
func (s *MemoryWebsiteStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Website, error) {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	w, ok := s.cs.websites[id]
	if !ok {
		return nil, store.ErrWebsiteNotFound
	}
	return &w, nil
}

// GetByDomainID implements store.WebsiteStore.
func (s *MemoryWebsiteStore) GetByDomainID(ctx context.Context, domainID uuid.UUID) (*domain.Website, error) {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	for _, w := range s.cs.websites {
		if w.DomainID == domainID {
			return &w, nil
		}
	}
	return nil, store.ErrWebsiteNotFound
}

// MarkReady implements store.WebsiteStore.
func (s *MemoryWebsiteStore) MarkReady(ctx context.Context, id uuid.UUID) error {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	w, ok := s.cs.websites[id]
	if !ok {
		return store.ErrWebsiteNotFound
	}
	w.Status = domain.WebsiteStatusReady
	w.UpdatedAt = time.Now().UTC()
	s.cs.websites[id] = w
	return nil
}

// DeleteGenerating implements store.WebsiteStore.
func (s *MemoryWebsiteStore) DeleteGenerating(ctx context.Context, domainID uuid.UUID, jobID string) (bool, error) {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	for _, w := range s.cs.websites {
		if w.DomainID == domainID {
			if w.Status != domain.WebsiteStatusGenerating || w.GenerationJobID != jobID {
				return false, nil
			}
			return s.cs.deleteWebsiteLocked(domainID), nil
		}
	}
	return false, nil
}

// MemoryPageStore implements store.PageStore.
type MemoryPageStore struct{ cs *ContentStore }

var _ store.PageStore = (*MemoryPageStore)(nil)

// Create implements store.PageStore.
func (s *MemoryPageStore) Create(ctx context.Context, p *domain.Page) error {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	if _, ok := s.cs.websites[p.WebsiteID]; !ok {
		return store.ErrInvalidEntity
	}
	for _, existing := range s.cs.pages {
		if existing.WebsiteID == p.WebsiteID && existing.Slug == p.Slug {
			return store.ErrDuplicate
		}
	}
	s.cs.pages[p.ID] = *p
	return nil
}

// GetBySlug implements store.PageStore.
func (s *MemoryPageStore) GetBySlug(ctx context.Context, websiteID uuid.UUID, slug string) (*domain.Page, error) {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	for _, p := range s.cs.pages {
		if p.WebsiteID == websiteID && p.Slug == slug {
			return &p, nil
		}
	}
	return nil, store.ErrPageNotFound
}

// MemorySectionStore implements store.SectionStore.
type MemorySectionStore struct{ cs *ContentStore }

var _ store.SectionStore = (*MemorySectionStore)(nil)

// Create implements store.SectionStore.
func (s *MemorySectionStore) Create(ctx context.Context, sec *domain.Section) error {
	if hook := s.cs.BeforeSectionCreate; hook != nil {
		if err := hook(ctx, sec); err != nil {
			return err
		}
	}
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	if _, ok := s.cs.pages[sec.PageID]; !ok {
		return store.ErrInvalidEntity
	}
	for _, existing := range s.cs.sections {
		if existing.PageID == sec.PageID && existing.OrderIndex == sec.OrderIndex {
			return store.ErrOrderIndexTaken
		}
	}
	s.cs.sections[sec.ID] = copySection(sec)
	return nil
}

// ListByPage implements store.SectionStore.
func (s *MemorySectionStore) ListByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.Section, error) {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	var out []*domain.Section
	for _, sec := range s.cs.sections {
		if sec.PageID != pageID {
			continue
		}
		c := copySection(&sec)
		sort.Slice(c.Blocks, func(i, j int) bool { return c.Blocks[i].Position < c.Blocks[j].Position })
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

// MaxContentOrderIndex implements store.SectionStore.
func (s *MemorySectionStore) MaxContentOrderIndex(ctx context.Context, pageID uuid.UUID) (int, error) {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	highest := store.NoSections
	for _, sec := range s.cs.sections {
		if sec.PageID == pageID && sec.Kind != domain.SectionKindFooter && sec.OrderIndex > highest {
			highest = sec.OrderIndex
		}
	}
	return highest, nil
}

// MoveFooter implements store.SectionStore.
func (s *MemorySectionStore) MoveFooter(ctx context.Context, pageID uuid.UUID, orderIndex int) error {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	var footer *domain.Section
	for id, sec := range s.cs.sections {
		if sec.PageID != pageID {
			continue
		}
		if sec.Kind == domain.SectionKindFooter {
			f := s.cs.sections[id]
			footer = &f
			continue
		}
		if sec.OrderIndex == orderIndex {
			return store.ErrOrderIndexTaken
		}
	}
	if footer == nil {
		return nil
	}
	footer.OrderIndex = orderIndex
	s.cs.sections[footer.ID] = *footer
	return nil
}

// DeleteByJob implements store.SectionStore.
func (s *MemorySectionStore) DeleteByJob(ctx context.Context, pageID uuid.UUID, jobID string) (int, error) {
	s.cs.mu.Lock()
	defer s.cs.mu.Unlock()
	n := 0
	for id, sec := range s.cs.sections {
		if sec.PageID == pageID && sec.GenerationJobID == jobID && sec.Kind != domain.SectionKindFooter {
			delete(s.cs.sections, id)
			n++
		}
	}
	return n, nil
}

func copySection(sec *domain.Section) domain.Section {
	c := *sec
	c.Blocks = make([]*domain.ContentBlock, 0, len(sec.Blocks))
	for _, b := range sec.Blocks {
		cb := *b
		c.Blocks = append(c.Blocks, &cb)
	}
	return c
}
