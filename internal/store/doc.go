// Package store defines the persistence interfaces of the content store:
// domains, websites, pages, sections and content blocks. Implementations
// live under internal/platform.
package store
