// Package postgres implements the content store interfaces of internal/store
// on PostgreSQL: domains, websites, pages, sections and their content
// blocks. It also owns the embedded goose migrations for that schema.
package postgres
