// Package testutils provides shared fixtures for package tests: an in-memory
// content store that enforces the database constraints, helpers that seed
// domains and generated websites into it, and HTTP assertion helpers for
// handler tests.
package testutils
