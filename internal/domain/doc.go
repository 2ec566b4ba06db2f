// Package domain contains the core business entities of the website
// generator: domains, websites and the pages, sections and content blocks
// that generation jobs fill in. It is independent of any storage or
// delivery mechanism.
package domain
