// Package generation defines the boundary to the remote content generator
// and the artifact relocator, and the sequencing helper that turns a topic
// into a series of blog posts: titles first, then per title the article,
// its preview and a relocated illustration.
package generation
