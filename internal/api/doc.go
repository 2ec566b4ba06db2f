// Package api exposes the job control surface over HTTP: enqueueing website
// and blog generation, polling and cancelling jobs, and queue administration.
// Handlers translate requests into service calls and map service, store and
// queue errors to status codes with client-safe messages.
package api
