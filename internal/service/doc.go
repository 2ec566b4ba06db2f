// Package service contains the job control use cases behind the HTTP API.
//
// JobService validates generation requests against the content store,
// checks ownership and hands accepted jobs to the task queue. It never runs
// generation itself; that happens in the worker process that drains the
// queue. Queue administration (pause, resume, clear pending, stats) is a thin
// pass-through gated by the API layer.
package service
