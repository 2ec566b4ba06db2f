// Package redisqueue implements the job queue on Redis. Jobs are stored as
// hashes and tracked in sorted sets per status; every transition is a Lua
// script so that claims, retries and stalled-job recovery are atomic across
// any number of worker processes.
package redisqueue
