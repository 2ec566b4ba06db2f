// Package task manages background job queuing, processing, and lifecycle.
// It defines the job model shared by the API and the workers, the queue
// contracts implemented by the Redis-backed queue, and the Runner that claims
// jobs, enforces per-attempt timeouts and schedules retries. Website and blog
// generation runs here so that it never blocks HTTP request handling and
// survives worker restarts.
package task
