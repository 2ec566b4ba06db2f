// Package events carries job lifecycle notifications from the job runner to
// interested subscribers, such as metrics and audit logging, without those
// subscribers depending on the runner.
package events
