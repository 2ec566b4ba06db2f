package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/sitegen-api/internal/task"
)

// GenerateWebsiteRequest is the body of POST /websites/generate.
type GenerateWebsiteRequest struct {
	DomainID           string `json:"domainId"           validate:"required,uuid"`
	TemplateKey        string `json:"templateKey"        validate:"required,max=64"`
	ContactFormEnabled bool   `json:"contactFormEnabled"`
}

// MoreBlogsRequest is the optional body of POST /websites/{websiteId}/generate-more-blogs.
// The range of Quantity is checked by the job service.
type MoreBlogsRequest struct {
	Quantity *int `json:"quantity,omitempty"`
}

// JobAcceptedResponse is returned when a job has been queued.
type JobAcceptedResponse struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// JobStatusResponse describes a job for status polling.
type JobStatusResponse struct {
	ID           string          `json:"id"`
	Type         task.JobType    `json:"type"`
	Status       task.JobStatus  `json:"status"`
	Progress     int             `json:"progress"`
	Data         json.RawMessage `json:"data"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`
	AttemptsMade int             `json:"attemptsMade"`
	CreatedAt    time.Time       `json:"createdAt"`
	ProcessedAt  *time.Time      `json:"processedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
}

// ClearPendingResponse reports how many queued jobs were removed.
type ClearPendingResponse struct {
	Cleared int `json:"cleared"`
}

// QueueStateResponse acknowledges pause and resume.
type QueueStateResponse struct {
	Paused bool `json:"paused"`
}

func jobToStatusResponse(job *task.Job) JobStatusResponse {
	resp := JobStatusResponse{
		ID:           job.ID,
		Type:         job.Type,
		Status:       job.Status,
		Progress:     job.Progress,
		Data:         job.Payload,
		AttemptsMade: job.AttemptsMade,
		CreatedAt:    job.CreatedAt,
		ProcessedAt:  job.ProcessedAt,
		FinishedAt:   job.FinishedAt,
	}
	// The failure reason of an earlier attempt stays visible while the job retries.
	if job.Status == task.JobStatusCompleted {
		resp.Result = job.Result
	} else {
		resp.FailedReason = job.FailedReason
	}
	return resp
}
