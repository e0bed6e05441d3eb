package auditapi

import "time"

type SubmitTaskRequest struct {
	Owner      string `json:"owner"`
	Role       string `json:"role,omitempty"`
	Tier       int    `json:"tier,omitempty"`
	PayloadRef string `json:"payload_ref"`
}

type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type TaskRecord struct {
	ID          string     `json:"id"`
	Owner       string     `json:"owner"`
	Tier        int        `json:"tier"`
	PayloadRef  string     `json:"payload_ref"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

type StartTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type CancelTaskResponse struct {
	Cancelled bool `json:"cancelled"`
}

type CompleteTaskRequest struct {
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

type CompleteTaskResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

type RunningEntry struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	Tier       int       `json:"tier"`
	StartedAt  time.Time `json:"started_at"`
	ElapsedSec int64     `json:"elapsed_sec"`
}

type QueuedEntry struct {
	ID               string `json:"id"`
	Owner            string `json:"owner"`
	Tier             int    `json:"tier"`
	Rank             int    `json:"rank"`
	WaitedSec        int64  `json:"waited_sec"`
	EstimatedWaitSec int64  `json:"estimated_wait_sec"`
}

type QueueStatusResponse struct {
	Capacity    int            `json:"capacity"`
	FreeSlots   int            `json:"free_slots"`
	Halted      bool           `json:"halted,omitempty"`
	QueuedTotal int            `json:"queued_total"`
	Running     []RunningEntry `json:"running"`
	Queued      []QueuedEntry  `json:"queued"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type OwnerStatusResponse struct {
	Owner            string `json:"owner"`
	State            string `json:"state"`
	TaskID           string `json:"task_id,omitempty"`
	ElapsedSec       int64  `json:"elapsed_sec,omitempty"`
	Rank             int    `json:"rank,omitempty"`
	EstimatedWaitSec int64  `json:"estimated_wait_sec,omitempty"`
}

type OwnerTasksResponse struct {
	Owner string       `json:"owner"`
	Tasks []TaskRecord `json:"tasks"`
}

type EventRecord struct {
	Type       string    `json:"type"`
	TaskID     string    `json:"task_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail"`
}

type EventsResponse struct {
	Events []EventRecord `json:"events"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
