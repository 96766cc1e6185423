package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardWarmup recomputes the home dashboard and refreshes its cache.
	TaskDashboardWarmup = "dashboard:warmup"
)

// DashboardWarmupPayload describes why a warmup was requested; the reason is
// only logged.
type DashboardWarmupPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewDashboardWarmupTask constructs the warmup task.
func NewDashboardWarmupTask(payload DashboardWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(2)), nil
}
