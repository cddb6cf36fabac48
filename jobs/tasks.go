package jobs

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCapabilitySync seeds default role capability grants.
	TaskCapabilitySync = "capability:sync"
)

// CapabilitySyncPayload records why a synchronization was requested.
type CapabilitySyncPayload struct {
	Reason string `json:"reason"`
}

// NewCapabilitySyncTask constructs a capability synchronization task.
func NewCapabilitySyncTask(reason string) (*asynq.Task, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual"
	}
	data, err := json.Marshal(CapabilitySyncPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCapabilitySync, data, asynq.Queue(QueueDefault)), nil
}
