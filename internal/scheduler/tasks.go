// Package scheduler runs the periodic engine cycles on asynq.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskEngineTick fans out per-tenant cycle tasks for every active tenant.
const TaskEngineTick = "engine.tick"

// TaskInsightCycle runs one insight cycle for a single tenant.
const TaskInsightCycle = "engine.insight_cycle"

// TaskProposalCycle runs one proposal cycle for a single tenant.
const TaskProposalCycle = "engine.proposal_cycle"

type TenantCyclePayload struct {
	TenantID string `json:"tenantId"`
}

func NewEngineTickTask() *asynq.Task {
	return asynq.NewTask(TaskEngineTick, nil)
}

func NewInsightCycleTask(payload TenantCyclePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInsightCycle, data), nil
}

func NewProposalCycleTask(payload TenantCyclePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProposalCycle, data), nil
}

func ParseTenantCyclePayload(task *asynq.Task) (TenantCyclePayload, error) {
	var payload TenantCyclePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TenantCyclePayload{}, err
	}
	return payload, nil
}
