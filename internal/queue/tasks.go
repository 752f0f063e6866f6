package queue

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/rotisserie/eris"
)

// TaskCRMSync pushes a qualifying lead into the CRM.
const TaskCRMSync = "leads.crm_sync"

// CRMSyncPayload identifies the score that qualified a company for CRM sync.
type CRMSyncPayload struct {
	CompanyID   string `json:"companyId"`
	LeadScoreID string `json:"leadScoreId"`
	TotalScore  int    `json:"totalScore"`
	Grade       string `json:"grade"`
	Variant     string `json:"variant"`
}

// NewCRMSyncTask builds a CRM sync task for payload.
func NewCRMSyncTask(payload CRMSyncPayload) (*asynq.Task, error) {
	if payload.CompanyID == "" || payload.LeadScoreID == "" {
		return nil, eris.New("queue: crm sync payload needs company and lead score ids")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "queue: marshal crm sync payload")
	}
	return asynq.NewTask(TaskCRMSync, data), nil
}

// ParseCRMSyncPayload decodes the payload of a CRM sync task.
func ParseCRMSyncPayload(task *asynq.Task) (CRMSyncPayload, error) {
	var payload CRMSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CRMSyncPayload{}, eris.Wrap(err, "queue: unmarshal crm sync payload")
	}
	if payload.CompanyID == "" {
		return CRMSyncPayload{}, eris.New("queue: crm sync payload has no company id")
	}
	return payload, nil
}
