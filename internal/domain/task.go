package domain

import (
	"encoding/json"
	"fmt"
)

// TaskPatch is a partial task record. Nil fields were absent on the wire
// and are left untouched when the patch is applied.
type TaskPatch struct {
	ID          string
	URL         *string
	Description *string
	Status      *TaskStatus
	CreatedAt   *Timestamp
	UpdatedAt   *Timestamp
	Config      json.RawMessage
	ResultsID   *string
	TemplateID  *string
	Metadata    JSONB
}

type wireTask struct {
	MongoID     json.RawMessage `json:"_id"`
	ID          json.RawMessage `json:"id"`
	OID         json.RawMessage `json:"$oid"`
	URL         *string         `json:"url"`
	Description *string         `json:"description"`
	Status      *TaskStatus     `json:"status"`
	CreatedAt   *Timestamp      `json:"created_at"`
	UpdatedAt   *Timestamp      `json:"updated_at"`
	Config      json.RawMessage `json:"config"`
	ResultsID   *string         `json:"results_id"`
	TemplateID  *string         `json:"template_id"`
	Metadata    JSONB           `json:"metadata"`
}

// DecodeTaskPatch decodes one wire task record and canonicalizes its id.
// Records without a usable identifier fail with ErrValidation.
func DecodeTaskPatch(data []byte) (TaskPatch, error) {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return TaskPatch{}, fmt.Errorf("%w: task record: %w", ErrDecode, err)
	}

	id, err := resolveTaskID(w.MongoID, w.ID, w.OID)
	if err != nil {
		return TaskPatch{}, err
	}

	p := TaskPatch{
		ID:          id,
		URL:         w.URL,
		Description: w.Description,
		Status:      w.Status,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
		ResultsID:   w.ResultsID,
		TemplateID:  w.TemplateID,
		Metadata:    w.Metadata,
	}
	if !isAbsent(w.Config) {
		p.Config = w.Config
	}
	return p, nil
}

func (p *TaskPatch) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeTaskPatch(data)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// ApplyTo shallow-overwrites the fields present in p onto t.
func (p TaskPatch) ApplyTo(t *Task) {
	t.ID = p.ID
	if p.URL != nil {
		t.URL = *p.URL
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.CreatedAt != nil {
		t.CreatedAt = *p.CreatedAt
	}
	if p.UpdatedAt != nil {
		ts := *p.UpdatedAt
		t.UpdatedAt = &ts
	}
	if p.Config != nil {
		t.Config = append(json.RawMessage(nil), p.Config...)
	}
	if p.ResultsID != nil {
		v := *p.ResultsID
		t.ResultsID = &v
	}
	if p.TemplateID != nil {
		v := *p.TemplateID
		t.TemplateID = &v
	}
	if p.Metadata != nil {
		t.Metadata = p.Metadata.Clone()
	}
}

// Task builds a full snapshot from the patch; absent fields keep their zero
// value.
func (p TaskPatch) Task() Task {
	t := Task{Metadata: JSONB{}}
	p.ApplyTo(&t)
	return t
}
