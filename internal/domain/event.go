package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind is the discriminator of a push envelope.
type EventKind string

const (
	EventTaskUpdate   EventKind = "task_update"
	EventTaskComplete EventKind = "task_complete"
	EventTaskError    EventKind = "task_error"
)

// Event is one decoded push envelope. The concrete types are TaskUpdated,
// TaskCompleted, TaskFailed and UnknownEvent.
type Event interface {
	Kind() EventKind
}

type TaskUpdated struct {
	Task TaskPatch
}

type TaskCompleted struct {
	Task TaskPatch
}

// TaskFailed may arrive without a task record; Error carries the text to
// surface to the operator.
type TaskFailed struct {
	Task  *TaskPatch
	Error string
}

// UnknownEvent is an envelope whose type this client does not handle.
type UnknownEvent struct {
	Type string
}

func (TaskUpdated) Kind() EventKind   { return EventTaskUpdate }
func (TaskCompleted) Kind() EventKind { return EventTaskComplete }
func (TaskFailed) Kind() EventKind    { return EventTaskError }
func (e UnknownEvent) Kind() EventKind {
	return EventKind(e.Type)
}

// Envelope is the wire frame exchanged over the live channel.
type Envelope struct {
	Type  string          `json:"type"`
	Task  json.RawMessage `json:"task,omitempty"`
	Error string          `json:"error,omitempty"`
}

// DecodeEvent turns one inbound frame into an Event. Frames that are not
// JSON objects, lack a type, or lack a required task fail with ErrDecode;
// task records without an identifier fail with ErrValidation.
func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: envelope without type", ErrDecode)
	}

	switch EventKind(env.Type) {
	case EventTaskUpdate, EventTaskComplete:
		if isAbsent(env.Task) {
			return nil, fmt.Errorf("%w: %s without task", ErrDecode, env.Type)
		}
		patch, err := DecodeTaskPatch(env.Task)
		if err != nil {
			return nil, err
		}
		if EventKind(env.Type) == EventTaskUpdate {
			return TaskUpdated{Task: patch}, nil
		}
		return TaskCompleted{Task: patch}, nil

	case EventTaskError:
		ev := TaskFailed{Error: env.Error}
		if !isAbsent(env.Task) {
			patch, err := DecodeTaskPatch(env.Task)
			if err != nil {
				return nil, err
			}
			ev.Task = &patch
		}
		return ev, nil
	}

	return UnknownEvent{Type: env.Type}, nil
}
