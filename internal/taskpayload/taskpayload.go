// Package taskpayload defines the wire envelope carrying a full
// model.Task/model.DecisionMetadata pair into the system. spec.md §6's Task
// DB collaborator has no getTask() call of its own, and the task-control
// API that would otherwise push task payloads in is explicitly out of
// scope (spec.md §1); this envelope is the minimal addition needed to make
// cmd/assignerd's worker pool runnable against the claim table alone.
package taskpayload

import (
	"encoding/json"
	"fmt"

	"github.com/gridassign/gridassign/internal/model"
)

// Payload bundles one task's decision input with the caller-supplied
// metadata bundle the assigner.Controller.Assign call requires.
type Payload struct {
	Task     model.Task             `json:"task"`
	Metadata model.DecisionMetadata `json:"metadata"`
}

// Marshal serializes p for storage alongside a Cloud-Task claim row.
func Marshal(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("taskpayload: marshal: %w", err)
	}
	return string(data), nil
}

// Unmarshal decodes a stored payload back into a Payload.
func Unmarshal(data string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Payload{}, fmt.Errorf("taskpayload: unmarshal: %w", err)
	}
	return p, nil
}
