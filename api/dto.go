/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/wire.go: Recurrence and completion wire shapes
*/
package api

import (
	"github.com/tally/schedule-engine/engine"
)

// =============================================================================
// SECTIONS
// =============================================================================

type SectionDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Order    string `json:"order"`
	Expanded bool   `json:"expanded"`

	// Collapse state from the auto-collapse controller.
	CollapseState string `json:"collapseState"`
}

type CreateSectionRequest struct {
	Name  string `json:"name"`
	Order string `json:"order,omitempty"`
}

// =============================================================================
// TASKS
// =============================================================================

type TaskDTO struct {
	ID             string                 `json:"id"`
	ParentID       string                 `json:"parentId,omitempty"`
	SectionID      string                 `json:"sectionId,omitempty"`
	Name           string                 `json:"name"`
	Recurrence     *engine.RecurrenceJSON `json:"recurrence,omitempty"`
	TimeOfDay      string                 `json:"time,omitempty"`
	Status         string                 `json:"status"`
	CompletionType string                 `json:"completionType"`
	Order          string                 `json:"order"`
	SubtaskIDs     []string               `json:"subtaskIds,omitempty"`
}

type CreateTaskRequest struct {
	ParentID       string                 `json:"parentId,omitempty"`
	SectionID      string                 `json:"sectionId,omitempty"`
	Name           string                 `json:"name"`
	Recurrence     *engine.RecurrenceJSON `json:"recurrence,omitempty"`
	TimeOfDay      string                 `json:"time,omitempty"`
	Status         string                 `json:"status,omitempty"`
	CompletionType string                 `json:"completionType,omitempty"`
	Order          string                 `json:"order,omitempty"`
}

// =============================================================================
// DERIVED VIEWS
// =============================================================================

// TaskViewDTO is a task annotated with its completion state for one day.
type TaskViewDTO struct {
	Task      TaskDTO       `json:"task"`
	Date      string        `json:"date"`
	Scheduled bool          `json:"scheduled"`
	Completed bool          `json:"completed"`
	Outcome   string        `json:"outcome,omitempty"`
	HasRecord bool          `json:"hasRecord"`
	Subtasks  []TaskViewDTO `json:"subtasks,omitempty"`
}

type HistoryCellDTO struct {
	Date        string                 `json:"date"`
	Scheduled   bool                   `json:"scheduled"`
	Completion  *engine.CompletionJSON `json:"completion,omitempty"`
	OffSchedule bool                   `json:"offSchedule,omitempty"`
}

type HistoryRowDTO struct {
	Task  TaskDTO          `json:"task"`
	Cells []HistoryCellDTO `json:"cells"`
}

// =============================================================================
// MUTATIONS
// =============================================================================

// UpsertCompletionRequest carries the fields of a completion write.
// Keys come from the URL.
type UpsertCompletionRequest struct {
	Outcome     string  `json:"outcome,omitempty"`
	Note        *string `json:"note,omitempty"`
	ActualValue *string `json:"actualValue,omitempty"`
}

type ToggleResponse struct {
	TaskID    string `json:"taskId"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

type ScheduledResponse struct {
	TaskID    string `json:"taskId"`
	Date      string `json:"date"`
	Scheduled bool   `json:"scheduled"`
}

type BatchResultDTO struct {
	TaskID string `json:"taskId"`
	Date   string `json:"date"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the uniform error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
