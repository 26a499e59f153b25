/*
handlers.go - HTTP API handlers for the scheduling engine

PURPOSE:
  Exposes the recurrence/completion engine via REST. Handles HTTP
  request/response, JSON serialization, and delegates to the engine.
  The engine itself stays a pure library; this package is the
  "external collaborator" that calls into it and renders its results.

ENDPOINTS:
  Sections:
    GET    /api/sections                      List sections
    POST   /api/sections                      Create section
    POST   /api/sections/{id}/toggle          Manual expand/collapse toggle

  Tasks:
    GET    /api/tasks                         List all tasks
    POST   /api/tasks                         Create task (subtasks via parentId)
    DELETE /api/tasks/{id}                    Delete task and its completions
    GET    /api/tasks/{id}/scheduled?date=    Evaluate scheduling for a day

  Views:
    GET    /api/views/today?date=             Today's task list
    GET    /api/views/backlog?date=           Backlog
    GET    /api/views/history?from=&to=       History grid for recurring tasks

  Completions:
    POST   /api/tasks/{id}/toggle?date=       Flip the completed mark
    POST   /api/tasks/{id}/complete-all?date= Complete task + subtasks
    PUT    /api/tasks/{id}/completions/{date} Create/patch an entry
                                              (off-schedule aware;
                                              POST and PATCH accepted)
    DELETE /api/tasks/{id}/completions/{date} Clear an entry
    POST   /api/tasks/{id}/rollover?date=     Mark a missed day rolled over

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Task or record not found
  - 409: Duplicate completion key
  - 422: Operation outside its domain (e.g. rollover off-schedule)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tally/schedule-engine/engine"
	"github.com/tally/schedule-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Tasks are cached
// in an in-memory arena and written through to the store on mutation.
type Handler struct {
	Store *sqlite.Store

	mu          sync.RWMutex
	tasks       *engine.TaskSet
	grace       *engine.GraceSet
	collapse    *engine.CollapseController
	projector   *engine.Projector
	coordinator *engine.Coordinator
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	h := &Handler{
		Store:    store,
		tasks:    engine.NewTaskSet(),
		grace:    engine.NewGraceSet(engine.DefaultGraceWindow),
		collapse: engine.NewCollapseController(engine.DefaultCollapseDebounce),
	}
	h.rebuild()
	return h
}

// LoadTasks loads the task arena from the database and self-heals any
// completion/additional-date pair whose second write never landed
// (e.g. the process died between the completion commit and the rule
// persist). The record is authoritative; the healed rule is written
// back so the repair survives the next restart.
func (h *Handler) LoadTasks(ctx context.Context) error {
	set, err := h.Store.LoadTasks(ctx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = set
	h.rebuild()
	h.reconcileAll(ctx)
	return nil
}

// reconcileAll runs the pair repair for every task carrying a rule,
// over all days up to tomorrow. Future additional dates are left
// alone; their records may not exist yet. Callers hold h.mu.
func (h *Handler) reconcileAll(ctx context.Context) {
	from := engine.NewDay(1970, time.January, 1)
	to := engine.Today().AddDays(1)
	for _, t := range h.tasks.All() {
		if t.Recurrence == nil {
			continue
		}
		changed, err := h.coordinator.Reconcile(ctx, t.ID, from, to)
		if err != nil {
			log.Printf("reconcile: task %s: %v", t.ID, err)
			continue
		}
		if changed {
			if err := h.Store.SaveTaskRecurrence(ctx, t.ID, t.Recurrence); err != nil {
				log.Printf("reconcile: persist healed rule for task %s: %v", t.ID, err)
			}
		}
	}
}

// rebuild rewires the projector and coordinator around the current
// arena. Callers hold h.mu (or are in the constructor).
func (h *Handler) rebuild() {
	h.projector = engine.NewProjector(h.tasks, h.Store, h.grace)
	h.coordinator = engine.NewCoordinator(h.tasks, h.Store, h.grace)
}

// =============================================================================
// SECTION HANDLERS
// =============================================================================

func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := h.Store.ListSections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sections", err)
		return
	}
	dtos := make([]SectionDTO, len(sections))
	for i, s := range sections {
		dtos[i] = SectionDTO{
			ID:            string(s.ID),
			Name:          s.Name,
			Order:         s.Order.String(),
			Expanded:      s.Expanded,
			CollapseState: h.collapse.State(s.ID).String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateSection(w http.ResponseWriter, r *http.Request) {
	var req CreateSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "section name is required", nil)
		return
	}
	sec := engine.Section{
		ID:       engine.SectionID(uuid.NewString()),
		Name:     req.Name,
		Order:    parseOrder(req.Order),
		Expanded: true,
	}
	if err := h.Store.SaveSection(r.Context(), sec); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save section", err)
		return
	}
	writeJSON(w, http.StatusCreated, SectionDTO{
		ID: string(sec.ID), Name: sec.Name, Order: sec.Order.String(),
		Expanded: sec.Expanded, CollapseState: h.collapse.State(sec.ID).String(),
	})
}

// ToggleSection records an explicit user expand/collapse, which pins
// the section against further auto-collapse.
func (h *Handler) ToggleSection(w http.ResponseWriter, r *http.Request) {
	id := engine.SectionID(chi.URLParam(r, "id"))
	h.collapse.OnManualToggle(id)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":    string(id),
		"state": h.collapse.State(id).String(),
	})
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	tasks := h.tasks.All()
	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = taskDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "task name is required", nil)
		return
	}

	recurrence, err := engine.DecodeRecurrence(req.Recurrence)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recurrence", err)
		return
	}

	ct := engine.CompletionType(req.CompletionType)
	if ct == "" {
		ct = engine.CaptureCheckbox
	}
	if !ct.Valid() {
		writeError(w, http.StatusBadRequest, "unknown completion type", nil)
		return
	}
	if ct.Schedulable() && req.ParentID == "" && req.SectionID == "" {
		writeError(w, http.StatusBadRequest, "sectionId is required for non-note tasks", nil)
		return
	}

	status := engine.Status(req.Status)
	if status == "" {
		status = engine.StatusTodo
	}

	t := &engine.Task{
		ID:             engine.TaskID(uuid.NewString()),
		ParentID:       engine.TaskID(req.ParentID),
		SectionID:      engine.SectionID(req.SectionID),
		Name:           req.Name,
		Recurrence:     recurrence,
		TimeOfDay:      req.TimeOfDay,
		Status:         status,
		CompletionType: ct,
		Order:          parseOrder(req.Order),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if t.ParentID != "" && h.tasks.Get(t.ParentID) == nil {
		writeError(w, http.StatusNotFound, "parent task not found", nil)
		return
	}
	if err := h.Store.SaveTask(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save task", err)
		return
	}
	h.tasks.Put(t)
	writeJSON(w, http.StatusCreated, taskDTO(t))
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := engine.TaskID(chi.URLParam(r, "id"))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tasks.Get(id) == nil {
		writeError(w, http.StatusNotFound, "task not found", nil)
		return
	}
	if err := h.Store.DeleteTask(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete task", err)
		return
	}
	for _, sub := range h.tasks.Subtasks(id) {
		h.tasks.Remove(sub.ID)
	}
	h.tasks.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// IsScheduled evaluates scheduling for one task and day.
func (h *Handler) IsScheduled(w http.ResponseWriter, r *http.Request) {
	id := engine.TaskID(chi.URLParam(r, "id"))
	day, ok := dayParam(w, r, "date", true)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	t := h.tasks.Get(id)
	if t == nil {
		writeError(w, http.StatusNotFound, "task not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, ScheduledResponse{
		TaskID:    string(id),
		Date:      day.String(),
		Scheduled: h.projector.Evaluator().IsScheduled(t, day),
	})
}

// =============================================================================
// VIEW HANDLERS
// =============================================================================

func (h *Handler) TodayView(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r, "date", true)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	views, err := h.projector.TodaysTasks(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to derive today's tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, taskViewDTOs(views))
}

func (h *Handler) BacklogView(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r, "date", true)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	views, err := h.projector.Backlog(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to derive backlog", err)
		return
	}
	writeJSON(w, http.StatusOK, taskViewDTOs(views))
}

func (h *Handler) HistoryView(w http.ResponseWriter, r *http.Request) {
	from, ok := dayParam(w, r, "from", false)
	if !ok {
		return
	}
	to, ok := dayParam(w, r, "to", false)
	if !ok {
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not precede from", nil)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	rows, err := h.projector.HistoryRows(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to derive history", err)
		return
	}

	dtos := make([]HistoryRowDTO, len(rows))
	for i, row := range rows {
		dto := HistoryRowDTO{Task: taskDTO(row.Task), Cells: make([]HistoryCellDTO, len(row.Cells))}
		for j, cell := range row.Cells {
			cdto := HistoryCellDTO{
				Date:        cell.Day.String(),
				Scheduled:   cell.Scheduled,
				OffSchedule: cell.OffSchedule,
			}
			if cell.Completion != nil {
				cj := engine.EncodeCompletion(*cell.Completion)
				cdto.Completion = &cj
			}
			dto.Cells[j] = cdto
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COMPLETION HANDLERS
// =============================================================================

func (h *Handler) ToggleCompletion(w http.ResponseWriter, r *http.Request) {
	id := engine.TaskID(chi.URLParam(r, "id"))
	day, ok := dayParam(w, r, "date", true)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	completed, err := h.coordinator.Toggle(r.Context(), id, day)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.notifyCollapse(r.Context(), id, day)
	writeJSON(w, http.StatusOK, ToggleResponse{TaskID: string(id), Date: day.String(), Completed: completed})
}

func (h *Handler) CompleteWithSubtasks(w http.ResponseWriter, r *http.Request) {
	id := engine.TaskID(chi.URLParam(r, "id"))
	day, ok := dayParam(w, r, "date", true)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	results, err := h.coordinator.CompleteWithSubtasks(r.Context(), id, day)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.notifyCollapse(r.Context(), id, day)

	dtos := make([]BatchResultDTO, len(results))
	for i, res := range results {
		dto := BatchResultDTO{TaskID: string(res.Key.TaskID), Date: res.Key.Day.String()}
		if res.Err != nil {
			dto.Error = res.Err.Error()
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertCompletion creates or patches a completion entry. When the day
// is not selected by the task's rule, the write goes through the
// off-schedule path, which also appends the day to the rule's
// additional dates and persists the updated rule.
func (h *Handler) UpsertCompletion(w http.ResponseWriter, r *http.Request) {
	id := engine.TaskID(chi.URLParam(r, "id"))
	day, err := engine.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	var req UpsertCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.tasks.Get(id)
	if t == nil {
		writeError(w, http.StatusNotFound, "task not found", nil)
		return
	}

	patch := engine.CompletionPatch{Note: req.Note, ActualValue: req.ActualValue}
	if req.Outcome != "" {
		outcome := engine.Outcome(req.Outcome)
		patch.Outcome = &outcome
	}

	key := engine.Key{TaskID: id, Day: day}
	has, err := h.Store.HasRecordOnDay(r.Context(), id, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check completion", err)
		return
	}

	switch {
	case has:
		err = h.Store.Update(r.Context(), key, patch)
	case t.Recurrence != nil && !h.projector.Evaluator().IsScheduled(t, day):
		err = h.coordinator.CompleteOffSchedule(r.Context(), id, day, patch)
		if err == nil {
			// Persist the rule with its new additional date. A failure
			// here is healed by reconcileAll on the next load.
			if perr := h.Store.SaveTaskRecurrence(r.Context(), id, t.Recurrence); perr != nil {
				writeError(w, http.StatusInternalServerError, "completion saved, rule persist failed", perr)
				return
			}
		}
	default:
		record := engine.Completion{TaskID: id, Day: day, Outcome: engine.OutcomeCompleted}
		patch.Apply(&record)
		err = h.Store.Create(r.Context(), record)
		if err == nil {
			h.grace.Arm(key)
		}
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	record, err := h.Store.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read completion back", err)
		return
	}
	h.notifyCollapse(r.Context(), id, day)
	writeJSON(w, http.StatusOK, engine.EncodeCompletion(*record))
}

// DeleteCompletion clears an entry. For off-schedule entries the
// matching additional date is removed in the same step.
func (h *Handler) DeleteCompletion(w http.ResponseWriter, r *http.Request) {
	id := engine.TaskID(chi.URLParam(r, "id"))
	day, err := engine.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.tasks.Get(id)
	if t == nil {
		writeError(w, http.StatusNotFound, "task not found", nil)
		return
	}

	if t.Recurrence != nil && t.Recurrence.HasAdditionalDate(day) {
		if err := h.coordinator.RemoveOffSchedule(r.Context(), id, day); err != nil {
			writeEngineError(w, err)
			return
		}
		if perr := h.Store.SaveTaskRecurrence(r.Context(), id, t.Recurrence); perr != nil {
			writeError(w, http.StatusInternalServerError, "completion cleared, rule persist failed", perr)
			return
		}
	} else {
		if err := h.Store.Delete(r.Context(), engine.Key{TaskID: id, Day: day}); err != nil {
			writeEngineError(w, err)
			return
		}
		h.grace.Cancel(engine.Key{TaskID: id, Day: day})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Rollover(w http.ResponseWriter, r *http.Request) {
	id := engine.TaskID(chi.URLParam(r, "id"))
	day, ok := dayParam(w, r, "date", true)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := h.coordinator.Rollover(r.Context(), id, day); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"taskId":  string(id),
		"date":    day.String(),
		"outcome": string(engine.OutcomeRolledOver),
	})
}

// notifyCollapse feeds the section's new visible count to the
// auto-collapse controller after a completion event.
func (h *Handler) notifyCollapse(ctx context.Context, id engine.TaskID, day engine.Day) {
	t := h.tasks.Get(id)
	if t == nil || t.SectionID == "" {
		return
	}
	views, err := h.projector.TodaysTasks(ctx, day)
	if err != nil {
		return
	}
	visible := 0
	for _, v := range views {
		if v.Task.SectionID == t.SectionID && !v.Completed {
			visible++
		}
	}
	h.collapse.OnCompletionEvent(t.SectionID, visible)
}

// =============================================================================
// HELPERS
// =============================================================================

func taskDTO(t *engine.Task) TaskDTO {
	dto := TaskDTO{
		ID:             string(t.ID),
		ParentID:       string(t.ParentID),
		SectionID:      string(t.SectionID),
		Name:           t.Name,
		Recurrence:     engine.EncodeRecurrence(t.Recurrence),
		TimeOfDay:      t.TimeOfDay,
		Status:         string(t.Status),
		CompletionType: string(t.CompletionType),
		Order:          t.Order.String(),
	}
	for _, id := range t.SubtaskIDs {
		dto.SubtaskIDs = append(dto.SubtaskIDs, string(id))
	}
	return dto
}

func taskViewDTOs(views []engine.TaskView) []TaskViewDTO {
	dtos := make([]TaskViewDTO, len(views))
	for i, v := range views {
		dtos[i] = TaskViewDTO{
			Task:      taskDTO(v.Task),
			Date:      v.Day.String(),
			Scheduled: v.Scheduled,
			Completed: v.Completed,
			Outcome:   string(v.Outcome),
			HasRecord: v.HasRecord,
			Subtasks:  taskViewDTOs(v.Subtasks),
		}
	}
	return dtos
}

func parseOrder(s string) decimal.Decimal {
	if s == "" {
		return decimal.NewFromInt(0)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NewFromInt(0)
	}
	return d
}

// dayParam reads a day query parameter. With defaultToday an absent
// value falls back to the current day; otherwise absence is a 400.
func dayParam(w http.ResponseWriter, r *http.Request, name string, defaultToday bool) (engine.Day, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if defaultToday {
			return engine.Today(), true
		}
		writeError(w, http.StatusBadRequest, name+" query parameter is required", nil)
		return engine.Day{}, false
	}
	day, err := engine.ParseDay(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name, err)
		return engine.Day{}, false
	}
	return day, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine error categories onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrTaskNotFound), errors.Is(err, engine.ErrCompletionNotFound):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, engine.ErrDuplicateCompletion):
		writeError(w, http.StatusConflict, "duplicate completion", err)
	case errors.Is(err, engine.ErrInvalidOperation):
		writeError(w, http.StatusUnprocessableEntity, "invalid operation", err)
	case errors.Is(err, engine.ErrInvalidRecurrence):
		writeError(w, http.StatusBadRequest, "invalid recurrence", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
