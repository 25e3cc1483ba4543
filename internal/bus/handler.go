// Package bus implements the action protocol: a request carries an action
// discriminator and a payload, a response is {success:true, ...data} or
// {success:false, error, code, details}. Every surface (CLI, HTTP, tests)
// speaks this protocol; no error crosses the boundary as an opaque crash.
package bus

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

// Request is one action invocation. Minutes stays raw JSON so a
// non-numeric payload is classified as invalid_duration rather than
// failing the whole decode.
type Request struct {
	Action   string                 `json:"action"`
	Domain   string                 `json:"domain,omitempty"`
	Minutes  json.RawMessage        `json:"minutes,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	ID       string                 `json:"id,omitempty"`
	Enabled  *bool                  `json:"enabled,omitempty"`
	Schedule *usecase.ScheduleInput `json:"schedule,omitempty"`
}

// Response is the JSON-shaped reply.
type Response map[string]any

// Success reports whether the response carries a success payload.
func (r Response) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// Code returns the failure kind, or "" on success.
func (r Response) Code() domain.ErrorKind {
	switch v := r["code"].(type) {
	case domain.ErrorKind:
		return v
	case string:
		return domain.ErrorKind(v)
	}
	return ""
}

// Handler dispatches actions to the core components.
type Handler struct {
	blocks    *usecase.BlockList
	unblocker *usecase.Unblocker
	scheduler *usecase.Scheduler
	stats     *usecase.StatsRecorder
	logger    *zap.Logger
}

// NewHandler creates an action dispatcher.
func NewHandler(
	blocks *usecase.BlockList,
	unblocker *usecase.Unblocker,
	scheduler *usecase.Scheduler,
	stats *usecase.StatsRecorder,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		blocks:    blocks,
		unblocker: unblocker,
		scheduler: scheduler,
		stats:     stats,
		logger:    logger,
	}
}

// Handle runs one action and always produces a response: a success
// payload or an error response, never a panic and never silence.
func (h *Handler) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("action handler panicked",
				zap.String("action", req.Action),
				zap.Any("panic", r))
			resp = h.fail(domain.Ef(domain.ErrUnknown, "panic in %q handler: %v", req.Action, r))
		}
	}()

	switch req.Action {
	case "addBlock":
		return h.addBlock(ctx, req)
	case "removeBlock":
		return h.removeBlock(ctx, req)
	case "getBlocks":
		return h.getBlocks(ctx)
	case "requestUnblock":
		return h.requestUnblock(ctx, req)
	case "cancelUnblock":
		return h.cancelUnblock(ctx, req)
	case "confirmUnblock":
		return h.confirmUnblock(ctx, req)
	case "getPendingUnblocks":
		return h.getPendingUnblocks(ctx)
	case "getStats":
		return h.getStats(ctx)
	case "addSchedule":
		return h.addSchedule(ctx, req)
	case "deleteSchedule":
		return h.deleteSchedule(ctx, req)
	case "toggleSchedule":
		return h.toggleSchedule(ctx, req)
	case "getSchedules":
		return h.getSchedules(ctx)
	default:
		return h.fail(domain.Ef(domain.ErrUnknownAction, "unrecognized action %q", req.Action))
	}
}

func (h *Handler) addBlock(ctx context.Context, req Request) Response {
	minutes, err := parseMinutes(req.Minutes)
	if err != nil {
		return h.fail(err)
	}
	reason := domain.BlockReason(req.Reason)
	d, err := h.blocks.Add(ctx, req.Domain, minutes, reason)
	if err != nil {
		return h.fail(err)
	}
	return ok(Response{"domain": d})
}

func (h *Handler) removeBlock(ctx context.Context, req Request) Response {
	d, err := h.blocks.Remove(ctx, req.Domain)
	if err != nil {
		return h.fail(err)
	}
	return ok(Response{"domain": d})
}

func (h *Handler) getBlocks(ctx context.Context) Response {
	blocks, err := h.blocks.GetAll(ctx)
	if err != nil {
		return h.fail(err)
	}
	return ok(Response{"blocks": blocks})
}

func (h *Handler) requestUnblock(ctx context.Context, req Request) Response {
	d, p, err := h.unblocker.Request(ctx, req.Domain)
	if err != nil {
		return h.fail(err)
	}
	return ok(Response{
		"domain":        d,
		"waitTime":      (p.UnlocksAt - p.RequestedAt) / 1000,
		"unlocksAt":     p.UnlocksAt,
		"attemptNumber": p.AttemptNumber,
	})
}

func (h *Handler) cancelUnblock(ctx context.Context, req Request) Response {
	d, err := h.unblocker.Cancel(ctx, req.Domain)
	if err != nil {
		return h.fail(err)
	}
	return ok(Response{"domain": d})
}

func (h *Handler) confirmUnblock(ctx context.Context, req Request) Response {
	d, err := h.unblocker.Confirm(ctx, req.Domain)
	if err != nil {
		return h.fail(err)
	}
	return ok(Response{"domain": d})
}

func (h *Handler) getPendingUnblocks(ctx context.Context) Response {
	pending, err := h.unblocker.GetPending(ctx)
	if err != nil {
		return h.fail(err)
	}
	return ok(Response{"pending": pending})
}

func (h *Handler) getStats(ctx context.Context) Response {
	stats, err := h.stats.Get(ctx)
	if err != nil {
		return h.fail(err)
	}
	summary, err := h.stats.Summary(ctx, 5)
	if err != nil {
		return h.fail(err)
	}
	return ok(Response{"stats": stats, "summary": summary})
}

func (h *Handler) addSchedule(ctx context.Context, req Request) Response {
	if req.Schedule == nil {
		return h.fail(domain.E(domain.ErrScheduleNoDomains, "no schedule supplied"))
	}
	sched, err := h.scheduler.Add(ctx, *req.Schedule)
	if err != nil {
		return h.fail(err)
	}
	return ok(Response{"id": sched.ID, "schedule": sched})
}

func (h *Handler) deleteSchedule(ctx context.Context, req Request) Response {
	if err := h.scheduler.Delete(ctx, req.ID); err != nil {
		return h.fail(err)
	}
	return ok(Response{"id": req.ID})
}

func (h *Handler) toggleSchedule(ctx context.Context, req Request) Response {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if err := h.scheduler.Toggle(ctx, req.ID, enabled); err != nil {
		return h.fail(err)
	}
	return ok(Response{"id": req.ID, "enabled": enabled})
}

func (h *Handler) getSchedules(ctx context.Context) Response {
	schedules, err := h.scheduler.GetAll(ctx)
	if err != nil {
		return h.fail(err)
	}
	if schedules == nil {
		schedules = []domain.Schedule{}
	}
	return ok(Response{"schedules": schedules})
}

func ok(data Response) Response {
	resp := Response{"success": true}
	for k, v := range data {
		resp[k] = v
	}
	return resp
}

// fail converts any error into the protocol failure shape. Storage and
// unknown errors are logged here with full diagnostics; the response
// carries only the stable user-visible message for the kind.
func (h *Handler) fail(err error) Response {
	de, ok := domain.AsError(err)
	if !ok {
		de = domain.E(domain.ErrUnknown, err.Error()).WithCause(err)
	}

	if de.Kind.Storage() || de.Kind == domain.ErrUnknown {
		h.logger.Error("action failed",
			zap.String("code", string(de.Kind)),
			zap.Error(err))
	}

	resp := Response{
		"success": false,
		"error":   userMessage(de.Kind),
		"code":    de.Kind,
	}
	if len(de.Details) > 0 {
		resp["details"] = de.Details
	}
	return resp
}

// userMessage maps each failure kind to exactly one stable, non-technical
// message.
func userMessage(kind domain.ErrorKind) string {
	switch kind {
	case domain.ErrInvalidDomain:
		return "That doesn't look like a valid website address."
	case domain.ErrInvalidDuration:
		return "Please enter a number of minutes."
	case domain.ErrDurationTooShort:
		return "Blocks must last at least 1 minute."
	case domain.ErrDurationTooLong:
		return "Blocks can last at most 8 hours."
	case domain.ErrScheduleNoDomains:
		return "Add at least one website to the schedule."
	case domain.ErrScheduleNoDays:
		return "Pick at least one day for the schedule."
	case domain.ErrScheduleInvalidTime:
		return "The schedule start time must be before its end time."
	case domain.ErrBlockNotFound:
		return "That website isn't currently blocked."
	case domain.ErrInvalidSchedule:
		return "That schedule no longer exists."
	case domain.ErrUnblockPending:
		return "An unblock request is already waiting for this website."
	case domain.ErrUnblockDelayNotComplete:
		return "The waiting period isn't over yet."
	case domain.ErrNoPendingUnblock:
		return "There's no unblock request waiting for this website."
	case domain.ErrReadFailed, domain.ErrWriteFailed, domain.ErrLockTimeout:
		return "Couldn't reach saved data. Please try again."
	case domain.ErrUnknownAction:
		return "That request isn't recognized."
	default:
		return "Something went wrong. Please try again."
	}
}

// parseMinutes coerces the raw minutes payload to an integer. Anything
// non-numeric (or fractional) is invalid_duration; range checks happen in
// the registry so too-short and too-long keep their distinct kinds.
func parseMinutes(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, domain.E(domain.ErrInvalidDuration, "minutes missing")
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != math.Trunc(f) {
			return 0, domain.E(domain.ErrInvalidDuration, "minutes must be a whole number")
		}
		return int(f), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, domain.Ef(domain.ErrInvalidDuration, "minutes %q is not a number", s)
		}
		return n, nil
	}

	return 0, domain.E(domain.ErrInvalidDuration, "minutes is not a number")
}
