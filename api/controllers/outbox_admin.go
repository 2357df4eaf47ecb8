package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/api/responses"
	"github.com/angelmondragon/kolo-backend/api/validators"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
	"github.com/angelmondragon/kolo-backend/pkg/pagination"
)

// DeadLetters is the operator surface over the outbox DLQ.
type DeadLetters interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, *pagination.Cursor, error)
	Replay(ctx context.Context, eventID uuid.UUID) (*models.OutboxEvent, error)
}

type deadLetterPage struct {
	Items      []models.OutboxDLQ `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// AdminListDeadLetters pages the outbox DLQ, optionally filtered by reason.
func AdminListDeadLetters(dlq DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, _ := pagination.ParseCursor(page.Cursor)
		filter := outbox.DLQFilter{Limit: pagination.NormalizeLimit(page.Limit), Cursor: cursor}
		if raw := strings.TrimSpace(r.URL.Query().Get("reason")); raw != "" {
			reason, err := enums.ParseOutboxDLQErrorReason(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason"))
				return
			}
			filter.Reason = &reason
		}

		rows, next, err := dlq.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		out := deadLetterPage{Items: rows}
		if out.Items == nil {
			out.Items = []models.OutboxDLQ{}
		}
		if next != nil {
			out.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminReplayDeadLetter requeues a dead-lettered event for the publisher.
func AdminReplayDeadLetter(dlq DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}
		eventID, err := uuidParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := dlq.Replay(r.Context(), eventID)
		if errors.Is(err, outbox.ErrDLQEntryNotFound) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found"))
			return
		}
		if errors.Is(err, outbox.ErrEventAlreadyPublished) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event was already published"))
			return
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay dead letter"))
			return
		}
		if logg != nil {
			logg.Info(logg.WithEventID(r.Context(), eventID.String()), "dead letter requeued")
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{
			"event_id":   event.ID,
			"event_type": event.EventType,
			"requeued":   true,
		})
	}
}
