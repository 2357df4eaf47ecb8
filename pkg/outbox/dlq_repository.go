package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	"github.com/angelmondragon/kolo-backend/pkg/pagination"
)

const maxDLQErrorLen = 1024

var (
	// ErrDLQEntryNotFound is returned when no dead letter exists for an event id.
	ErrDLQEntryNotFound = errors.New("dead letter not found")
	// ErrEventAlreadyPublished is returned when replay targets a delivered event.
	ErrEventAlreadyPublished = errors.New("outbox event already published")
)

// DLQFilter narrows a dead-letter listing.
type DLQFilter struct {
	Reason *enums.OutboxDLQErrorReason
	Limit  int
	Cursor *pagination.Cursor
}

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records a terminal failure inside the publisher's transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// List pages dead letters newest first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.Reason != nil {
		query = query.Where("error_reason = ?", *filter.Reason)
	}

	var rows []models.OutboxDLQ
	if err := query.Scopes(pagination.Keyset(filter.Cursor, filter.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, filter.Limit, func(d models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})
	return page, next, nil
}

// Replay puts a dead-lettered event back in the publish queue and drops its
// dead letters. If retention already pruned the outbox row it is restored
// from the dead-letter copy under the same id, so consumers still dedupe it.
func (r *DLQRepository) Replay(ctx context.Context, eventID uuid.UUID) (*models.OutboxEvent, error) {
	var restored models.OutboxEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.OutboxDLQ
		err := tx.Where("event_id = ?", eventID).Order("created_at DESC").First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDLQEntryNotFound
		}
		if err != nil {
			return err
		}

		var current models.OutboxEvent
		err = tx.Where("id = ?", eventID).First(&current).Error
		switch {
		case err == nil && current.Published():
			return ErrEventAlreadyPublished
		case err == nil:
			if err := tx.Model(&current).Updates(map[string]any{"attempt_count": 0, "last_error": nil}).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := models.OutboxEvent{
				ID:            entry.EventID,
				EventType:     entry.EventType,
				AggregateType: entry.AggregateType,
				AggregateID:   entry.AggregateID,
				Payload:       entry.Payload,
				CreatedAt:     time.Now().UTC(),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		default:
			return err
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", eventID).First(&restored).Error
	})
	if err != nil {
		return nil, err
	}
	return &restored, nil
}

func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	return message[:maxDLQErrorLen]
}
