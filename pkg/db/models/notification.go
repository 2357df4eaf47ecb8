package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// Notification is an in-app message for one member. EventID ties it to the
// outbox event that produced it so redelivered events do not fan out twice.
type Notification struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	EventID        *uuid.UUID             `gorm:"column:event_id;type:uuid" json:"-"`
	Type           enums.NotificationType `gorm:"column:type;type:notification_type;not null" json:"type"`
	Title          string                 `gorm:"column:title;not null" json:"title"`
	Message        string                 `gorm:"column:message;not null" json:"message"`
	Link           *string                `gorm:"column:link" json:"link,omitempty"`
	ReadAt         *time.Time             `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ActionRequired bool                   `gorm:"-" json:"action_required"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}

// AfterFind derives fields that are not stored.
func (n *Notification) AfterFind(*gorm.DB) error {
	n.ActionRequired = n.ReadAt == nil && n.Type.NeedsAction()
	return nil
}
