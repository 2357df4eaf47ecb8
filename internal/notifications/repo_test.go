package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kolo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

func TestRepositoryMarkReadScopesToUser(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := uuid.New()

	n := &models.Notification{UserID: owner, Type: enums.NotificationTypeContribution, Title: "t", Message: "m"}
	require.NoError(t, repo.Create(ctx, n))

	res, err := repo.MarkRead(ctx, uuid.New(), n.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = repo.MarkRead(ctx, owner, n.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.Updated)

	res, err = repo.MarkRead(ctx, owner, n.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Updated)
}

func TestRepositoryEventDedupeAndCleanup(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	eventID := uuid.New()
	user := uuid.New()

	exists, err := repo.ExistsForEvent(ctx, eventID)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.CreateBatch(ctx, []models.Notification{
		{UserID: user, EventID: &eventID, Type: enums.NotificationTypeRefundRequested, Title: "a", Message: "a"},
		{UserID: uuid.New(), EventID: &eventID, Type: enums.NotificationTypeRefundRequested, Title: "b", Message: "b"},
	}))
	exists, err = repo.ExistsForEvent(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, exists)

	marked, err := repo.MarkAllRead(ctx, user, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, marked)

	deleted, err := repo.DeleteReadBefore(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.Notification{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}

func TestRepositoryListFiltersAndCounts(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, repo.CreateBatch(ctx, []models.Notification{
		{UserID: user, Type: enums.NotificationTypeWithdrawalRequested, Title: "vote", Message: "m"},
		{UserID: user, Type: enums.NotificationTypeContribution, Title: "paid", Message: "m"},
		{UserID: uuid.New(), Type: enums.NotificationTypeWithdrawalRequested, Title: "other", Message: "m"},
	}))

	unread, err := repo.CountUnread(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	kind := enums.NotificationTypeWithdrawalRequested
	rows, next, err := repo.List(ctx, listNotificationsParams{UserID: user, Limit: 10, Type: &kind})
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, rows, 1)
	assert.Equal(t, "vote", rows[0].Title)
	assert.True(t, rows[0].ActionRequired)

	_, err = repo.MarkAllRead(ctx, user, time.Now().UTC())
	require.NoError(t, err)
	rows, _, err = repo.List(ctx, listNotificationsParams{UserID: user, Limit: 10, Type: &kind})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].ActionRequired)

	unread, err = repo.CountUnread(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, unread)
}
