package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashrajoria/commerce-core/services/order-service/models"
)

func TestMemoryOrderRepository_TransitionIsConditional(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()
	order := &models.Order{ID: uuid.New(), UserID: "u1", Status: models.StatusPendingPayment}
	require.NoError(t, repo.Create(ctx, order))

	ok, err := repo.Transition(ctx, order.ID, models.StatusPendingPayment, models.StatusExpired, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(ctx, order.ID, models.StatusPendingPayment, models.StatusPaid, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)
	assert.NotNil(t, stored.CanceledAt)
	assert.Nil(t, stored.CompletedAt)

	_, err = repo.Transition(ctx, uuid.New(), models.StatusPendingPayment, models.StatusPaid, time.Now())
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}
