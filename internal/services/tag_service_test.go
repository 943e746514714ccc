package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tresorerie/internal/core"
	"tresorerie/internal/storage"
	"tresorerie/internal/storage/memory"
)

func TestTagService_DeleteClearsTransactions(t *testing.T) {
	for name, gw := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := uuid.New()
			svc := NewTagService(gw)
			tag, err := svc.Create(ctx, owner, " Vacation ")
			require.NoError(t, err)
			assert.Equal(t, "Vacation", tag.Name)

			tx := mustTransaction(t, gw, owner, "2024-07-01", "Travel", core.Expense, 5000)
			tx.Tag = "Vacation"
			_, err = gw.UpdateTransaction(ctx, tx)
			require.NoError(t, err)
			untagged := mustTransaction(t, gw, owner, "2024-07-02", "Travel", core.Expense, 700)

			report, err := svc.Delete(ctx, owner, tag.ID)

			require.NoError(t, err)
			assert.Equal(t, int64(1), report.Counts[storage.Transactions])
			tags, _ := svc.List(ctx, owner)
			assert.Empty(t, tags)

			got, err := gw.GetTransaction(ctx, owner, tx.ID)
			require.NoError(t, err)
			assert.Empty(t, got.Tag)
			_, err = gw.GetTransaction(ctx, owner, untagged.ID)
			assert.NoError(t, err)
		})
	}
}

func TestTagService_DeleteWarnsWhenClearingFails(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	owner := uuid.New()
	svc := NewTagService(&failingGateway{Gateway: inner, failClearTag: true})
	tag, err := svc.Create(ctx, owner, "Work")
	require.NoError(t, err)

	report, err := svc.Delete(ctx, owner, tag.ID)

	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	_, err = inner.GetTag(ctx, owner, tag.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTagService_CreateRejectsBlankAndDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := NewTagService(memory.New())
	owner := uuid.New()

	_, err := svc.Create(ctx, owner, "   ")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.Create(ctx, owner, "Work")
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner, "Work")
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestTagService_DeleteOtherOwner(t *testing.T) {
	ctx := context.Background()
	svc := NewTagService(memory.New())
	tag, err := svc.Create(ctx, uuid.New(), "Work")
	require.NoError(t, err)

	_, err = svc.Delete(ctx, uuid.New(), tag.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
