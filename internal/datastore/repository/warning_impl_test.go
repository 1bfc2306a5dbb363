package repository

import (
	"testing"

	"github.com/regwatch/regwatch/internal/datastore/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWarning(entityID, ruleID uint, dedupKey string) *entities.PreventiveWarning {
	return &entities.PreventiveWarning{
		EntityID: entityID,
		RuleID:   ruleID,
		Message:  "compliance score approaching threshold",
		DedupKey: dedupKey,
	}
}

func TestWarningRepository_CreateDeduplicates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWarningRepository(db)
	ctx := t.Context()

	warning := newWarning(7, 1, "e7|r1|mcompliance_score")
	require.NoError(t, repo.CreateWarning(ctx, warning))
	assert.Equal(t, entities.WarningStatusPending, warning.Status)

	dup := newWarning(7, 1, "e7|r1|mcompliance_score")
	assert.ErrorIs(t, repo.CreateWarning(ctx, dup), ErrDuplicateAlert)

	// Dismissing the pending warning releases the key.
	_, err := repo.SetStatus(ctx, warning.ID, entities.WarningStatusDismissed)
	require.NoError(t, err)
	require.NoError(t, repo.CreateWarning(ctx, dup))
}

func TestWarningRepository_SetStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWarningRepository(db)
	ctx := t.Context()

	warning := newWarning(2, 1, "e2|r1|mcompliance_score")
	require.NoError(t, repo.CreateWarning(ctx, warning))

	acked, err := repo.SetStatus(ctx, warning.ID, entities.WarningStatusAcknowledged)
	require.NoError(t, err)
	assert.Equal(t, entities.WarningStatusAcknowledged, acked.Status)

	// Same-status repeat is a no-op success.
	_, err = repo.SetStatus(ctx, warning.ID, entities.WarningStatusAcknowledged)
	require.NoError(t, err)

	// Cross-terminal transitions are rejected.
	_, err = repo.SetStatus(ctx, warning.ID, entities.WarningStatusDismissed)
	assert.ErrorIs(t, err, ErrAlertResolved)

	_, err = repo.SetStatus(ctx, 9999, entities.WarningStatusAcknowledged)
	assert.ErrorIs(t, err, ErrWarningNotFound)

	_, err = repo.SetStatus(ctx, warning.ID, "pending")
	assert.Error(t, err)
}

func TestWarningRepository_OpenDedupKeys(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWarningRepository(db)
	ctx := t.Context()

	w1 := newWarning(1, 1, "e1|r1|mcompliance_score")
	w2 := newWarning(2, 1, "e2|r1|mcompliance_score")
	w3 := newWarning(3, 2, "e3|r2|mtraining_hours")
	for _, w := range []*entities.PreventiveWarning{w1, w2, w3} {
		require.NoError(t, repo.CreateWarning(ctx, w))
	}
	_, err := repo.SetStatus(ctx, w2.ID, entities.WarningStatusDismissed)
	require.NoError(t, err)

	keys, err := repo.OpenDedupKeys(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
	assert.Contains(t, keys, "e1|r1|mcompliance_score")
}

func TestWarningRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWarningRepository(db)
	ctx := t.Context()

	for i := uint(1); i <= 3; i++ {
		w := newWarning(i, 1, "e"+string(rune('0'+i))+"|r1|mcompliance_score")
		require.NoError(t, repo.CreateWarning(ctx, w))
	}

	items, total, err := repo.ListWarnings(ctx, WarningFilter{RuleID: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, items, 3)

	items, total, err = repo.ListWarnings(ctx, WarningFilter{EntityID: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, uint(2), items[0].EntityID)

	items, _, err = repo.ListWarnings(ctx, WarningFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
