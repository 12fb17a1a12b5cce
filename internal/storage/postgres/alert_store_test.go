package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/storage"
)

func testAlert(wallet string, ts time.Time) *domain.Alert {
	return domain.NewAlert(domain.StrategyCoOccurrence, wallet, 3, 4, domain.Evidence{
		Members: []string{"A", "B", wallet},
		Mints:   []string{"MintX", "MintY"},
	}, ts)
}

func TestAlertStore_InsertAndGet(t *testing.T) {
	pool := setupTestDB(t)

	store := NewAlertStore(pool)
	ctx := context.Background()

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := testAlert("Leader1", ts)
	a.Evidence.Sequences = []domain.SequenceEvidence{{Mint: "MintX", Wallets: []string{"Leader1", "B"}}}

	require.NoError(t, store.Insert(ctx, a))

	got, err := store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Wallet, got.Wallet)
	assert.Equal(t, a.Strategy, got.Strategy)
	assert.Equal(t, 3, got.Votes)
	assert.Equal(t, 4, got.TotalVotes)
	assert.InDelta(t, 0.75, got.Confidence, 1e-9)
	assert.Equal(t, a.Evidence, got.Evidence)
	assert.True(t, got.Timestamp.Equal(ts))
}

func TestAlertStore_DuplicateKey(t *testing.T) {
	pool := setupTestDB(t)

	store := NewAlertStore(pool)
	ctx := context.Background()

	a := testAlert("Leader1", time.Now())
	require.NoError(t, store.Insert(ctx, a))
	assert.ErrorIs(t, store.Insert(ctx, a), storage.ErrDuplicateKey)
}

func TestAlertStore_InvalidInput(t *testing.T) {
	pool := setupTestDB(t)

	store := NewAlertStore(pool)
	assert.ErrorIs(t, store.Insert(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(context.Background(), &domain.Alert{ID: "x"}), storage.ErrInvalidInput)
}

func TestAlertStore_GetNotFound(t *testing.T) {
	pool := setupTestDB(t)

	_, err := NewAlertStore(pool).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAlertStore_ListByTimeRangeAndWallet(t *testing.T) {
	pool := setupTestDB(t)

	store := NewAlertStore(pool)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, w := range []string{"W1", "W2", "W1", "W3"} {
		require.NoError(t, store.Insert(ctx, testAlert(w, base.Add(time.Duration(i)*time.Hour))))
	}

	got, err := store.ListByTimeRange(ctx, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "W2", got[0].Wallet)
	assert.Equal(t, "W1", got[1].Wallet)

	byWallet, err := store.ListByWallet(ctx, "W1")
	require.NoError(t, err)
	require.Len(t, byWallet, 2)
	assert.True(t, byWallet[0].Timestamp.Before(byWallet[1].Timestamp))
}

func TestCheckpointStore_SaveAndLoad(t *testing.T) {
	pool := setupTestDB(t)

	store := NewCheckpointStore(pool)
	ctx := context.Background()

	_, err := store.Load(ctx, "pumpfun")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Save(ctx, &storage.Checkpoint{Stream: "pumpfun", Slot: 200, Signature: "Sig200"}))
	require.NoError(t, store.Save(ctx, &storage.Checkpoint{Stream: "pumpfun", Slot: 100, Signature: "Sig100"}))

	got, err := store.Load(ctx, "pumpfun")
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.Slot)
	assert.Equal(t, "Sig200", got.Signature)

	require.NoError(t, store.Save(ctx, &storage.Checkpoint{Stream: "pumpfun", Slot: 300, Signature: "Sig300"}))
	got, err = store.Load(ctx, "pumpfun")
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.Slot)

	assert.ErrorIs(t, store.Save(ctx, &storage.Checkpoint{}), storage.ErrInvalidInput)
}
