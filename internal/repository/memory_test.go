package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subrat243/DeCent-Pay/internal/model"
)

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx Tx) error {
		id, err := tx.IncrementNextEscrowID(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.SaveEscrow(ctx, &model.Escrow{ID: id, Depositor: "GCLIENT"}))
		require.NoError(t, tx.SetBalance(ctx, "GCLIENT", "native", model.NewAmount(10)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		next, err := tx.NextEscrowID(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), next)
		_, err = tx.GetEscrow(ctx, 1)
		assert.ErrorIs(t, err, ErrNotFound)
		balance, err := tx.Balance(ctx, "GCLIENT", "native")
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
		return nil
	}))
}

func TestMemoryStoreIsolatesReturnedRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	beneficiary := "GFREELANCER"

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.SaveEscrow(ctx, &model.Escrow{ID: 1, Beneficiary: &beneficiary, Arbiters: []string{"GARB"}})
	}))

	var loaded *model.Escrow
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		var err error
		loaded, err = tx.GetEscrow(ctx, 1)
		return err
	}))
	*loaded.Beneficiary = "GMUTATED"
	loaded.Arbiters[0] = "GMUTATED"

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		e, err := tx.GetEscrow(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "GFREELANCER", *e.Beneficiary)
		assert.Equal(t, []string{"GARB"}, e.Arbiters)
		return nil
	}))
}

func TestMemoryStoreApplicationsAndRatings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.AddApplication(ctx, model.Application{EscrowID: 1, Freelancer: "GA"}))
		require.ErrorIs(t, tx.AddApplication(ctx, model.Application{EscrowID: 1, Freelancer: "GA"}), ErrDuplicate)
		require.NoError(t, tx.AddApplication(ctx, model.Application{EscrowID: 1, Freelancer: "GB"}))

		count, err := tx.CountApplications(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		_, err = tx.GetRating(ctx, 1)
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, tx.SaveRating(ctx, model.Rating{EscrowID: 1, Rating: 4}))
		require.ErrorIs(t, tx.SaveRating(ctx, model.Rating{EscrowID: 1, Rating: 5}), ErrDuplicate)
		return nil
	}))
}

func TestMemoryStoreSerializesTransactions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.InTx(ctx, func(tx Tx) error {
				current, err := tx.EscrowedAmount(ctx, "native")
				if err != nil {
					return err
				}
				return tx.SetEscrowedAmount(ctx, "native", current.Add(model.NewAmount(1)))
			})
		}()
	}
	wg.Wait()

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		total, err := tx.EscrowedAmount(ctx, "native")
		require.NoError(t, err)
		assert.Equal(t, "50", total.String())
		return nil
	}))
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemoryStore().InTx(ctx, func(Tx) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStoreViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.SaveEscrow(ctx, &model.Escrow{ID: 1, Depositor: "GCLIENT"})
	}))

	err := store.View(ctx, func(tx Tx) error {
		e, err := tx.GetEscrow(ctx, 1)
		require.NoError(t, err)
		e.Depositor = "GMUTATED"

		assert.ErrorIs(t, tx.SaveEscrow(ctx, e), ErrReadOnly)
		assert.ErrorIs(t, tx.SetBalance(ctx, "GCLIENT", "native", model.NewAmount(1)), ErrReadOnly)
		assert.ErrorIs(t, tx.SetEscrowedAmount(ctx, "native", model.NewAmount(1)), ErrReadOnly)
		assert.ErrorIs(t, tx.AddApplication(ctx, model.Application{EscrowID: 1, Freelancer: "GA"}), ErrReadOnly)
		_, err = tx.IncrementNextEscrowID(ctx)
		assert.ErrorIs(t, err, ErrReadOnly)

		escrowed, err := tx.EscrowedAmount(ctx, "missing")
		require.NoError(t, err)
		assert.True(t, escrowed.IsZero())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, store.View(ctx, func(tx Tx) error {
		e, err := tx.GetEscrow(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "GCLIENT", e.Depositor)
		next, err := tx.NextEscrowID(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), next)
		count, err := tx.CountApplications(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, count)
		return nil
	}))
}

func TestMemoryStoreViewDoesNotCopyState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.SaveEscrow(ctx, &model.Escrow{ID: 1})
	}))
	committed := store.state

	require.NoError(t, store.View(ctx, func(tx Tx) error {
		mtx, ok := tx.(*memoryTx)
		require.True(t, ok)
		assert.Same(t, committed, mtx.state)
		return nil
	}))
	assert.Same(t, committed, store.state)
}

func TestMemoryStoreViewHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemoryStore().View(ctx, func(Tx) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
