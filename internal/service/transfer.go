package service

import (
	"context"
	"fmt"

	"github.com/subrat243/DeCent-Pay/internal/model"
	"github.com/subrat243/DeCent-Pay/internal/repository"
)

// NativeAssetKey is the balance key of the native asset.
const NativeAssetKey = "native"

// AssetTransfer moves a fixed amount of one asset between two accounts as
// part of the enclosing transaction. Any error aborts that transaction.
type AssetTransfer interface {
	Transfer(ctx context.Context, tx repository.Tx, asset *string, from, to string, amount model.Amount) error
}

// LedgerTransfer settles transfers against the account balances kept in
// the same store as the escrows.
type LedgerTransfer struct{}

func NewLedgerTransfer() *LedgerTransfer {
	return &LedgerTransfer{}
}

func balanceKey(asset *string) string {
	if asset == nil {
		return NativeAssetKey
	}
	return *asset
}

func (l *LedgerTransfer) Transfer(ctx context.Context, tx repository.Tx, asset *string, from, to string, amount model.Amount) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive amount %s", ErrTransfer, amount)
	}
	if from == "" || to == "" {
		return fmt.Errorf("%w: missing account", ErrTransfer)
	}
	key := balanceKey(asset)

	fromBalance, err := tx.Balance(ctx, from, key)
	if err != nil {
		return fmt.Errorf("read balance of %s: %w", from, err)
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: insufficient %s balance of %s", ErrTransfer, key, from)
	}
	if from == to {
		return nil
	}
	toBalance, err := tx.Balance(ctx, to, key)
	if err != nil {
		return fmt.Errorf("read balance of %s: %w", to, err)
	}
	credited := toBalance.Add(amount)
	if !credited.InRange() {
		return fmt.Errorf("%w: balance of %s overflows", ErrTransfer, to)
	}
	if err := tx.SetBalance(ctx, from, key, fromBalance.Sub(amount)); err != nil {
		return err
	}
	return tx.SetBalance(ctx, to, key, credited)
}

// Credit adds amount to an account balance. It stands in for deposits made
// through an external on-ramp.
func (l *LedgerTransfer) Credit(ctx context.Context, tx repository.Balances, asset *string, account string, amount model.Amount) (model.Amount, error) {
	if amount.Sign() <= 0 {
		return model.Amount{}, ErrInvalidAmount
	}
	key := balanceKey(asset)
	current, err := tx.Balance(ctx, account, key)
	if err != nil {
		return model.Amount{}, err
	}
	next := current.Add(amount)
	if !next.InRange() {
		return model.Amount{}, ErrInvalidAmount
	}
	if err := tx.SetBalance(ctx, account, key, next); err != nil {
		return model.Amount{}, err
	}
	return next, nil
}
