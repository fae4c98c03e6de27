package service

import (
	"context"
	"fmt"

	"github.com/subrat243/DeCent-Pay/internal/model"
	"github.com/subrat243/DeCent-Pay/internal/repository"
)

// Custody is the fund custody ledger: the per-asset escrowed amount and the
// accrued platform fees. The native asset is keyed by the custody account.
type Custody struct {
	account string
}

func NewCustody(custodyAccount string) Custody {
	return Custody{account: custodyAccount}
}

func (c Custody) Account() string {
	return c.account
}

// AssetKey returns the counter key of asset.
func (c Custody) AssetKey(asset *string) string {
	if asset == nil {
		return c.account
	}
	return *asset
}

// Lock records amount as newly held in custody.
func (c Custody) Lock(ctx context.Context, tx repository.CustodyCounters, asset *string, amount model.Amount) error {
	key := c.AssetKey(asset)
	current, err := tx.EscrowedAmount(ctx, key)
	if err != nil {
		return fmt.Errorf("read escrowed amount: %w", err)
	}
	next := current.Add(amount)
	if !next.InRange() {
		return fmt.Errorf("%w: escrowed counter of %s overflows", ErrInvalidAmount, key)
	}
	return tx.SetEscrowedAmount(ctx, key, next)
}

// Release removes amount from custody. The counter never goes negative.
func (c Custody) Release(ctx context.Context, tx repository.CustodyCounters, asset *string, amount model.Amount) error {
	key := c.AssetKey(asset)
	current, err := tx.EscrowedAmount(ctx, key)
	if err != nil {
		return fmt.Errorf("read escrowed amount: %w", err)
	}
	next := current.Sub(amount)
	if next.Sign() < 0 {
		return fmt.Errorf("%w: escrowed %s for %s, releasing %s", ErrCustodyUnderflow, current, key, amount)
	}
	return tx.SetEscrowedAmount(ctx, key, next)
}

// AccrueFee adds fee to the cumulative platform fees of asset.
func (c Custody) AccrueFee(ctx context.Context, tx repository.CustodyCounters, asset *string, fee model.Amount) error {
	key := c.AssetKey(asset)
	current, err := tx.AccruedFees(ctx, key)
	if err != nil {
		return fmt.Errorf("read accrued fees: %w", err)
	}
	next := current.Add(fee)
	if !next.InRange() {
		return fmt.Errorf("%w: fee counter of %s overflows", ErrInvalidAmount, key)
	}
	return tx.SetAccruedFees(ctx, key, next)
}

func (c Custody) Snapshot(ctx context.Context, tx repository.CustodyCounters, assetKey string) (model.CustodyBalance, error) {
	escrowed, err := tx.EscrowedAmount(ctx, assetKey)
	if err != nil {
		return model.CustodyBalance{}, err
	}
	fees, err := tx.AccruedFees(ctx, assetKey)
	if err != nil {
		return model.CustodyBalance{}, err
	}
	return model.CustodyBalance{AssetKey: assetKey, Escrowed: escrowed, AccruedFees: fees}, nil
}
