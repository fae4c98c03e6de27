package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subrat243/DeCent-Pay/internal/ledger"
	"github.com/subrat243/DeCent-Pay/internal/model"
	"github.com/subrat243/DeCent-Pay/internal/repository"
)

func TestPlatformFeeCap(t *testing.T) {
	f := newFixture(t)

	_, err := f.admin.SetPlatformFeeBP(f.ctx, as(ownerAccount), MaxPlatformFeeBP+1)
	require.ErrorIs(t, err, ErrFeeTooHigh)
	require.ErrorIs(t, err, ErrEconomic)

	settings, err := f.admin.SetPlatformFeeBP(f.ctx, as(ownerAccount), MaxPlatformFeeBP)
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxPlatformFeeBP), settings.PlatformFeeBP)

	bp, err := f.admin.GetPlatformFeeBP(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxPlatformFeeBP), bp)

	// The fee is frozen on the record at creation.
	e := f.createFunded(t, defaultInput(999, 999))
	assert.Equal(t, "99", e.PlatformFee.String())
	_, err = f.admin.SetPlatformFeeBP(f.ctx, as(ownerAccount), 0)
	require.NoError(t, err)
	assert.Equal(t, "99", f.escrow(t, e.ID).PlatformFee.String())
}

func TestAdminRequiresOwner(t *testing.T) {
	f := newFixture(t)

	_, err := f.admin.SetPlatformFeeBP(f.ctx, as(stranger), 10)
	require.ErrorIs(t, err, ErrNotOwner)
	_, err = f.admin.SetJobCreationPaused(f.ctx, as(stranger), true)
	require.ErrorIs(t, err, ErrNotOwner)
	require.ErrorIs(t, f.admin.WhitelistToken(f.ctx, as(stranger), "USDC"), ErrNotOwner)
	require.ErrorIs(t, f.admin.AuthorizeArbiter(f.ctx, as(stranger), "GARB"), ErrNotOwner)
	_, err = f.admin.Deposit(f.ctx, as(stranger), stranger, nil, amt(10))
	require.ErrorIs(t, err, ErrNotOwner)
	_, err = f.admin.SetOwner(f.ctx, model.Principal{}, stranger)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdminSettersAndReads(t *testing.T) {
	f := newFixture(t)

	_, err := f.admin.Initialize(f.ctx, stranger, stranger, 0)
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	settings, err := f.admin.SetFeeCollector(f.ctx, as(ownerAccount), "GNEWFEES")
	require.NoError(t, err)
	assert.Equal(t, "GNEWFEES", settings.FeeCollector)

	paused, err := f.admin.IsJobCreationPaused(f.ctx)
	require.NoError(t, err)
	assert.False(t, paused)
	_, err = f.admin.SetJobCreationPaused(f.ctx, as(ownerAccount), true)
	require.NoError(t, err)
	paused, err = f.admin.IsJobCreationPaused(f.ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	ok, err := f.admin.IsWhitelistedToken(f.ctx, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.admin.IsWhitelistedToken(f.ctx, model.StringPtr("USDC"))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, f.admin.WhitelistToken(f.ctx, as(ownerAccount), "USDC"))
	ok, err = f.admin.IsWhitelistedToken(f.ctx, model.StringPtr("USDC"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.admin.AuthorizeArbiter(f.ctx, as(ownerAccount), "GARB"))
	ok, err = f.admin.IsAuthorizedArbiter(f.ctx, "GARB")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.admin.SetOwner(f.ctx, as(ownerAccount), "GNEWOWNER")
	require.NoError(t, err)
	owner, err := f.admin.GetOwner(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "GNEWOWNER", owner)
	_, err = f.admin.SetPlatformFeeBP(f.ctx, as(ownerAccount), 10)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestAdminBeforeInitialize(t *testing.T) {
	store := repository.NewMemoryStore()
	clock := ledger.NewManualClock(1)
	admin := NewAdminService(store, NewLedgerTransfer(), clock, nil, zerolog.Nop())
	ctx := context.Background()

	_, err := admin.GetOwner(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = admin.SetPlatformFeeBP(ctx, as(ownerAccount), 10)
	require.ErrorIs(t, err, ErrNotInitialized)

	bp, err := admin.GetPlatformFeeBP(ctx)
	require.NoError(t, err)
	assert.Zero(t, bp)

	_, err = admin.Initialize(ctx, ownerAccount, feeCollector, MaxPlatformFeeBP+1)
	require.ErrorIs(t, err, ErrFeeTooHigh)

	require.NoError(t, admin.Bootstrap(ctx, ownerAccount, feeCollector, 100, []string{"USDC", ""}))
	require.NoError(t, admin.Bootstrap(ctx, stranger, stranger, 500, nil))

	settings, err := admin.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, ownerAccount, settings.Owner)
	assert.Equal(t, uint32(100), settings.PlatformFeeBP)
	ok, err := admin.IsWhitelistedToken(ctx, model.StringPtr("USDC"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDepositCreditsBalance(t *testing.T) {
	f := newFixture(t)

	balance, err := f.admin.Deposit(f.ctx, as(ownerAccount), client, nil, amt(70))
	require.NoError(t, err)
	assert.Equal(t, "70", balance.String())
	balance, err = f.admin.Deposit(f.ctx, as(ownerAccount), client, nil, amt(30))
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())

	_, err = f.admin.Deposit(f.ctx, as(ownerAccount), client, nil, amt(0))
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.admin.Deposit(f.ctx, as(ownerAccount), client, model.StringPtr("EURC"), amt(5))
	require.ErrorIs(t, err, ErrTokenNotWhitelisted)
}
