package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/subrat243/DeCent-Pay/internal/ledger"
	"github.com/subrat243/DeCent-Pay/internal/model"
	"github.com/subrat243/DeCent-Pay/internal/repository"
)

const (
	custodyAccount = "GCUSTODY"
	ownerAccount   = "GOWNER"
	feeCollector   = "GFEES"
	client         = "GCLIENT"
	freelancer     = "GFREELANCER"
	stranger       = "GSTRANGER"
	startSequence  = 100
	testFeeBP      = 250
)

type recordingPublisher struct {
	mu     sync.Mutex
	types  []string
	failed bool
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ []byte, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	if p.failed {
		return errors.New("broker unavailable")
	}
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

type fixture struct {
	ctx        context.Context
	store      *repository.MemoryStore
	clock      *ledger.ManualClock
	publisher  *recordingPublisher
	escrows    *EscrowService
	admin      *AdminService
	market     *MarketplaceService
	reputation *ReputationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	clock := ledger.NewManualClock(startSequence)
	publisher := &recordingPublisher{}
	transfers := NewLedgerTransfer()
	log := zerolog.Nop()

	f := &fixture{
		ctx:        context.Background(),
		store:      store,
		clock:      clock,
		publisher:  publisher,
		escrows:    NewEscrowService(store, transfers, clock, publisher, custodyAccount, log),
		admin:      NewAdminService(store, transfers, clock, publisher, log),
		market:     NewMarketplaceService(store, clock, publisher, -1, log),
		reputation: NewReputationService(store, clock, publisher, log),
	}
	_, err := f.admin.Initialize(f.ctx, ownerAccount, feeCollector, testFeeBP)
	require.NoError(t, err)
	return f
}

func as(account string) model.Principal {
	return model.Principal{AccountID: account}
}

func amt(v int64) model.Amount {
	return model.NewAmount(v)
}

func amounts(values ...int64) []model.Amount {
	out := make([]model.Amount, 0, len(values))
	for _, v := range values {
		out = append(out, model.NewAmount(v))
	}
	return out
}

func (f *fixture) fund(t *testing.T, account string, asset *string, v model.Amount) {
	t.Helper()
	_, err := f.admin.Deposit(f.ctx, as(ownerAccount), account, asset, v)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, account string, asset *string) model.Amount {
	t.Helper()
	b, err := f.admin.Balance(f.ctx, account, asset)
	require.NoError(t, err)
	return b
}

func (f *fixture) custody(t *testing.T, asset *string) model.CustodyBalance {
	t.Helper()
	key := custodyAccount
	if asset != nil {
		key = *asset
	}
	b, err := f.escrows.CustodyBalance(f.ctx, key)
	require.NoError(t, err)
	return b
}

func (f *fixture) escrow(t *testing.T, id uint32) *model.Escrow {
	t.Helper()
	e, err := f.escrows.GetEscrow(f.ctx, id)
	require.NoError(t, err)
	return e
}

func (f *fixture) milestone(t *testing.T, id, index uint32) *model.Milestone {
	t.Helper()
	m, err := f.escrows.GetMilestone(f.ctx, id, index)
	require.NoError(t, err)
	return m
}

func defaultInput(total int64, milestones ...int64) CreateEscrowInput {
	descriptions := make([]string, len(milestones))
	for i := range milestones {
		descriptions[i] = "milestone"
	}
	return CreateEscrowInput{
		Principal:             as(client),
		Beneficiary:           model.StringPtr(freelancer),
		MilestoneAmounts:      amounts(milestones...),
		MilestoneDescriptions: descriptions,
		TotalAmount:           amt(total),
		DurationSeconds:       7200,
		Title:                 "Landing page",
		Description:           "Build and ship the landing page",
	}
}

// createFunded funds the client with exactly the total and creates the escrow.
func (f *fixture) createFunded(t *testing.T, input CreateEscrowInput) *model.Escrow {
	t.Helper()
	f.fund(t, input.Principal.AccountID, input.Asset, input.TotalAmount)
	e, err := f.escrows.CreateEscrow(f.ctx, input)
	require.NoError(t, err)
	return e
}

// started creates a funded escrow and moves it to InProgress.
func (f *fixture) started(t *testing.T, input CreateEscrowInput) *model.Escrow {
	t.Helper()
	e := f.createFunded(t, input)
	e, err := f.escrows.StartWork(f.ctx, as(freelancer), e.ID)
	require.NoError(t, err)
	return e
}

func (f *fixture) submitAndApprove(t *testing.T, id, index uint32) *model.Escrow {
	t.Helper()
	_, err := f.escrows.SubmitMilestone(f.ctx, as(freelancer), id, index, "done")
	require.NoError(t, err)
	e, err := f.escrows.ApproveMilestone(f.ctx, as(client), id, index)
	require.NoError(t, err)
	return e
}

// requireCustodyConsistent checks that the escrowed counter of the asset
// equals the unpaid remainder of every escrow still holding funds.
func (f *fixture) requireCustodyConsistent(t *testing.T, asset *string) {
	t.Helper()
	var next uint32
	require.NoError(t, f.store.InTx(f.ctx, func(tx repository.Tx) error {
		var err error
		next, err = tx.NextEscrowID(f.ctx)
		return err
	}))

	expected := amt(0)
	for id := uint32(1); id < next; id++ {
		e := f.escrow(t, id)
		require.GreaterOrEqual(t, e.PaidAmount.Sign(), 0)
		require.LessOrEqual(t, e.PaidAmount.Cmp(e.TotalAmount), 0)
		if !sameAsset(e.Asset, asset) || !e.HoldsFunds() {
			continue
		}
		expected = expected.Add(e.Remaining())
	}
	require.Equal(t, expected.String(), f.custody(t, asset).Escrowed.String())
}

func sameAsset(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
