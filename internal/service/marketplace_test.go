package service

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subrat243/DeCent-Pay/internal/model"
)

func (f *fixture) openJob(t *testing.T) *model.Escrow {
	t.Helper()
	input := defaultInput(1000, 1000)
	input.Beneficiary = nil
	return f.createFunded(t, input)
}

func TestOpenJobHiring(t *testing.T) {
	f := newFixture(t)
	job := f.openJob(t)
	require.True(t, job.IsOpenJob)

	app, err := f.market.ApplyToJob(f.ctx, ApplyInput{
		Principal:        as(freelancer),
		EscrowID:         job.ID,
		CoverLetter:      "I build landing pages",
		ProposedTimeline: 14,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(startSequence), app.AppliedAt)

	_, err = f.market.ApplyToJob(f.ctx, ApplyInput{Principal: as(freelancer), EscrowID: job.ID})
	require.ErrorIs(t, err, ErrAlreadyApplied)
	_, err = f.market.ApplyToJob(f.ctx, ApplyInput{Principal: as(client), EscrowID: job.ID})
	require.ErrorIs(t, err, ErrCannotApplyToOwnJob)

	applied, err := f.market.HasApplied(f.ctx, job.ID, freelancer)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = f.market.HasApplied(f.ctx, job.ID, stranger)
	require.NoError(t, err)
	assert.False(t, applied)

	// Work cannot start before someone is hired.
	_, err = f.escrows.StartWork(f.ctx, as(freelancer), job.ID)
	require.ErrorIs(t, err, ErrOnlyBeneficiary)

	_, err = f.market.AcceptFreelancer(f.ctx, as(freelancer), job.ID, freelancer)
	require.ErrorIs(t, err, ErrOnlyDepositor)
	_, err = f.market.AcceptFreelancer(f.ctx, as(client), job.ID, stranger)
	require.ErrorIs(t, err, ErrFreelancerNotApplied)

	hired, err := f.market.AcceptFreelancer(f.ctx, as(client), job.ID, freelancer)
	require.NoError(t, err)
	assert.False(t, hired.IsOpenJob)
	require.NotNil(t, hired.Beneficiary)
	assert.Equal(t, freelancer, *hired.Beneficiary)

	ids, err := f.escrows.GetUserEscrows(f.ctx, freelancer)
	require.NoError(t, err)
	assert.Equal(t, []uint32{job.ID}, ids)

	_, err = f.market.ApplyToJob(f.ctx, ApplyInput{Principal: as(stranger), EscrowID: job.ID})
	require.ErrorIs(t, err, ErrNotOpenJob)
	_, err = f.market.AcceptFreelancer(f.ctx, as(client), job.ID, freelancer)
	require.ErrorIs(t, err, ErrNotOpenJob)

	_, err = f.escrows.StartWork(f.ctx, as(freelancer), job.ID)
	require.NoError(t, err)
}

func TestApplyToClosedOrPausedJob(t *testing.T) {
	f := newFixture(t)
	job := f.openJob(t)

	direct := f.createFunded(t, defaultInput(100, 100))
	_, err := f.market.ApplyToJob(f.ctx, ApplyInput{Principal: as(stranger), EscrowID: direct.ID})
	require.ErrorIs(t, err, ErrNotOpenJob)

	_, err = f.market.ApplyToJob(f.ctx, ApplyInput{Principal: as(stranger), EscrowID: 99})
	require.ErrorIs(t, err, ErrEscrowNotFound)

	_, err = f.admin.SetJobCreationPaused(f.ctx, as(ownerAccount), true)
	require.NoError(t, err)
	_, err = f.market.ApplyToJob(f.ctx, ApplyInput{Principal: as(stranger), EscrowID: job.ID})
	require.ErrorIs(t, err, ErrJobCreationPaused)
	_, err = f.admin.SetJobCreationPaused(f.ctx, as(ownerAccount), false)
	require.NoError(t, err)

	_, err = f.escrows.RefundEscrow(f.ctx, as(client), job.ID)
	require.NoError(t, err)
	_, err = f.market.ApplyToJob(f.ctx, ApplyInput{Principal: as(stranger), EscrowID: job.ID})
	require.ErrorIs(t, err, ErrJobClosed)
}

func TestApplicationCapacity(t *testing.T) {
	f := newFixture(t)
	f.market = NewMarketplaceService(f.store, f.clock, nil, 3, zerolog.Nop())
	job := f.openJob(t)

	for i := 0; i < 3; i++ {
		_, err := f.market.ApplyToJob(f.ctx, ApplyInput{Principal: as(fmt.Sprintf("GAPPLICANT%d", i)), EscrowID: job.ID})
		require.NoError(t, err)
	}
	_, err := f.market.ApplyToJob(f.ctx, ApplyInput{Principal: as("GLATE"), EscrowID: job.ID})
	require.ErrorIs(t, err, ErrTooManyApplications)

	apps, err := f.market.GetApplications(f.ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, apps, 3)
	for i, app := range apps {
		assert.Equal(t, fmt.Sprintf("GAPPLICANT%d", i), app.Freelancer)
	}

	unlimited := NewMarketplaceService(f.store, f.clock, nil, 0, zerolog.Nop())
	_, err = unlimited.ApplyToJob(f.ctx, ApplyInput{Principal: as("GLATE"), EscrowID: job.ID})
	require.NoError(t, err)

	app, err := unlimited.GetApplication(f.ctx, job.ID, "GLATE")
	require.NoError(t, err)
	assert.Equal(t, "GLATE", app.Freelancer)
	_, err = unlimited.GetApplication(f.ctx, job.ID, "GNOBODY")
	require.ErrorIs(t, err, ErrNotFound)
}
