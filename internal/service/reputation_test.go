package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subrat243/DeCent-Pay/internal/model"
)

func TestSubmitRating(t *testing.T) {
	f := newFixture(t)
	e := f.started(t, defaultInput(100, 100))

	rate := func(principal model.Principal, stars uint32) error {
		_, err := f.reputation.SubmitRating(f.ctx, RatingInput{
			Principal: principal,
			EscrowID:  e.ID,
			Rating:    stars,
			Review:    "solid work",
		})
		return err
	}

	require.ErrorIs(t, rate(as(client), 5), ErrEscrowNotCompleted)
	f.submitAndApprove(t, e.ID, 0)

	require.ErrorIs(t, rate(as(client), 0), ErrInvalidRating)
	require.ErrorIs(t, rate(as(client), 6), ErrInvalidRating)
	require.ErrorIs(t, rate(as(freelancer), 5), ErrOnlyDepositorCanRate)
	require.NoError(t, rate(as(client), 4))
	require.ErrorIs(t, rate(as(client), 5), ErrRatingAlreadySubmitted)

	rating, err := f.reputation.GetRating(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, freelancer, rating.Freelancer)
	assert.Equal(t, client, rating.Client)
	assert.Equal(t, uint32(4), rating.Rating)

	second := f.started(t, defaultInput(100, 100))
	f.submitAndApprove(t, second.ID, 0)
	_, err = f.reputation.SubmitRating(f.ctx, RatingInput{Principal: as(client), EscrowID: second.ID, Rating: 2})
	require.NoError(t, err)

	summary, err := f.reputation.Summary(f.ctx, freelancer)
	require.NoError(t, err)
	assert.Equal(t, model.AverageRating{Total: 6, Count: 2}, summary.AverageRating)

	_, err = f.reputation.GetRating(f.ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBadgeProgression(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 15; i++ {
		require.NoError(t, f.reputation.IncrementCompleted(f.ctx, freelancer))
	}
	require.NoError(t, f.reputation.AddReputation(f.ctx, freelancer, 7))

	summary, err := f.reputation.Summary(f.ctx, freelancer)
	require.NoError(t, err)
	assert.Equal(t, uint32(15), summary.CompletedEscrows)
	assert.Equal(t, uint32(7), summary.Reputation)
	assert.Equal(t, model.BadgeAdvanced, summary.Badge)

	require.ErrorIs(t, f.reputation.AddReputation(f.ctx, "", 1), ErrInvalidAddress)
}

func TestReputationSaturates(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.reputation.AddReputation(f.ctx, freelancer, math.MaxUint32-5))
	require.NoError(t, f.reputation.AddReputation(f.ctx, freelancer, ReputationPerMilestone))
	summary, err := f.reputation.Summary(f.ctx, freelancer)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), summary.Reputation)

	tests := []struct {
		a, b, want uint32
	}{
		{1, 2, 3},
		{math.MaxUint32 - 1, 1, math.MaxUint32},
		{math.MaxUint32, 1, math.MaxUint32},
		{math.MaxUint32, math.MaxUint32, math.MaxUint32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, saturatingAdd(tt.a, tt.b))
	}
}
