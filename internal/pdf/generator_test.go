package pdf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subrat243/DeCent-Pay/internal/model"
)

func TestGenerateStatement(t *testing.T) {
	reason := "missing pages"
	st := model.EscrowStatement{
		Escrow: model.Escrow{
			ID:          7,
			Depositor:   "GCLIENT",
			Beneficiary: model.StringPtr("GFREELANCER"),
			TotalAmount: model.NewAmount(1000),
			PaidAmount:  model.NewAmount(400),
			PlatformFee: model.NewAmount(25),
			Status:      model.EscrowStatusDisputed,
			Title:       "Landing page",
		},
		Milestones: []model.Milestone{
			{EscrowID: 7, Index: 0, Description: "design", Amount: model.NewAmount(400), Status: model.MilestoneStatusApproved},
			{EscrowID: 7, Index: 1, Description: "build", Amount: model.NewAmount(600), Status: model.MilestoneStatusDisputed, DisputeReason: &reason},
		},
		Sequence: 120,
	}

	out, err := NewGenerator().Generate(st)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestHeldAmount(t *testing.T) {
	e := model.Escrow{TotalAmount: model.NewAmount(1000), PaidAmount: model.NewAmount(400), Status: model.EscrowStatusInProgress}
	assert.Equal(t, "600", heldAmount(e))

	e.Status = model.EscrowStatusRefunded
	assert.Equal(t, "0", heldAmount(e))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
