package service

import (
	"context"
	"fmt"

	"github.com/subrat243/DeCent-Pay/internal/model"
	"github.com/subrat243/DeCent-Pay/internal/repository"
)

type ResolveDisputeInput struct {
	Principal        model.Principal
	EscrowID         uint32
	MilestoneIndex   uint32
	Outcome          model.DisputeOutcome
	BeneficiaryShare model.Amount
}

// ResolveDispute executes a decision taken outside the engine on a disputed
// escrow. Only the platform owner may submit it.
func (s *EscrowService) ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*model.Milestone, error) {
	if err := requireCaller(input.Principal); err != nil {
		return nil, err
	}
	switch input.Outcome {
	case model.DisputeOutcomeRelease, model.DisputeOutcomeRefund, model.DisputeOutcomeSplit:
	default:
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrInvalidParameter, input.Outcome)
	}
	now := s.clock.Sequence()

	var change milestoneChange
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := requireOwner(ctx, tx, input.Principal); err != nil {
			return err
		}
		escrow, err := requireEscrow(ctx, tx, input.EscrowID)
		if err != nil {
			return err
		}
		if escrow.Status != model.EscrowStatusDisputed {
			return ErrInvalidEscrowStatus
		}
		milestone, err := loadMilestone(ctx, tx, escrow, input.MilestoneIndex)
		if err != nil {
			return err
		}
		if milestone.Status != model.MilestoneStatusDisputed {
			return ErrMilestoneNotSubmitted
		}
		if escrow.Beneficiary == nil {
			return ErrInvalidAddress
		}

		remaining := escrow.Remaining()
		toBeneficiary, toDepositor, err := splitRemaining(input.Outcome, remaining, input.BeneficiaryShare)
		if err != nil {
			return err
		}

		if remaining.Sign() > 0 {
			if err := s.custody.Release(ctx, tx, escrow.Asset, remaining); err != nil {
				return err
			}
		}
		if toBeneficiary.Sign() > 0 {
			if err := s.transfers.Transfer(ctx, tx, escrow.Asset, s.custody.Account(), *escrow.Beneficiary, toBeneficiary); err != nil {
				return err
			}
		}
		if toDepositor.Sign() > 0 {
			if err := s.transfers.Transfer(ctx, tx, escrow.Asset, s.custody.Account(), escrow.Depositor, toDepositor); err != nil {
				return err
			}
		}

		if input.Outcome == model.DisputeOutcomeRefund {
			escrow.Status = model.EscrowStatusRefunded
		} else {
			escrow.Status = model.EscrowStatusReleased
		}
		milestone.Status = model.MilestoneStatusResolved
		milestone.Resolution = &model.DisputeResolution{
			Outcome:           input.Outcome,
			BeneficiaryAmount: toBeneficiary,
			DepositorAmount:   toDepositor,
			ResolvedBy:        input.Principal.AccountID,
			ResolvedAt:        now,
		}

		if err := tx.SaveMilestone(ctx, milestone); err != nil {
			return fmt.Errorf("save milestone: %w", err)
		}
		if err := tx.SaveEscrow(ctx, escrow); err != nil {
			return fmt.Errorf("save escrow: %w", err)
		}
		change = milestoneChange{escrow: escrow, milestone: milestone}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint32("escrow_id", input.EscrowID).
		Str("outcome", string(input.Outcome)).
		Msg("dispute resolved")
	s.events.emit(ctx, now, Event{Type: EventDisputeResolved, EscrowID: input.EscrowID, Data: change.milestone})
	return change.milestone, nil
}

func splitRemaining(outcome model.DisputeOutcome, remaining, share model.Amount) (model.Amount, model.Amount, error) {
	zero := model.NewAmount(0)
	switch outcome {
	case model.DisputeOutcomeRelease:
		return remaining, zero, nil
	case model.DisputeOutcomeRefund:
		return zero, remaining, nil
	default:
		if share.Sign() <= 0 || share.Cmp(remaining) >= 0 {
			return zero, zero, fmt.Errorf("%w: split share must be between 0 and %s", ErrInvalidAmount, remaining)
		}
		return share, remaining.Sub(share), nil
	}
}
