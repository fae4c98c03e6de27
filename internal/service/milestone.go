package service

import (
	"context"
	"fmt"

	"github.com/subrat243/DeCent-Pay/internal/model"
	"github.com/subrat243/DeCent-Pay/internal/repository"
)

const (
	ReputationPerMilestone = 10
	ReputationPerEscrow    = 25
)

// MinReputationEligible is the smallest escrow total that earns reputation.
var MinReputationEligible = model.MustParseAmount("10000000000000000")

// milestoneChange is what a milestone operation hands back from inside the
// transaction.
type milestoneChange struct {
	escrow    *model.Escrow
	milestone *model.Milestone
}

// beneficiaryMilestone loads escrow and milestone for the beneficiary-side
// operations.
func beneficiaryMilestone(ctx context.Context, tx repository.Tx, caller string, escrowID, index uint32) (*model.Escrow, *model.Milestone, error) {
	escrow, err := requireEscrow(ctx, tx, escrowID)
	if err != nil {
		return nil, nil, err
	}
	if !escrow.IsBeneficiary(caller) {
		return nil, nil, ErrOnlyBeneficiary
	}
	if escrow.Status != model.EscrowStatusInProgress {
		return nil, nil, ErrInvalidEscrowStatus
	}
	milestone, err := loadMilestone(ctx, tx, escrow, index)
	if err != nil {
		return nil, nil, err
	}
	return escrow, milestone, nil
}

func depositorMilestone(ctx context.Context, tx repository.Tx, caller string, escrowID, index uint32) (*model.Escrow, *model.Milestone, error) {
	escrow, err := requireEscrow(ctx, tx, escrowID)
	if err != nil {
		return nil, nil, err
	}
	if !escrow.IsDepositor(caller) {
		return nil, nil, ErrOnlyDepositor
	}
	if escrow.Status != model.EscrowStatusInProgress {
		return nil, nil, ErrEscrowNotActive
	}
	milestone, err := loadMilestone(ctx, tx, escrow, index)
	if err != nil {
		return nil, nil, err
	}
	return escrow, milestone, nil
}

func (s *EscrowService) SubmitMilestone(ctx context.Context, principal model.Principal, escrowID, index uint32, description string) (*model.Milestone, error) {
	if err := requireCaller(principal); err != nil {
		return nil, err
	}
	now := s.clock.Sequence()

	var change milestoneChange
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		escrow, milestone, err := beneficiaryMilestone(ctx, tx, principal.AccountID, escrowID, index)
		if err != nil {
			return err
		}
		if milestone.Status != model.MilestoneStatusNotStarted {
			return ErrMilestoneAlreadyProcessed
		}
		milestone.Status = model.MilestoneStatusSubmitted
		milestone.SubmittedAt = now
		milestone.Description = description
		if err := tx.SaveMilestone(ctx, milestone); err != nil {
			return fmt.Errorf("save milestone: %w", err)
		}
		change = milestoneChange{escrow: escrow, milestone: milestone}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, now, Event{Type: EventMilestoneSubmitted, EscrowID: escrowID, Data: change.milestone})
	return change.milestone, nil
}

func (s *EscrowService) ResubmitMilestone(ctx context.Context, principal model.Principal, escrowID, index uint32, description string) (*model.Milestone, error) {
	if err := requireCaller(principal); err != nil {
		return nil, err
	}
	now := s.clock.Sequence()

	var change milestoneChange
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		escrow, milestone, err := beneficiaryMilestone(ctx, tx, principal.AccountID, escrowID, index)
		if err != nil {
			return err
		}
		if milestone.Status != model.MilestoneStatusRejected {
			return ErrMilestoneAlreadyProcessed
		}
		milestone.Status = model.MilestoneStatusSubmitted
		milestone.SubmittedAt = now
		milestone.Description = description
		milestone.RejectionReason = nil
		if err := tx.SaveMilestone(ctx, milestone); err != nil {
			return fmt.Errorf("save milestone: %w", err)
		}
		change = milestoneChange{escrow: escrow, milestone: milestone}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, now, Event{Type: EventMilestoneSubmitted, EscrowID: escrowID, Data: change.milestone})
	return change.milestone, nil
}

func (s *EscrowService) RejectMilestone(ctx context.Context, principal model.Principal, escrowID, index uint32, reason string) (*model.Milestone, error) {
	if err := requireCaller(principal); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrInvalidParameter)
	}
	now := s.clock.Sequence()

	var change milestoneChange
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		escrow, milestone, err := depositorMilestone(ctx, tx, principal.AccountID, escrowID, index)
		if err != nil {
			return err
		}
		if milestone.Status != model.MilestoneStatusSubmitted {
			return ErrMilestoneNotSubmitted
		}
		milestone.Status = model.MilestoneStatusRejected
		milestone.RejectionReason = model.StringPtr(reason)
		if err := tx.SaveMilestone(ctx, milestone); err != nil {
			return fmt.Errorf("save milestone: %w", err)
		}
		change = milestoneChange{escrow: escrow, milestone: milestone}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, now, Event{Type: EventMilestoneRejected, EscrowID: escrowID, Data: change.milestone})
	return change.milestone, nil
}

// ApproveMilestone pays the milestone out to the beneficiary and releases
// the escrow once everything is paid.
func (s *EscrowService) ApproveMilestone(ctx context.Context, principal model.Principal, escrowID, index uint32) (*model.Escrow, error) {
	if err := requireCaller(principal); err != nil {
		return nil, err
	}
	now := s.clock.Sequence()

	var change milestoneChange
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		escrow, milestone, err := depositorMilestone(ctx, tx, principal.AccountID, escrowID, index)
		if err != nil {
			return err
		}
		if milestone.Status != model.MilestoneStatusSubmitted {
			return ErrMilestoneNotSubmitted
		}
		if escrow.Beneficiary == nil {
			return ErrInvalidAddress
		}
		beneficiary := *escrow.Beneficiary

		paid := escrow.PaidAmount.Add(milestone.Amount)
		if paid.Cmp(escrow.TotalAmount) > 0 {
			return fmt.Errorf("%w: milestone %d would pay %s of %s", ErrInvalidAmount, index, paid, escrow.TotalAmount)
		}

		milestone.Status = model.MilestoneStatusApproved
		milestone.ApprovedAt = now
		escrow.PaidAmount = paid

		if err := s.custody.Release(ctx, tx, escrow.Asset, milestone.Amount); err != nil {
			return err
		}
		if err := s.transfers.Transfer(ctx, tx, escrow.Asset, s.custody.Account(), beneficiary, milestone.Amount); err != nil {
			return err
		}

		eligible := escrow.TotalAmount.Cmp(MinReputationEligible) >= 0
		if eligible {
			if err := addReputation(ctx, tx, beneficiary, ReputationPerMilestone); err != nil {
				return err
			}
		}
		if escrow.PaidAmount.Equal(escrow.TotalAmount) {
			escrow.Status = model.EscrowStatusReleased
			if eligible {
				for _, account := range []string{beneficiary, escrow.Depositor} {
					if err := addReputation(ctx, tx, account, ReputationPerEscrow); err != nil {
						return err
					}
					if err := incrementCompleted(ctx, tx, account); err != nil {
						return err
					}
				}
			}
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
		Uint32("escrow_id", escrowID).
		Uint32("milestone", index).
		Str("paid", change.escrow.PaidAmount.String()).
		Msg("milestone approved")
	events := []Event{{Type: EventMilestoneApproved, EscrowID: escrowID, Data: change.milestone}}
	if change.escrow.Status == model.EscrowStatusReleased {
		events = append(events, Event{Type: EventEscrowReleased, EscrowID: escrowID, Data: change.escrow})
	}
	s.events.emit(ctx, now, events...)
	return change.escrow, nil
}

// DisputeMilestone freezes the escrow until an external decision is executed
// through ResolveDispute.
func (s *EscrowService) DisputeMilestone(ctx context.Context, principal model.Principal, escrowID, index uint32, reason string) (*model.Milestone, error) {
	if err := requireCaller(principal); err != nil {
		return nil, err
	}
	caller := principal.AccountID
	now := s.clock.Sequence()

	var change milestoneChange
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		escrow, err := requireEscrow(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		if !escrow.IsDepositor(caller) && !escrow.IsBeneficiary(caller) {
			return ErrUnauthorized
		}
		if escrow.Status != model.EscrowStatusInProgress {
			return ErrEscrowNotActive
		}
		milestone, err := loadMilestone(ctx, tx, escrow, index)
		if err != nil {
			return err
		}
		if milestone.Status != model.MilestoneStatusSubmitted && milestone.Status != model.MilestoneStatusApproved {
			return ErrMilestoneNotSubmitted
		}

		milestone.Status = model.MilestoneStatusDisputed
		milestone.DisputedAt = now
		milestone.DisputedBy = model.StringPtr(caller)
		milestone.DisputeReason = model.StringPtr(reason)
		escrow.Status = model.EscrowStatusDisputed

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

	s.log.Warn().Uint32("escrow_id", escrowID).Uint32("milestone", index).Str("by", caller).Msg("milestone disputed")
	s.events.emit(ctx, now, Event{Type: EventMilestoneDisputed, EscrowID: escrowID, Data: change.milestone})
	return change.milestone, nil
}
