package service

import (
	"context"
	"fmt"

	"github.com/subrat243/DeCent-Pay/internal/model"
	"github.com/subrat243/DeCent-Pay/internal/repository"
)

const (
	// EmergencyRefundDelay is added to the deadline as-is, although the
	// deadline counts sequence units and the delay counts seconds.
	EmergencyRefundDelay = 2592000
	// MaxExtensionSeconds bounds a single deadline extension. Extensions
	// are added to the sequence-unit deadline without conversion.
	MaxExtensionSeconds = 2592000
)

func (s *EscrowService) RefundEscrow(ctx context.Context, principal model.Principal, escrowID uint32) (*model.Escrow, error) {
	if err := requireCaller(principal); err != nil {
		return nil, err
	}
	now := s.clock.Sequence()

	var updated *model.Escrow
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		escrow, err := requireEscrow(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		if !escrow.IsDepositor(principal.AccountID) {
			return ErrOnlyDepositor
		}
		if escrow.WorkStarted {
			return ErrWorkAlreadyStarted
		}
		if escrow.Status != model.EscrowStatusPending {
			return ErrInvalidEscrowStatus
		}
		if now >= escrow.Deadline {
			return ErrDeadlineNotPassed
		}
		if err := s.payBack(ctx, tx, escrow, model.EscrowStatusRefunded); err != nil {
			return err
		}
		updated = escrow
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Uint32("escrow_id", escrowID).Msg("escrow refunded")
	s.events.emit(ctx, now, Event{Type: EventEscrowRefunded, EscrowID: escrowID, Data: updated})
	return updated, nil
}

// EmergencyRefund returns the unpaid remainder to the depositor once the
// grace period after the deadline is over, whatever the escrow is doing.
func (s *EscrowService) EmergencyRefund(ctx context.Context, principal model.Principal, escrowID uint32) (*model.Escrow, error) {
	if err := requireCaller(principal); err != nil {
		return nil, err
	}
	now := s.clock.Sequence()

	var updated *model.Escrow
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		escrow, err := requireEscrow(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		if !escrow.IsDepositor(principal.AccountID) {
			return ErrOnlyDepositor
		}
		if uint64(now) <= uint64(escrow.Deadline)+EmergencyRefundDelay {
			return ErrEmergencyPeriodNotReached
		}
		if escrow.Status == model.EscrowStatusReleased || escrow.Status == model.EscrowStatusRefunded {
			return ErrCannotRefund
		}
		if escrow.Status == model.EscrowStatusExpired {
			return ErrNothingToRefund
		}
		if err := s.payBack(ctx, tx, escrow, model.EscrowStatusExpired); err != nil {
			return err
		}
		updated = escrow
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Warn().Uint32("escrow_id", escrowID).Msg("escrow expired by emergency refund")
	s.events.emit(ctx, now, Event{Type: EventEscrowExpired, EscrowID: escrowID, Data: updated})
	return updated, nil
}

// payBack moves the unpaid remainder of escrow back to the depositor and
// marks it with status.
func (s *EscrowService) payBack(ctx context.Context, tx repository.Tx, escrow *model.Escrow, status model.EscrowStatus) error {
	refund := escrow.Remaining()
	if refund.Sign() <= 0 {
		return ErrNothingToRefund
	}
	escrow.Status = status
	if err := s.custody.Release(ctx, tx, escrow.Asset, refund); err != nil {
		return err
	}
	if err := s.transfers.Transfer(ctx, tx, escrow.Asset, s.custody.Account(), escrow.Depositor, refund); err != nil {
		return err
	}
	if err := tx.SaveEscrow(ctx, escrow); err != nil {
		return fmt.Errorf("save escrow: %w", err)
	}
	return nil
}

func (s *EscrowService) ExtendDeadline(ctx context.Context, principal model.Principal, escrowID, extraSeconds uint32) (*model.Escrow, error) {
	if err := requireCaller(principal); err != nil {
		return nil, err
	}
	if extraSeconds == 0 || extraSeconds > MaxExtensionSeconds {
		return nil, ErrInvalidExtension
	}
	now := s.clock.Sequence()

	var updated *model.Escrow
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		escrow, err := requireEscrow(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		if !escrow.IsDepositor(principal.AccountID) {
			return ErrOnlyDepositor
		}
		if escrow.Status != model.EscrowStatusPending && escrow.Status != model.EscrowStatusInProgress {
			return ErrCannotExtend
		}
		deadline := uint64(escrow.Deadline) + uint64(extraSeconds)
		if deadline > uint64(^uint32(0)) {
			return fmt.Errorf("%w: deadline past the end of the sequence range", ErrInvalidExtension)
		}
		escrow.Deadline = uint32(deadline)
		if err := tx.SaveEscrow(ctx, escrow); err != nil {
			return fmt.Errorf("save escrow: %w", err)
		}
		updated = escrow
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Uint32("escrow_id", escrowID).Uint32("deadline", updated.Deadline).Msg("deadline extended")
	s.events.emit(ctx, now, Event{Type: EventDeadlineExtended, EscrowID: escrowID, Data: updated})
	return updated, nil
}
