package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/subrat243/DeCent-Pay/internal/ledger"
	"github.com/subrat243/DeCent-Pay/internal/model"
	"github.com/subrat243/DeCent-Pay/internal/repository"
)

// DefaultMaxApplications caps applications per open job when no capacity
// is configured.
const DefaultMaxApplications = 50

type MarketplaceService struct {
	store           repository.Store
	clock           ledger.Clock
	maxApplications int
	events          emitter
	log             zerolog.Logger
}

// NewMarketplaceService builds the marketplace. maxApplications below zero
// selects DefaultMaxApplications, zero disables the cap.
func NewMarketplaceService(store repository.Store, clock ledger.Clock, publisher EventPublisher, maxApplications int, log zerolog.Logger) *MarketplaceService {
	if maxApplications < 0 {
		maxApplications = DefaultMaxApplications
	}
	return &MarketplaceService{
		store:           store,
		clock:           clock,
		maxApplications: maxApplications,
		events:          emitter{publisher: publisher, log: log},
		log:             log,
	}
}

type ApplyInput struct {
	Principal        model.Principal
	EscrowID         uint32
	CoverLetter      string
	ProposedTimeline uint32
}

func (s *MarketplaceService) ApplyToJob(ctx context.Context, input ApplyInput) (*model.Application, error) {
	if err := requireCaller(input.Principal); err != nil {
		return nil, err
	}
	freelancer := input.Principal.AccountID
	now := s.clock.Sequence()

	var app *model.Application
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		settings, err := currentSettings(ctx, tx)
		if err != nil {
			return err
		}
		if settings.JobCreationPaused {
			return ErrJobCreationPaused
		}
		escrow, err := requireEscrow(ctx, tx, input.EscrowID)
		if err != nil {
			return err
		}
		if !escrow.IsOpenJob {
			return ErrNotOpenJob
		}
		if escrow.Status != model.EscrowStatusPending {
			return ErrJobClosed
		}
		if escrow.IsDepositor(freelancer) {
			return ErrCannotApplyToOwnJob
		}
		if _, err := tx.GetApplication(ctx, input.EscrowID, freelancer); err == nil {
			return ErrAlreadyApplied
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("lookup application: %w", err)
		}
		if s.maxApplications > 0 {
			count, err := tx.CountApplications(ctx, input.EscrowID)
			if err != nil {
				return fmt.Errorf("count applications: %w", err)
			}
			if count >= s.maxApplications {
				return ErrTooManyApplications
			}
		}

		app = &model.Application{
			EscrowID:         input.EscrowID,
			Freelancer:       freelancer,
			CoverLetter:      input.CoverLetter,
			ProposedTimeline: input.ProposedTimeline,
			AppliedAt:        now,
		}
		if err := tx.AddApplication(ctx, *app); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyApplied
			}
			return fmt.Errorf("save application: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, now, Event{Type: EventApplicationAdded, EscrowID: input.EscrowID, Data: app})
	return app, nil
}

// AcceptFreelancer assigns an applicant as the beneficiary of an open job.
func (s *MarketplaceService) AcceptFreelancer(ctx context.Context, principal model.Principal, escrowID uint32, freelancer string) (*model.Escrow, error) {
	if err := requireCaller(principal); err != nil {
		return nil, err
	}
	if freelancer == "" {
		return nil, ErrInvalidAddress
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
		if !escrow.IsOpenJob {
			return ErrNotOpenJob
		}
		if escrow.Status != model.EscrowStatusPending || escrow.WorkStarted {
			return ErrJobClosed
		}
		if _, err := tx.GetApplication(ctx, escrowID, freelancer); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrFreelancerNotApplied
			}
			return fmt.Errorf("lookup application: %w", err)
		}

		escrow.Beneficiary = model.StringPtr(freelancer)
		escrow.IsOpenJob = false
		if err := tx.SaveEscrow(ctx, escrow); err != nil {
			return fmt.Errorf("save escrow: %w", err)
		}
		if err := tx.AddUserEscrow(ctx, freelancer, escrowID); err != nil {
			return fmt.Errorf("index freelancer escrow: %w", err)
		}
		updated = escrow
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Uint32("escrow_id", escrowID).Str("freelancer", freelancer).Msg("freelancer accepted")
	s.events.emit(ctx, now, Event{Type: EventFreelancerAccepted, EscrowID: escrowID, Data: updated})
	return updated, nil
}

func (s *MarketplaceService) HasApplied(ctx context.Context, escrowID uint32, freelancer string) (bool, error) {
	_, err := s.GetApplication(ctx, escrowID, freelancer)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *MarketplaceService) GetApplication(ctx context.Context, escrowID uint32, freelancer string) (*model.Application, error) {
	var app *model.Application
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		app, err = tx.GetApplication(ctx, escrowID, freelancer)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: application", ErrNotFound)
		}
		return err
	})
	return app, err
}

func (s *MarketplaceService) GetApplications(ctx context.Context, escrowID uint32) ([]model.Application, error) {
	var apps []model.Application
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := requireEscrow(ctx, tx, escrowID); err != nil {
			return err
		}
		var err error
		apps, err = tx.ListApplications(ctx, escrowID)
		return err
	})
	return apps, err
}
