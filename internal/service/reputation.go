package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/subrat243/DeCent-Pay/internal/ledger"
	"github.com/subrat243/DeCent-Pay/internal/model"
	"github.com/subrat243/DeCent-Pay/internal/repository"
)

type ReputationService struct {
	store  repository.Store
	clock  ledger.Clock
	events emitter
	log    zerolog.Logger
}

func NewReputationService(store repository.Store, clock ledger.Clock, publisher EventPublisher, log zerolog.Logger) *ReputationService {
	return &ReputationService{
		store:  store,
		clock:  clock,
		events: emitter{publisher: publisher, log: log},
		log:    log,
	}
}

func addReputation(ctx context.Context, tx repository.Reputations, account string, points uint32) error {
	current, err := tx.Reputation(ctx, account)
	if err != nil {
		return fmt.Errorf("read reputation: %w", err)
	}
	return tx.SetReputation(ctx, account, saturatingAdd(current, points))
}

func incrementCompleted(ctx context.Context, tx repository.Reputations, account string) error {
	current, err := tx.CompletedEscrows(ctx, account)
	if err != nil {
		return fmt.Errorf("read completed escrows: %w", err)
	}
	return tx.SetCompletedEscrows(ctx, account, saturatingAdd(current, 1))
}

// saturatingAdd adds counters, pinning at the uint32 maximum instead of
// wrapping.
func saturatingAdd(a, b uint32) uint32 {
	if sum := a + b; sum >= a {
		return sum
	}
	return math.MaxUint32
}

type RatingInput struct {
	Principal model.Principal
	EscrowID  uint32
	Rating    uint32
	Review    string
}

// SubmitRating records the depositor's 1 to 5 star rating of the freelancer
// on a released escrow. Every escrow can be rated once.
func (s *ReputationService) SubmitRating(ctx context.Context, input RatingInput) (*model.Rating, error) {
	if err := requireCaller(input.Principal); err != nil {
		return nil, err
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, ErrInvalidRating
	}
	now := s.clock.Sequence()

	var rating *model.Rating
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		escrow, err := requireEscrow(ctx, tx, input.EscrowID)
		if err != nil {
			return err
		}
		if !escrow.IsDepositor(input.Principal.AccountID) {
			return ErrOnlyDepositorCanRate
		}
		if escrow.Status != model.EscrowStatusReleased {
			return ErrEscrowNotCompleted
		}
		if _, err := tx.GetRating(ctx, input.EscrowID); err == nil {
			return ErrRatingAlreadySubmitted
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("lookup rating: %w", err)
		}
		if escrow.Beneficiary == nil {
			return ErrInvalidAddress
		}

		rating = &model.Rating{
			EscrowID:   input.EscrowID,
			Freelancer: *escrow.Beneficiary,
			Client:     input.Principal.AccountID,
			Rating:     input.Rating,
			Review:     input.Review,
			RatedAt:    now,
		}
		if err := tx.SaveRating(ctx, *rating); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrRatingAlreadySubmitted
			}
			return fmt.Errorf("save rating: %w", err)
		}
		avg, err := tx.AverageRating(ctx, rating.Freelancer)
		if err != nil {
			return fmt.Errorf("read average rating: %w", err)
		}
		if avg.Count == math.MaxUint32 || avg.Total > math.MaxUint32-input.Rating {
			return fmt.Errorf("%w: rating counters for %s are full", ErrInvalidRating, rating.Freelancer)
		}
		avg.Total += input.Rating
		avg.Count++
		return tx.SetAverageRating(ctx, rating.Freelancer, avg)
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, now, Event{Type: EventRatingSubmitted, EscrowID: input.EscrowID, Data: rating})
	return rating, nil
}

func (s *ReputationService) GetRating(ctx context.Context, escrowID uint32) (*model.Rating, error) {
	var rating *model.Rating
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		rating, err = tx.GetRating(ctx, escrowID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: rating", ErrNotFound)
		}
		return err
	})
	return rating, err
}

// AddReputation credits points to account outside of a lifecycle operation.
func (s *ReputationService) AddReputation(ctx context.Context, account string, points uint32) error {
	if account == "" {
		return ErrInvalidAddress
	}
	return s.store.InTx(ctx, func(tx repository.Tx) error {
		return addReputation(ctx, tx, account, points)
	})
}

func (s *ReputationService) IncrementCompleted(ctx context.Context, account string) error {
	if account == "" {
		return ErrInvalidAddress
	}
	return s.store.InTx(ctx, func(tx repository.Tx) error {
		return incrementCompleted(ctx, tx, account)
	})
}

func (s *ReputationService) Summary(ctx context.Context, account string) (model.ReputationSummary, error) {
	if account == "" {
		return model.ReputationSummary{}, ErrInvalidAddress
	}
	summary := model.ReputationSummary{Account: account}
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		if summary.Reputation, err = tx.Reputation(ctx, account); err != nil {
			return err
		}
		if summary.CompletedEscrows, err = tx.CompletedEscrows(ctx, account); err != nil {
			return err
		}
		if summary.AverageRating, err = tx.AverageRating(ctx, account); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return model.ReputationSummary{}, err
	}
	summary.Badge = model.BadgeFor(summary.CompletedEscrows)
	return summary, nil
}
