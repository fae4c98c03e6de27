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

const (
	MinDurationSeconds = 3600
	MaxDurationSeconds = 31536000
	MaxMilestones      = 20
	MaxArbiters        = 5
	MaxPlatformFeeBP   = 1000
	feeDenominatorBP   = 10000
)

type EscrowService struct {
	store     repository.Store
	transfers AssetTransfer
	clock     ledger.Clock
	custody   Custody
	events    emitter
	log       zerolog.Logger
}

func NewEscrowService(
	store repository.Store,
	transfers AssetTransfer,
	clock ledger.Clock,
	publisher EventPublisher,
	custodyAccount string,
	log zerolog.Logger,
) *EscrowService {
	return &EscrowService{
		store:     store,
		transfers: transfers,
		clock:     clock,
		custody:   NewCustody(custodyAccount),
		events:    emitter{publisher: publisher, log: log},
		log:       log,
	}
}

type CreateEscrowInput struct {
	Principal             model.Principal
	Beneficiary           *string
	Arbiters              []string
	RequiredConfirmations uint32
	MilestoneAmounts      []model.Amount
	MilestoneDescriptions []string
	Asset                 *string
	TotalAmount           model.Amount
	DurationSeconds       uint32
	Title                 string
	Description           string
}

func (s *EscrowService) CreateEscrow(ctx context.Context, input CreateEscrowInput) (*model.Escrow, error) {
	if err := requireCaller(input.Principal); err != nil {
		return nil, err
	}
	depositor := input.Principal.AccountID
	now := s.clock.Sequence()

	var created *model.Escrow
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		settings, err := currentSettings(ctx, tx)
		if err != nil {
			return err
		}
		if settings.JobCreationPaused {
			return ErrJobCreationPaused
		}
		if err := validateCreate(input); err != nil {
			return err
		}
		if input.Asset != nil {
			ok, err := tx.IsWhitelistedToken(ctx, *input.Asset)
			if err != nil {
				return fmt.Errorf("check token whitelist: %w", err)
			}
			if !ok {
				return ErrTokenNotWhitelisted
			}
		}

		deadline := uint64(now) + uint64(input.DurationSeconds/ledger.SecondsPerSequence)
		if deadline > uint64(^uint32(0)) {
			return fmt.Errorf("%w: deadline past the end of the sequence range", ErrInvalidDuration)
		}
		fee := input.TotalAmount.MulDiv(int64(settings.PlatformFeeBP), feeDenominatorBP)

		if err := s.transfers.Transfer(ctx, tx, input.Asset, depositor, s.custody.Account(), input.TotalAmount); err != nil {
			return err
		}
		if err := s.custody.Lock(ctx, tx, input.Asset, input.TotalAmount); err != nil {
			return err
		}

		id, err := tx.IncrementNextEscrowID(ctx)
		if err != nil {
			return fmt.Errorf("allocate escrow id: %w", err)
		}
		escrow := &model.Escrow{
			ID:                    id,
			Depositor:             depositor,
			Beneficiary:           input.Beneficiary,
			Arbiters:              append([]string{}, input.Arbiters...),
			RequiredConfirmations: input.RequiredConfirmations,
			Asset:                 input.Asset,
			TotalAmount:           input.TotalAmount,
			PaidAmount:            model.NewAmount(0),
			PlatformFee:           fee,
			Deadline:              uint32(deadline),
			Status:                model.EscrowStatusPending,
			CreatedAt:             now,
			MilestoneCount:        uint32(len(input.MilestoneAmounts)),
			IsOpenJob:             input.Beneficiary == nil,
			Title:                 input.Title,
			Description:           input.Description,
		}
		if err := tx.SaveEscrow(ctx, escrow); err != nil {
			return fmt.Errorf("save escrow: %w", err)
		}
		for i, amount := range input.MilestoneAmounts {
			milestone := &model.Milestone{
				EscrowID:    id,
				Index:       uint32(i),
				Description: input.MilestoneDescriptions[i],
				Amount:      amount,
				Status:      model.MilestoneStatusNotStarted,
			}
			if err := tx.SaveMilestone(ctx, milestone); err != nil {
				return fmt.Errorf("save milestone %d: %w", i, err)
			}
		}

		if err := tx.AddUserEscrow(ctx, depositor, id); err != nil {
			return fmt.Errorf("index depositor escrow: %w", err)
		}
		if input.Beneficiary != nil {
			if err := tx.AddUserEscrow(ctx, *input.Beneficiary, id); err != nil {
				return fmt.Errorf("index beneficiary escrow: %w", err)
			}
		}
		created = escrow
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint32("escrow_id", created.ID).
		Str("depositor", depositor).
		Str("total", created.TotalAmount.String()).
		Msg("escrow created")
	s.events.emit(ctx, now, Event{Type: EventEscrowCreated, EscrowID: created.ID, Data: created})
	return created, nil
}

func validateCreate(input CreateEscrowInput) error {
	if input.DurationSeconds < MinDurationSeconds || input.DurationSeconds > MaxDurationSeconds {
		return ErrInvalidDuration
	}
	if len(input.MilestoneAmounts) != len(input.MilestoneDescriptions) {
		return ErrMilestoneCountMismatch
	}
	if len(input.MilestoneAmounts) > MaxMilestones {
		return ErrTooManyMilestones
	}
	if len(input.Arbiters) > MaxArbiters {
		return ErrTooManyArbiters
	}
	if input.RequiredConfirmations > uint32(len(input.Arbiters)) {
		return ErrInvalidConfirmations
	}
	if input.TotalAmount.Sign() <= 0 || !input.TotalAmount.InRange() {
		return fmt.Errorf("%w: total amount must be positive", ErrInvalidAmount)
	}
	for i, amount := range input.MilestoneAmounts {
		if amount.Sign() <= 0 {
			return fmt.Errorf("%w: milestone %d amount must be positive", ErrInvalidAmount, i)
		}
	}
	if input.Beneficiary != nil {
		if *input.Beneficiary == "" || *input.Beneficiary == input.Principal.AccountID {
			return fmt.Errorf("%w: beneficiary", ErrInvalidAddress)
		}
	}
	if input.Asset != nil && *input.Asset == "" {
		return fmt.Errorf("%w: asset", ErrInvalidAddress)
	}
	for _, arbiter := range input.Arbiters {
		if arbiter == "" {
			return fmt.Errorf("%w: arbiter", ErrInvalidAddress)
		}
	}
	return nil
}

func (s *EscrowService) StartWork(ctx context.Context, principal model.Principal, escrowID uint32) (*model.Escrow, error) {
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
		if !escrow.IsBeneficiary(principal.AccountID) {
			return ErrOnlyBeneficiary
		}
		if escrow.Status != model.EscrowStatusPending {
			return ErrInvalidEscrowStatus
		}
		if escrow.WorkStarted {
			return ErrWorkAlreadyStarted
		}

		escrow.WorkStarted = true
		escrow.Status = model.EscrowStatusInProgress
		if escrow.PlatformFee.Sign() > 0 {
			if err := s.custody.AccrueFee(ctx, tx, escrow.Asset, escrow.PlatformFee); err != nil {
				return err
			}
		}
		if err := tx.SaveEscrow(ctx, escrow); err != nil {
			return fmt.Errorf("save escrow: %w", err)
		}
		updated = escrow
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, now, Event{Type: EventWorkStarted, EscrowID: escrowID, Data: updated})
	return updated, nil
}

func (s *EscrowService) GetEscrow(ctx context.Context, escrowID uint32) (*model.Escrow, error) {
	var escrow *model.Escrow
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		escrow, err = requireEscrow(ctx, tx, escrowID)
		return err
	})
	return escrow, err
}

func (s *EscrowService) GetMilestone(ctx context.Context, escrowID, index uint32) (*model.Milestone, error) {
	var milestone *model.Milestone
	err := s.store.View(ctx, func(tx repository.Tx) error {
		escrow, err := requireEscrow(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		milestone, err = loadMilestone(ctx, tx, escrow, index)
		return err
	})
	return milestone, err
}

func (s *EscrowService) GetMilestones(ctx context.Context, escrowID uint32) ([]model.Milestone, error) {
	var milestones []model.Milestone
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := requireEscrow(ctx, tx, escrowID); err != nil {
			return err
		}
		var err error
		milestones, err = tx.ListMilestones(ctx, escrowID)
		return err
	})
	return milestones, err
}

func (s *EscrowService) GetUserEscrows(ctx context.Context, account string) ([]uint32, error) {
	if account == "" {
		return nil, ErrInvalidAddress
	}
	var ids []uint32
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		ids, err = tx.GetUserEscrows(ctx, account)
		return err
	})
	return ids, err
}

// CustodyBalance reports the custody counters of an asset. The native
// asset is addressed by the custody account id.
func (s *EscrowService) CustodyBalance(ctx context.Context, assetKey string) (model.CustodyBalance, error) {
	if assetKey == "" {
		return model.CustodyBalance{}, ErrInvalidAddress
	}
	var balance model.CustodyBalance
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		balance, err = s.custody.Snapshot(ctx, tx, assetKey)
		return err
	})
	return balance, err
}

// AssetCustody reports the custody counters of asset, nil being native.
func (s *EscrowService) AssetCustody(ctx context.Context, asset *string) (model.CustodyBalance, error) {
	return s.CustodyBalance(ctx, s.custody.AssetKey(asset))
}

func (s *EscrowService) Statement(ctx context.Context, escrowID uint32) (model.EscrowStatement, error) {
	var statement model.EscrowStatement
	err := s.store.View(ctx, func(tx repository.Tx) error {
		escrow, err := requireEscrow(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		milestones, err := tx.ListMilestones(ctx, escrowID)
		if err != nil {
			return err
		}
		statement = model.EscrowStatement{Escrow: *escrow, Milestones: milestones, Sequence: s.clock.Sequence()}
		return nil
	})
	return statement, err
}

// AccountEscrows resolves the reverse index of account into full records,
// skipping duplicate entries.
func (s *EscrowService) AccountEscrows(ctx context.Context, account string) (model.AccountExport, error) {
	if account == "" {
		return model.AccountExport{}, ErrInvalidAddress
	}
	export := model.AccountExport{Account: account, Sequence: s.clock.Sequence()}
	err := s.store.View(ctx, func(tx repository.Tx) error {
		ids, err := tx.GetUserEscrows(ctx, account)
		if err != nil {
			return err
		}
		seen := make(map[uint32]struct{}, len(ids))
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			escrow, err := requireEscrow(ctx, tx, id)
			if err != nil {
				return err
			}
			export.Escrows = append(export.Escrows, *escrow)
		}
		return nil
	})
	return export, err
}

func requireCaller(principal model.Principal) error {
	if !principal.IsAuthenticated() {
		return ErrUnauthorized
	}
	return nil
}

func requireEscrow(ctx context.Context, tx repository.EscrowRecords, escrowID uint32) (*model.Escrow, error) {
	if escrowID == 0 {
		return nil, ErrEscrowNotFound
	}
	escrow, err := tx.GetEscrow(ctx, escrowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("load escrow %d: %w", escrowID, err)
	}
	return escrow, nil
}

func loadMilestone(ctx context.Context, tx repository.EscrowRecords, escrow *model.Escrow, index uint32) (*model.Milestone, error) {
	if index >= escrow.MilestoneCount {
		return nil, ErrInvalidMilestone
	}
	milestone, err := tx.GetMilestone(ctx, escrow.ID, index)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidMilestone
		}
		return nil, fmt.Errorf("load milestone %d/%d: %w", escrow.ID, index, err)
	}
	return milestone, nil
}

// currentSettings returns the platform settings, or zero settings before
// the platform is initialized.
func currentSettings(ctx context.Context, tx repository.SettingsStore) (model.Settings, error) {
	settings, err := tx.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Settings{}, nil
		}
		return model.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return *settings, nil
}
