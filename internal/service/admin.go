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

// AdminService owns the platform settings: owner, fee collector, fee rate,
// token whitelist, arbiter registry and the job-creation pause flag.
type AdminService struct {
	store     repository.Store
	transfers *LedgerTransfer
	clock     ledger.Clock
	events    emitter
	log       zerolog.Logger
}

func NewAdminService(store repository.Store, transfers *LedgerTransfer, clock ledger.Clock, publisher EventPublisher, log zerolog.Logger) *AdminService {
	return &AdminService{
		store:     store,
		transfers: transfers,
		clock:     clock,
		events:    emitter{publisher: publisher, log: log},
		log:       log,
	}
}

func (s *AdminService) Initialize(ctx context.Context, owner, feeCollector string, feeBP uint32) (*model.Settings, error) {
	if owner == "" || feeCollector == "" {
		return nil, ErrInvalidAddress
	}
	var settings *model.Settings
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetSettings(ctx); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load settings: %w", err)
		}
		if feeBP > MaxPlatformFeeBP {
			return ErrFeeTooHigh
		}
		settings = &model.Settings{Owner: owner, FeeCollector: feeCollector, PlatformFeeBP: feeBP}
		return tx.SaveSettings(ctx, settings)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("owner", owner).Uint32("fee_bp", feeBP).Msg("platform initialized")
	return settings, nil
}

// Bootstrap initializes the platform on first start and whitelists tokens.
// An already initialized platform keeps its stored settings.
func (s *AdminService) Bootstrap(ctx context.Context, owner, feeCollector string, feeBP uint32, tokens []string) error {
	if _, err := s.Initialize(ctx, owner, feeCollector, feeBP); err != nil && !errors.Is(err, ErrAlreadyInitialized) {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	return s.store.InTx(ctx, func(tx repository.Tx) error {
		for _, token := range tokens {
			if token == "" {
				continue
			}
			if err := tx.WhitelistToken(ctx, token); err != nil {
				return fmt.Errorf("whitelist %s: %w", token, err)
			}
		}
		return nil
	})
}

func (s *AdminService) GetSettings(ctx context.Context) (*model.Settings, error) {
	var settings *model.Settings
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		settings, err = initializedSettings(ctx, tx)
		return err
	})
	return settings, err
}

func (s *AdminService) GetOwner(ctx context.Context) (string, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return "", err
	}
	return settings.Owner, nil
}

func (s *AdminService) GetPlatformFeeBP(ctx context.Context) (uint32, error) {
	var bp uint32
	err := s.store.View(ctx, func(tx repository.Tx) error {
		settings, err := currentSettings(ctx, tx)
		bp = settings.PlatformFeeBP
		return err
	})
	return bp, err
}

func (s *AdminService) IsJobCreationPaused(ctx context.Context) (bool, error) {
	var paused bool
	err := s.store.View(ctx, func(tx repository.Tx) error {
		settings, err := currentSettings(ctx, tx)
		paused = settings.JobCreationPaused
		return err
	})
	return paused, err
}

// IsWhitelistedToken reports whether asset may back new escrows. The native
// asset always may.
func (s *AdminService) IsWhitelistedToken(ctx context.Context, asset *string) (bool, error) {
	if asset == nil {
		return true, nil
	}
	var ok bool
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		ok, err = tx.IsWhitelistedToken(ctx, *asset)
		return err
	})
	return ok, err
}

func (s *AdminService) IsAuthorizedArbiter(ctx context.Context, account string) (bool, error) {
	var ok bool
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		ok, err = tx.IsAuthorizedArbiter(ctx, account)
		return err
	})
	return ok, err
}

func (s *AdminService) SetPlatformFeeBP(ctx context.Context, principal model.Principal, feeBP uint32) (*model.Settings, error) {
	return s.updateSettings(ctx, principal, func(settings *model.Settings) error {
		if feeBP > MaxPlatformFeeBP {
			return ErrFeeTooHigh
		}
		settings.PlatformFeeBP = feeBP
		return nil
	})
}

func (s *AdminService) SetFeeCollector(ctx context.Context, principal model.Principal, collector string) (*model.Settings, error) {
	return s.updateSettings(ctx, principal, func(settings *model.Settings) error {
		if collector == "" {
			return ErrInvalidAddress
		}
		settings.FeeCollector = collector
		return nil
	})
}

func (s *AdminService) SetOwner(ctx context.Context, principal model.Principal, owner string) (*model.Settings, error) {
	return s.updateSettings(ctx, principal, func(settings *model.Settings) error {
		if owner == "" {
			return ErrInvalidAddress
		}
		settings.Owner = owner
		return nil
	})
}

func (s *AdminService) SetJobCreationPaused(ctx context.Context, principal model.Principal, paused bool) (*model.Settings, error) {
	return s.updateSettings(ctx, principal, func(settings *model.Settings) error {
		settings.JobCreationPaused = paused
		return nil
	})
}

func (s *AdminService) updateSettings(ctx context.Context, principal model.Principal, apply func(*model.Settings) error) (*model.Settings, error) {
	if err := requireCaller(principal); err != nil {
		return nil, err
	}
	var settings *model.Settings
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := requireOwner(ctx, tx, principal); err != nil {
			return err
		}
		current, err := initializedSettings(ctx, tx)
		if err != nil {
			return err
		}
		if err := apply(current); err != nil {
			return err
		}
		settings = current
		return tx.SaveSettings(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	s.events.emit(ctx, s.clock.Sequence(), Event{Type: EventSettingsChanged, Data: settings})
	return settings, nil
}

func (s *AdminService) WhitelistToken(ctx context.Context, principal model.Principal, token string) error {
	if err := requireCaller(principal); err != nil {
		return err
	}
	if token == "" {
		return ErrInvalidAddress
	}
	return s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := requireOwner(ctx, tx, principal); err != nil {
			return err
		}
		return tx.WhitelistToken(ctx, token)
	})
}

func (s *AdminService) AuthorizeArbiter(ctx context.Context, principal model.Principal, arbiter string) error {
	if err := requireCaller(principal); err != nil {
		return err
	}
	if arbiter == "" {
		return ErrInvalidAddress
	}
	return s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := requireOwner(ctx, tx, principal); err != nil {
			return err
		}
		return tx.AuthorizeArbiter(ctx, arbiter)
	})
}

// Deposit credits an account balance on the internal ledger and returns
// the new balance.
func (s *AdminService) Deposit(ctx context.Context, principal model.Principal, account string, asset *string, amount model.Amount) (model.Amount, error) {
	if err := requireCaller(principal); err != nil {
		return model.Amount{}, err
	}
	if account == "" {
		return model.Amount{}, ErrInvalidAddress
	}
	var balance model.Amount
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := requireOwner(ctx, tx, principal); err != nil {
			return err
		}
		if asset != nil {
			ok, err := tx.IsWhitelistedToken(ctx, *asset)
			if err != nil {
				return err
			}
			if !ok {
				return ErrTokenNotWhitelisted
			}
		}
		var err error
		balance, err = s.transfers.Credit(ctx, tx, asset, account, amount)
		return err
	})
	if err != nil {
		return model.Amount{}, err
	}
	s.log.Info().Str("account", account).Str("amount", amount.String()).Msg("balance credited")
	return balance, nil
}

func (s *AdminService) Balance(ctx context.Context, account string, asset *string) (model.Amount, error) {
	var balance model.Amount
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		balance, err = tx.Balance(ctx, account, balanceKey(asset))
		return err
	})
	return balance, err
}

func initializedSettings(ctx context.Context, tx repository.SettingsStore) (*model.Settings, error) {
	settings, err := tx.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

func requireOwner(ctx context.Context, tx repository.SettingsStore, principal model.Principal) error {
	settings, err := initializedSettings(ctx, tx)
	if err != nil {
		return err
	}
	if settings.Owner != principal.AccountID {
		return ErrNotOwner
	}
	return nil
}
