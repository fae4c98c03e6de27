package repository

import (
	"context"
	"errors"

	"github.com/subrat243/DeCent-Pay/internal/model"
)

var (
	// ErrNotFound is returned by single-record lookups that find nothing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write would break a uniqueness rule.
	ErrDuplicate = errors.New("duplicate record")
	// ErrReadOnly is returned by writes attempted inside View.
	ErrReadOnly = errors.New("write in read-only transaction")
)

// EscrowRecords is the escrow record store with its per-account reverse index.
type EscrowRecords interface {
	GetEscrow(ctx context.Context, id uint32) (*model.Escrow, error)
	SaveEscrow(ctx context.Context, escrow *model.Escrow) error
	// NextEscrowID returns the id the next created escrow will get.
	NextEscrowID(ctx context.Context) (uint32, error)
	// IncrementNextEscrowID returns the current id and advances the counter.
	IncrementNextEscrowID(ctx context.Context) (uint32, error)
	AddUserEscrow(ctx context.Context, account string, escrowID uint32) error
	GetUserEscrows(ctx context.Context, account string) ([]uint32, error)

	GetMilestone(ctx context.Context, escrowID, index uint32) (*model.Milestone, error)
	SaveMilestone(ctx context.Context, milestone *model.Milestone) error
	ListMilestones(ctx context.Context, escrowID uint32) ([]model.Milestone, error)
}

// CustodyCounters holds the per-asset escrowed and accrued-fee counters.
// Missing counters read as zero.
type CustodyCounters interface {
	EscrowedAmount(ctx context.Context, assetKey string) (model.Amount, error)
	SetEscrowedAmount(ctx context.Context, assetKey string, amount model.Amount) error
	AccruedFees(ctx context.Context, assetKey string) (model.Amount, error)
	SetAccruedFees(ctx context.Context, assetKey string, amount model.Amount) error
}

// Balances backs the ledger transfer facility.
type Balances interface {
	Balance(ctx context.Context, account, assetKey string) (model.Amount, error)
	SetBalance(ctx context.Context, account, assetKey string, amount model.Amount) error
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, settings *model.Settings) error
	IsWhitelistedToken(ctx context.Context, token string) (bool, error)
	WhitelistToken(ctx context.Context, token string) error
	IsAuthorizedArbiter(ctx context.Context, account string) (bool, error)
	AuthorizeArbiter(ctx context.Context, account string) error
}

type Applications interface {
	AddApplication(ctx context.Context, app model.Application) error
	GetApplication(ctx context.Context, escrowID uint32, freelancer string) (*model.Application, error)
	ListApplications(ctx context.Context, escrowID uint32) ([]model.Application, error)
	CountApplications(ctx context.Context, escrowID uint32) (int, error)
}

type Reputations interface {
	Reputation(ctx context.Context, account string) (uint32, error)
	SetReputation(ctx context.Context, account string, points uint32) error
	CompletedEscrows(ctx context.Context, account string) (uint32, error)
	SetCompletedEscrows(ctx context.Context, account string, count uint32) error
	GetRating(ctx context.Context, escrowID uint32) (*model.Rating, error)
	SaveRating(ctx context.Context, rating model.Rating) error
	AverageRating(ctx context.Context, account string) (model.AverageRating, error)
	SetAverageRating(ctx context.Context, account string, avg model.AverageRating) error
}

// Tx is the view of the store inside one serialized transaction.
type Tx interface {
	EscrowRecords
	CustodyCounters
	Balances
	SettingsStore
	Applications
	Reputations
}

// Store runs fn inside a single atomic transaction. Nothing fn wrote is
// visible to anybody if fn returns an error.
//
// View runs fn against a consistent snapshot without taking row locks.
// Writes inside View fail.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}
