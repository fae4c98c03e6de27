package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/subrat243/DeCent-Pay/internal/model"
)

// PostgresStore maps every operation onto one database transaction. Inside
// InTx escrow and counter rows are read FOR UPDATE, so two operations
// touching the same escrow or the same asset counters are strictly ordered.
// View runs a read-only repeatable-read transaction that never locks or
// creates rows.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&postgresTx{db: tx})
	})
}

func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&postgresTx{db: tx, readOnly: true})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

type postgresTx struct {
	db       *gorm.DB
	readOnly bool
}

// lockClause is appended to row reads that a write transaction must hold.
func (t *postgresTx) lockClause() string {
	if t.readOnly {
		return ""
	}
	return "FOR UPDATE"
}

type escrowRow struct {
	ID                    uint32
	Depositor             string
	Beneficiary           *string
	Arbiters              string
	RequiredConfirmations uint32
	Asset                 *string
	TotalAmount           model.Amount
	PaidAmount            model.Amount
	PlatformFee           model.Amount
	Deadline              uint32
	Status                string
	WorkStarted           bool
	CreatedSeq            uint32
	MilestoneCount        uint32
	IsOpenJob             bool
	Title                 string
	Description           string
}

func (r escrowRow) toModel() (*model.Escrow, error) {
	arbiters := []string{}
	if r.Arbiters != "" {
		if err := json.Unmarshal([]byte(r.Arbiters), &arbiters); err != nil {
			return nil, fmt.Errorf("decode arbiters of escrow %d: %w", r.ID, err)
		}
	}
	return &model.Escrow{
		ID:                    r.ID,
		Depositor:             r.Depositor,
		Beneficiary:           r.Beneficiary,
		Arbiters:              arbiters,
		RequiredConfirmations: r.RequiredConfirmations,
		Asset:                 r.Asset,
		TotalAmount:           r.TotalAmount,
		PaidAmount:            r.PaidAmount,
		PlatformFee:           r.PlatformFee,
		Deadline:              r.Deadline,
		Status:                model.EscrowStatus(r.Status),
		WorkStarted:           r.WorkStarted,
		CreatedAt:             r.CreatedSeq,
		MilestoneCount:        r.MilestoneCount,
		IsOpenJob:             r.IsOpenJob,
		Title:                 r.Title,
		Description:           r.Description,
	}, nil
}

func (t *postgresTx) GetEscrow(ctx context.Context, id uint32) (*model.Escrow, error) {
	var row escrowRow
	err := t.db.WithContext(ctx).Raw(`
		SELECT
			id,
			depositor,
			beneficiary,
			arbiters::text AS arbiters,
			required_confirmations,
			asset,
			total_amount,
			paid_amount,
			platform_fee,
			deadline,
			status::text AS status,
			work_started,
			created_seq,
			milestone_count,
			is_open_job,
			title,
			description
		FROM escrows
		WHERE id = ?
		`+t.lockClause()+`
	`, id).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, ErrNotFound
	}
	return row.toModel()
}

func (t *postgresTx) SaveEscrow(ctx context.Context, e *model.Escrow) error {
	arbiters := e.Arbiters
	if arbiters == nil {
		arbiters = []string{}
	}
	encoded, err := json.Marshal(arbiters)
	if err != nil {
		return fmt.Errorf("encode arbiters: %w", err)
	}
	return t.db.WithContext(ctx).Exec(`
		INSERT INTO escrows (
			id,
			depositor,
			beneficiary,
			arbiters,
			required_confirmations,
			asset,
			total_amount,
			paid_amount,
			platform_fee,
			deadline,
			status,
			work_started,
			created_seq,
			milestone_count,
			is_open_job,
			title,
			description
		) VALUES (?, ?, ?, ?::jsonb, ?, ?, ?, ?, ?, ?, ?::escrow_status, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			beneficiary = EXCLUDED.beneficiary,
			paid_amount = EXCLUDED.paid_amount,
			deadline = EXCLUDED.deadline,
			status = EXCLUDED.status,
			work_started = EXCLUDED.work_started,
			is_open_job = EXCLUDED.is_open_job
	`,
		e.ID,
		e.Depositor,
		e.Beneficiary,
		string(encoded),
		e.RequiredConfirmations,
		e.Asset,
		e.TotalAmount,
		e.PaidAmount,
		e.PlatformFee,
		e.Deadline,
		string(e.Status),
		e.WorkStarted,
		e.CreatedAt,
		e.MilestoneCount,
		e.IsOpenJob,
		e.Title,
		e.Description,
	).Error
}

func (t *postgresTx) NextEscrowID(ctx context.Context) (uint32, error) {
	var next uint32
	if err := t.db.WithContext(ctx).Raw(`
		SELECT next_id FROM escrow_counter WHERE id = 1
	`).Scan(&next).Error; err != nil {
		return 0, err
	}
	if next == 0 {
		next = 1
	}
	return next, nil
}

func (t *postgresTx) IncrementNextEscrowID(ctx context.Context) (uint32, error) {
	var current uint32
	if err := t.db.WithContext(ctx).Raw(`
		INSERT INTO escrow_counter (id, next_id) VALUES (1, 2)
		ON CONFLICT (id) DO UPDATE SET next_id = escrow_counter.next_id + 1
		RETURNING next_id - 1
	`).Scan(&current).Error; err != nil {
		return 0, err
	}
	return current, nil
}

func (t *postgresTx) AddUserEscrow(ctx context.Context, account string, escrowID uint32) error {
	return t.db.WithContext(ctx).Exec(`
		INSERT INTO user_escrows (account_id, escrow_id) VALUES (?, ?)
	`, account, escrowID).Error
}

func (t *postgresTx) GetUserEscrows(ctx context.Context, account string) ([]uint32, error) {
	ids := []uint32{}
	if err := t.db.WithContext(ctx).Raw(`
		SELECT escrow_id
		FROM user_escrows
		WHERE account_id = ?
		ORDER BY seq ASC
	`, account).Scan(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

type milestoneRow struct {
	EscrowID                    uint32
	Idx                         uint32
	Description                 string
	Amount                      model.Amount
	Status                      string
	SubmittedAt                 uint32
	ApprovedAt                  uint32
	DisputedAt                  uint32
	DisputedBy                  *string
	DisputeReason               *string
	RejectionReason             *string
	ResolutionOutcome           *string
	ResolutionBeneficiaryAmount model.Amount
	ResolutionDepositorAmount   model.Amount
	ResolvedBy                  *string
	ResolvedAt                  *uint32
}

const milestoneColumns = `
	escrow_id,
	idx,
	description,
	amount,
	status::text AS status,
	submitted_at,
	approved_at,
	disputed_at,
	disputed_by,
	dispute_reason,
	rejection_reason,
	resolution_outcome,
	resolution_beneficiary_amount,
	resolution_depositor_amount,
	resolved_by,
	resolved_at
`

func (r milestoneRow) toModel() model.Milestone {
	m := model.Milestone{
		EscrowID:        r.EscrowID,
		Index:           r.Idx,
		Description:     r.Description,
		Amount:          r.Amount,
		Status:          model.MilestoneStatus(r.Status),
		SubmittedAt:     r.SubmittedAt,
		ApprovedAt:      r.ApprovedAt,
		DisputedAt:      r.DisputedAt,
		DisputedBy:      r.DisputedBy,
		DisputeReason:   r.DisputeReason,
		RejectionReason: r.RejectionReason,
	}
	if r.ResolutionOutcome != nil {
		res := &model.DisputeResolution{
			Outcome:           model.DisputeOutcome(*r.ResolutionOutcome),
			BeneficiaryAmount: r.ResolutionBeneficiaryAmount,
			DepositorAmount:   r.ResolutionDepositorAmount,
		}
		if r.ResolvedBy != nil {
			res.ResolvedBy = *r.ResolvedBy
		}
		if r.ResolvedAt != nil {
			res.ResolvedAt = *r.ResolvedAt
		}
		m.Resolution = res
	}
	return m
}

func (t *postgresTx) GetMilestone(ctx context.Context, escrowID, index uint32) (*model.Milestone, error) {
	var rows []milestoneRow
	err := t.db.WithContext(ctx).Raw(`
		SELECT `+milestoneColumns+`
		FROM milestones
		WHERE escrow_id = ? AND idx = ?
		`+t.lockClause()+`
	`, escrowID, index).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	m := rows[0].toModel()
	return &m, nil
}

func (t *postgresTx) SaveMilestone(ctx context.Context, m *model.Milestone) error {
	var (
		outcome           *string
		beneficiaryAmount *model.Amount
		depositorAmount   *model.Amount
		resolvedBy        *string
		resolvedAt        *uint32
	)
	if m.Resolution != nil {
		o := string(m.Resolution.Outcome)
		outcome = &o
		beneficiaryAmount = &m.Resolution.BeneficiaryAmount
		depositorAmount = &m.Resolution.DepositorAmount
		resolvedBy = &m.Resolution.ResolvedBy
		resolvedAt = &m.Resolution.ResolvedAt
	}
	return t.db.WithContext(ctx).Exec(`
		INSERT INTO milestones (
			escrow_id,
			idx,
			description,
			amount,
			status,
			submitted_at,
			approved_at,
			disputed_at,
			disputed_by,
			dispute_reason,
			rejection_reason,
			resolution_outcome,
			resolution_beneficiary_amount,
			resolution_depositor_amount,
			resolved_by,
			resolved_at
		) VALUES (?, ?, ?, ?, ?::milestone_status, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (escrow_id, idx) DO UPDATE SET
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			submitted_at = EXCLUDED.submitted_at,
			approved_at = EXCLUDED.approved_at,
			disputed_at = EXCLUDED.disputed_at,
			disputed_by = EXCLUDED.disputed_by,
			dispute_reason = EXCLUDED.dispute_reason,
			rejection_reason = EXCLUDED.rejection_reason,
			resolution_outcome = EXCLUDED.resolution_outcome,
			resolution_beneficiary_amount = EXCLUDED.resolution_beneficiary_amount,
			resolution_depositor_amount = EXCLUDED.resolution_depositor_amount,
			resolved_by = EXCLUDED.resolved_by,
			resolved_at = EXCLUDED.resolved_at
	`,
		m.EscrowID,
		m.Index,
		m.Description,
		m.Amount,
		string(m.Status),
		m.SubmittedAt,
		m.ApprovedAt,
		m.DisputedAt,
		m.DisputedBy,
		m.DisputeReason,
		m.RejectionReason,
		outcome,
		beneficiaryAmount,
		depositorAmount,
		resolvedBy,
		resolvedAt,
	).Error
}

func (t *postgresTx) ListMilestones(ctx context.Context, escrowID uint32) ([]model.Milestone, error) {
	var rows []milestoneRow
	if err := t.db.WithContext(ctx).Raw(`
		SELECT `+milestoneColumns+`
		FROM milestones
		WHERE escrow_id = ?
		ORDER BY idx ASC
	`, escrowID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]model.Milestone, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

type custodyRow struct {
	AssetKey    string
	Escrowed    model.Amount
	AccruedFees model.Amount
}

// lockCustodyRow makes sure the counter row exists and holds its lock for
// the rest of the transaction. In a view a missing row reads as zero.
func (t *postgresTx) lockCustodyRow(ctx context.Context, assetKey string) (custodyRow, error) {
	var row custodyRow
	db := t.db.WithContext(ctx)
	if !t.readOnly {
		if err := db.Exec(`
			INSERT INTO custody_counters (asset_key) VALUES (?)
			ON CONFLICT (asset_key) DO NOTHING
		`, assetKey).Error; err != nil {
			return row, err
		}
	}
	err := db.Raw(`
		SELECT asset_key, escrowed, accrued_fees
		FROM custody_counters
		WHERE asset_key = ?
		`+t.lockClause()+`
	`, assetKey).Scan(&row).Error
	return row, err
}

func (t *postgresTx) EscrowedAmount(ctx context.Context, assetKey string) (model.Amount, error) {
	row, err := t.lockCustodyRow(ctx, assetKey)
	return row.Escrowed, err
}

func (t *postgresTx) SetEscrowedAmount(ctx context.Context, assetKey string, amount model.Amount) error {
	return t.db.WithContext(ctx).Exec(`
		INSERT INTO custody_counters (asset_key, escrowed) VALUES (?, ?)
		ON CONFLICT (asset_key) DO UPDATE SET escrowed = EXCLUDED.escrowed
	`, assetKey, amount).Error
}

func (t *postgresTx) AccruedFees(ctx context.Context, assetKey string) (model.Amount, error) {
	row, err := t.lockCustodyRow(ctx, assetKey)
	return row.AccruedFees, err
}

func (t *postgresTx) SetAccruedFees(ctx context.Context, assetKey string, amount model.Amount) error {
	return t.db.WithContext(ctx).Exec(`
		INSERT INTO custody_counters (asset_key, accrued_fees) VALUES (?, ?)
		ON CONFLICT (asset_key) DO UPDATE SET accrued_fees = EXCLUDED.accrued_fees
	`, assetKey, amount).Error
}

func (t *postgresTx) Balance(ctx context.Context, account, assetKey string) (model.Amount, error) {
	db := t.db.WithContext(ctx)
	if !t.readOnly {
		if err := db.Exec(`
			INSERT INTO account_balances (account_id, asset_key) VALUES (?, ?)
			ON CONFLICT (account_id, asset_key) DO NOTHING
		`, account, assetKey).Error; err != nil {
			return model.Amount{}, err
		}
	}
	var row struct {
		Amount model.Amount
	}
	err := db.Raw(`
		SELECT amount
		FROM account_balances
		WHERE account_id = ? AND asset_key = ?
		`+t.lockClause()+`
	`, account, assetKey).Scan(&row).Error
	return row.Amount, err
}

func (t *postgresTx) SetBalance(ctx context.Context, account, assetKey string, amount model.Amount) error {
	return t.db.WithContext(ctx).Exec(`
		INSERT INTO account_balances (account_id, asset_key, amount) VALUES (?, ?, ?)
		ON CONFLICT (account_id, asset_key) DO UPDATE SET amount = EXCLUDED.amount
	`, account, assetKey, amount).Error
}

func (t *postgresTx) GetSettings(ctx context.Context) (*model.Settings, error) {
	var rows []model.Settings
	if err := t.db.WithContext(ctx).Raw(`
		SELECT owner, fee_collector, platform_fee_bp, job_creation_paused
		FROM platform_settings
		WHERE id = 1
	`).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (t *postgresTx) SaveSettings(ctx context.Context, settings *model.Settings) error {
	return t.db.WithContext(ctx).Exec(`
		INSERT INTO platform_settings (id, owner, fee_collector, platform_fee_bp, job_creation_paused)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			fee_collector = EXCLUDED.fee_collector,
			platform_fee_bp = EXCLUDED.platform_fee_bp,
			job_creation_paused = EXCLUDED.job_creation_paused
	`, settings.Owner, settings.FeeCollector, settings.PlatformFeeBP, settings.JobCreationPaused).Error
}

func (t *postgresTx) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var found bool
	if err := t.db.WithContext(ctx).Raw(query, args...).Scan(&found).Error; err != nil {
		return false, err
	}
	return found, nil
}

func (t *postgresTx) IsWhitelistedToken(ctx context.Context, token string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM whitelisted_tokens WHERE token = ?)`, token)
}

func (t *postgresTx) WhitelistToken(ctx context.Context, token string) error {
	return t.db.WithContext(ctx).Exec(`
		INSERT INTO whitelisted_tokens (token) VALUES (?) ON CONFLICT (token) DO NOTHING
	`, token).Error
}

func (t *postgresTx) IsAuthorizedArbiter(ctx context.Context, account string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM authorized_arbiters WHERE account_id = ?)`, account)
}

func (t *postgresTx) AuthorizeArbiter(ctx context.Context, account string) error {
	return t.db.WithContext(ctx).Exec(`
		INSERT INTO authorized_arbiters (account_id) VALUES (?) ON CONFLICT (account_id) DO NOTHING
	`, account).Error
}

func (t *postgresTx) AddApplication(ctx context.Context, app model.Application) error {
	err := t.db.WithContext(ctx).Exec(`
		INSERT INTO job_applications (escrow_id, freelancer, cover_letter, proposed_timeline, applied_at)
		VALUES (?, ?, ?, ?, ?)
	`, app.EscrowID, app.Freelancer, app.CoverLetter, app.ProposedTimeline, app.AppliedAt).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

const applicationColumns = `escrow_id, freelancer, cover_letter, proposed_timeline, applied_at`

func (t *postgresTx) GetApplication(ctx context.Context, escrowID uint32, freelancer string) (*model.Application, error) {
	var apps []model.Application
	if err := t.db.WithContext(ctx).Raw(`
		SELECT `+applicationColumns+`
		FROM job_applications
		WHERE escrow_id = ? AND freelancer = ?
	`, escrowID, freelancer).Scan(&apps).Error; err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, ErrNotFound
	}
	return &apps[0], nil
}

func (t *postgresTx) ListApplications(ctx context.Context, escrowID uint32) ([]model.Application, error) {
	apps := []model.Application{}
	if err := t.db.WithContext(ctx).Raw(`
		SELECT `+applicationColumns+`
		FROM job_applications
		WHERE escrow_id = ?
		ORDER BY seq ASC
	`, escrowID).Scan(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (t *postgresTx) CountApplications(ctx context.Context, escrowID uint32) (int, error) {
	var count int64
	if err := t.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) FROM job_applications WHERE escrow_id = ?
	`, escrowID).Scan(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

type reputationRow struct {
	AccountID        string
	Points           uint32
	CompletedEscrows uint32
	RatingTotal      uint32
	RatingCount      uint32
}

func (t *postgresTx) lockReputation(ctx context.Context, account string) (reputationRow, error) {
	var row reputationRow
	db := t.db.WithContext(ctx)
	if !t.readOnly {
		if err := db.Exec(`
			INSERT INTO reputations (account_id) VALUES (?)
			ON CONFLICT (account_id) DO NOTHING
		`, account).Error; err != nil {
			return row, err
		}
	}
	err := db.Raw(`
		SELECT account_id, points, completed_escrows, rating_total, rating_count
		FROM reputations
		WHERE account_id = ?
		`+t.lockClause()+`
	`, account).Scan(&row).Error
	return row, err
}

func (t *postgresTx) setReputationColumn(ctx context.Context, account, column string, value uint32) error {
	// column is always one of the fixed names below, never user input.
	return t.db.WithContext(ctx).Exec(fmt.Sprintf(`
		INSERT INTO reputations (account_id, %[1]s) VALUES (?, ?)
		ON CONFLICT (account_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s
	`, column), account, value).Error
}

func (t *postgresTx) Reputation(ctx context.Context, account string) (uint32, error) {
	row, err := t.lockReputation(ctx, account)
	return row.Points, err
}

func (t *postgresTx) SetReputation(ctx context.Context, account string, points uint32) error {
	return t.setReputationColumn(ctx, account, "points", points)
}

func (t *postgresTx) CompletedEscrows(ctx context.Context, account string) (uint32, error) {
	row, err := t.lockReputation(ctx, account)
	return row.CompletedEscrows, err
}

func (t *postgresTx) SetCompletedEscrows(ctx context.Context, account string, count uint32) error {
	return t.setReputationColumn(ctx, account, "completed_escrows", count)
}

func (t *postgresTx) GetRating(ctx context.Context, escrowID uint32) (*model.Rating, error) {
	var ratings []model.Rating
	if err := t.db.WithContext(ctx).Raw(`
		SELECT escrow_id, freelancer, client, rating, review, rated_at
		FROM ratings
		WHERE escrow_id = ?
	`, escrowID).Scan(&ratings).Error; err != nil {
		return nil, err
	}
	if len(ratings) == 0 {
		return nil, ErrNotFound
	}
	return &ratings[0], nil
}

func (t *postgresTx) SaveRating(ctx context.Context, rating model.Rating) error {
	err := t.db.WithContext(ctx).Exec(`
		INSERT INTO ratings (escrow_id, freelancer, client, rating, review, rated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rating.EscrowID, rating.Freelancer, rating.Client, rating.Rating, rating.Review, rating.RatedAt).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (t *postgresTx) AverageRating(ctx context.Context, account string) (model.AverageRating, error) {
	row, err := t.lockReputation(ctx, account)
	return model.AverageRating{Total: row.RatingTotal, Count: row.RatingCount}, err
}

func (t *postgresTx) SetAverageRating(ctx context.Context, account string, avg model.AverageRating) error {
	return t.db.WithContext(ctx).Exec(`
		INSERT INTO reputations (account_id, rating_total, rating_count) VALUES (?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			rating_total = EXCLUDED.rating_total,
			rating_count = EXCLUDED.rating_count
	`, account, avg.Total, avg.Count).Error
}
