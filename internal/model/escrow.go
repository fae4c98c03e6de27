package model

type EscrowStatus string

const (
	EscrowStatusPending    EscrowStatus = "PENDING"
	EscrowStatusInProgress EscrowStatus = "IN_PROGRESS"
	EscrowStatusReleased   EscrowStatus = "RELEASED"
	EscrowStatusRefunded   EscrowStatus = "REFUNDED"
	EscrowStatusDisputed   EscrowStatus = "DISPUTED"
	EscrowStatusExpired    EscrowStatus = "EXPIRED"
)

type MilestoneStatus string

const (
	MilestoneStatusNotStarted MilestoneStatus = "NOT_STARTED"
	MilestoneStatusSubmitted  MilestoneStatus = "SUBMITTED"
	MilestoneStatusApproved   MilestoneStatus = "APPROVED"
	MilestoneStatusDisputed   MilestoneStatus = "DISPUTED"
	MilestoneStatusResolved   MilestoneStatus = "RESOLVED"
	MilestoneStatusRejected   MilestoneStatus = "REJECTED"
)

// Escrow is one funded engagement. Deadline and CreatedAt are ledger
// sequence values, not wall-clock seconds.
type Escrow struct {
	ID                    uint32       `json:"id"`
	Depositor             string       `json:"depositor"`
	Beneficiary           *string      `json:"beneficiary,omitempty"`
	Arbiters              []string     `json:"arbiters"`
	RequiredConfirmations uint32       `json:"required_confirmations"`
	Asset                 *string      `json:"asset,omitempty"`
	TotalAmount           Amount       `json:"total_amount"`
	PaidAmount            Amount       `json:"paid_amount"`
	PlatformFee           Amount       `json:"platform_fee"`
	Deadline              uint32       `json:"deadline"`
	Status                EscrowStatus `json:"status"`
	WorkStarted           bool         `json:"work_started"`
	CreatedAt             uint32       `json:"created_at"`
	MilestoneCount        uint32       `json:"milestone_count"`
	IsOpenJob             bool         `json:"is_open_job"`
	Title                 string       `json:"title"`
	Description           string       `json:"description"`
}

// Remaining is the part of the total still held in custody for this escrow.
func (e *Escrow) Remaining() Amount {
	return e.TotalAmount.Sub(e.PaidAmount)
}

func (e *Escrow) IsDepositor(account string) bool {
	return account != "" && e.Depositor == account
}

func (e *Escrow) IsBeneficiary(account string) bool {
	return account != "" && e.Beneficiary != nil && *e.Beneficiary == account
}

// HoldsFunds reports whether the escrow still counts towards the per-asset
// escrowed counter.
func (e *Escrow) HoldsFunds() bool {
	switch e.Status {
	case EscrowStatusPending, EscrowStatusInProgress, EscrowStatusDisputed:
		return true
	default:
		return false
	}
}

func (e *Escrow) Clone() *Escrow {
	out := *e
	if e.Arbiters != nil {
		out.Arbiters = append([]string(nil), e.Arbiters...)
	}
	out.Beneficiary = cloneString(e.Beneficiary)
	out.Asset = cloneString(e.Asset)
	return &out
}

type DisputeOutcome string

const (
	DisputeOutcomeRelease DisputeOutcome = "RELEASE"
	DisputeOutcomeRefund  DisputeOutcome = "REFUND"
	DisputeOutcomeSplit   DisputeOutcome = "SPLIT"
)

type DisputeResolution struct {
	Outcome           DisputeOutcome `json:"outcome"`
	BeneficiaryAmount Amount         `json:"beneficiary_amount"`
	DepositorAmount   Amount         `json:"depositor_amount"`
	ResolvedBy        string         `json:"resolved_by"`
	ResolvedAt        uint32         `json:"resolved_at"`
}

type Milestone struct {
	EscrowID        uint32             `json:"escrow_id"`
	Index           uint32             `json:"index"`
	Description     string             `json:"description"`
	Amount          Amount             `json:"amount"`
	Status          MilestoneStatus    `json:"status"`
	SubmittedAt     uint32             `json:"submitted_at"`
	ApprovedAt      uint32             `json:"approved_at"`
	DisputedAt      uint32             `json:"disputed_at"`
	DisputedBy      *string            `json:"disputed_by,omitempty"`
	DisputeReason   *string            `json:"dispute_reason,omitempty"`
	RejectionReason *string            `json:"rejection_reason,omitempty"`
	Resolution      *DisputeResolution `json:"resolution,omitempty"`
}

func (m *Milestone) Clone() *Milestone {
	out := *m
	out.DisputedBy = cloneString(m.DisputedBy)
	out.DisputeReason = cloneString(m.DisputeReason)
	out.RejectionReason = cloneString(m.RejectionReason)
	if m.Resolution != nil {
		r := *m.Resolution
		out.Resolution = &r
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr is a small helper for optional account and asset fields.
func StringPtr(s string) *string {
	return &s
}
