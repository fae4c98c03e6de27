package model

// Principal is the authenticated caller taken from the bearer token.
type Principal struct {
	AccountID string
}

func (p Principal) IsAuthenticated() bool {
	return p.AccountID != ""
}

// Settings is the administrative configuration of the platform.
type Settings struct {
	Owner             string `json:"owner"`
	FeeCollector      string `json:"fee_collector"`
	PlatformFeeBP     uint32 `json:"platform_fee_bp"`
	JobCreationPaused bool   `json:"job_creation_paused"`
}

type Application struct {
	EscrowID         uint32 `json:"escrow_id"`
	Freelancer       string `json:"freelancer"`
	CoverLetter      string `json:"cover_letter"`
	ProposedTimeline uint32 `json:"proposed_timeline"`
	AppliedAt        uint32 `json:"applied_at"`
}

type Rating struct {
	EscrowID   uint32 `json:"escrow_id"`
	Freelancer string `json:"freelancer"`
	Client     string `json:"client"`
	Rating     uint32 `json:"rating"`
	Review     string `json:"review"`
	RatedAt    uint32 `json:"rated_at"`
}

// AverageRating keeps the running sum and count of ratings for a freelancer.
type AverageRating struct {
	Total uint32 `json:"total"`
	Count uint32 `json:"count"`
}

type Badge string

const (
	BadgeBeginner     Badge = "BEGINNER"
	BadgeIntermediate Badge = "INTERMEDIATE"
	BadgeAdvanced     Badge = "ADVANCED"
	BadgeExpert       Badge = "EXPERT"
)

func BadgeFor(completed uint32) Badge {
	switch {
	case completed >= 50:
		return BadgeExpert
	case completed >= 15:
		return BadgeAdvanced
	case completed >= 5:
		return BadgeIntermediate
	default:
		return BadgeBeginner
	}
}

type ReputationSummary struct {
	Account          string        `json:"account"`
	Reputation       uint32        `json:"reputation"`
	CompletedEscrows uint32        `json:"completed_escrows"`
	AverageRating    AverageRating `json:"average_rating"`
	Badge            Badge         `json:"badge"`
}

// CustodyBalance is a snapshot of the two per-asset custody counters.
type CustodyBalance struct {
	AssetKey    string `json:"asset_key"`
	Escrowed    Amount `json:"escrowed"`
	AccruedFees Amount `json:"accrued_fees"`
}

// EscrowStatement is the input of the PDF statement generator.
type EscrowStatement struct {
	Escrow     Escrow
	Milestones []Milestone
	Sequence   uint32
}

// AccountExport is the input of the spreadsheet export.
type AccountExport struct {
	Account  string
	Escrows  []Escrow
	Sequence uint32
}
