package repository

import (
	"context"
	"sync"

	"github.com/subrat243/DeCent-Pay/internal/model"
)

type milestoneKey struct {
	escrowID uint32
	index    uint32
}

type balanceKey struct {
	account  string
	assetKey string
}

type applicationKey struct {
	escrowID   uint32
	freelancer string
}

type memoryState struct {
	nextEscrowID uint32
	escrows      map[uint32]*model.Escrow
	milestones   map[milestoneKey]*model.Milestone
	userEscrows  map[string][]uint32
	escrowed     map[string]model.Amount
	fees         map[string]model.Amount
	balances     map[balanceKey]model.Amount
	settings     *model.Settings
	tokens       map[string]struct{}
	arbiters     map[string]struct{}
	applications map[uint32][]model.Application
	applied      map[applicationKey]int
	reputation   map[string]uint32
	completed    map[string]uint32
	ratings      map[uint32]model.Rating
	averages     map[string]model.AverageRating
}

func newMemoryState() *memoryState {
	return &memoryState{
		nextEscrowID: 1,
		escrows:      map[uint32]*model.Escrow{},
		milestones:   map[milestoneKey]*model.Milestone{},
		userEscrows:  map[string][]uint32{},
		escrowed:     map[string]model.Amount{},
		fees:         map[string]model.Amount{},
		balances:     map[balanceKey]model.Amount{},
		tokens:       map[string]struct{}{},
		arbiters:     map[string]struct{}{},
		applications: map[uint32][]model.Application{},
		applied:      map[applicationKey]int{},
		reputation:   map[string]uint32{},
		completed:    map[string]uint32{},
		ratings:      map[uint32]model.Rating{},
		averages:     map[string]model.AverageRating{},
	}
}

// clone copies the state deeply enough that writes to the copy never reach
// the original. Amounts are immutable and can be shared.
func (s *memoryState) clone() *memoryState {
	out := newMemoryState()
	out.nextEscrowID = s.nextEscrowID
	for k, v := range s.escrows {
		out.escrows[k] = v.Clone()
	}
	for k, v := range s.milestones {
		out.milestones[k] = v.Clone()
	}
	for k, v := range s.userEscrows {
		out.userEscrows[k] = append([]uint32(nil), v...)
	}
	for k, v := range s.escrowed {
		out.escrowed[k] = v
	}
	for k, v := range s.fees {
		out.fees[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	if s.settings != nil {
		settings := *s.settings
		out.settings = &settings
	}
	for k := range s.tokens {
		out.tokens[k] = struct{}{}
	}
	for k := range s.arbiters {
		out.arbiters[k] = struct{}{}
	}
	for k, v := range s.applications {
		out.applications[k] = append([]model.Application(nil), v...)
	}
	for k, v := range s.applied {
		out.applied[k] = v
	}
	for k, v := range s.reputation {
		out.reputation[k] = v
	}
	for k, v := range s.completed {
		out.completed[k] = v
	}
	for k, v := range s.ratings {
		out.ratings[k] = v
	}
	for k, v := range s.averages {
		out.averages[k] = v
	}
	return out
}

// MemoryStore keeps everything in process memory. Write transactions are
// fully serialized and run against a private copy that replaces the
// committed state only when the callback succeeds. Views share the committed
// state under a read lock.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&memoryTx{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{state: s.state, readOnly: true})
}

type memoryTx struct {
	state    *memoryState
	readOnly bool
}

func (t *memoryTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memoryTx) GetEscrow(_ context.Context, id uint32) (*model.Escrow, error) {
	e, ok := t.state.escrows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (t *memoryTx) SaveEscrow(_ context.Context, escrow *model.Escrow) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.escrows[escrow.ID] = escrow.Clone()
	return nil
}

func (t *memoryTx) NextEscrowID(context.Context) (uint32, error) {
	return t.state.nextEscrowID, nil
}

func (t *memoryTx) IncrementNextEscrowID(context.Context) (uint32, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	current := t.state.nextEscrowID
	t.state.nextEscrowID = current + 1
	return current, nil
}

func (t *memoryTx) AddUserEscrow(_ context.Context, account string, escrowID uint32) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.userEscrows[account] = append(t.state.userEscrows[account], escrowID)
	return nil
}

func (t *memoryTx) GetUserEscrows(_ context.Context, account string) ([]uint32, error) {
	ids := t.state.userEscrows[account]
	return append([]uint32{}, ids...), nil
}

func (t *memoryTx) GetMilestone(_ context.Context, escrowID, index uint32) (*model.Milestone, error) {
	m, ok := t.state.milestones[milestoneKey{escrowID: escrowID, index: index}]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (t *memoryTx) SaveMilestone(_ context.Context, milestone *model.Milestone) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.milestones[milestoneKey{escrowID: milestone.EscrowID, index: milestone.Index}] = milestone.Clone()
	return nil
}

func (t *memoryTx) ListMilestones(ctx context.Context, escrowID uint32) ([]model.Milestone, error) {
	escrow, ok := t.state.escrows[escrowID]
	if !ok {
		return []model.Milestone{}, nil
	}
	result := make([]model.Milestone, 0, escrow.MilestoneCount)
	for i := uint32(0); i < escrow.MilestoneCount; i++ {
		if m, ok := t.state.milestones[milestoneKey{escrowID: escrowID, index: i}]; ok {
			result = append(result, *m.Clone())
		}
	}
	return result, nil
}

func (t *memoryTx) EscrowedAmount(_ context.Context, assetKey string) (model.Amount, error) {
	return t.state.escrowed[assetKey], nil
}

func (t *memoryTx) SetEscrowedAmount(_ context.Context, assetKey string, amount model.Amount) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.escrowed[assetKey] = amount
	return nil
}

func (t *memoryTx) AccruedFees(_ context.Context, assetKey string) (model.Amount, error) {
	return t.state.fees[assetKey], nil
}

func (t *memoryTx) SetAccruedFees(_ context.Context, assetKey string, amount model.Amount) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.fees[assetKey] = amount
	return nil
}

func (t *memoryTx) Balance(_ context.Context, account, assetKey string) (model.Amount, error) {
	return t.state.balances[balanceKey{account: account, assetKey: assetKey}], nil
}

func (t *memoryTx) SetBalance(_ context.Context, account, assetKey string, amount model.Amount) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.balances[balanceKey{account: account, assetKey: assetKey}] = amount
	return nil
}

func (t *memoryTx) GetSettings(context.Context) (*model.Settings, error) {
	if t.state.settings == nil {
		return nil, ErrNotFound
	}
	settings := *t.state.settings
	return &settings, nil
}

func (t *memoryTx) SaveSettings(_ context.Context, settings *model.Settings) error {
	if err := t.writable(); err != nil {
		return err
	}
	stored := *settings
	t.state.settings = &stored
	return nil
}

func (t *memoryTx) IsWhitelistedToken(_ context.Context, token string) (bool, error) {
	_, ok := t.state.tokens[token]
	return ok, nil
}

func (t *memoryTx) WhitelistToken(_ context.Context, token string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.tokens[token] = struct{}{}
	return nil
}

func (t *memoryTx) IsAuthorizedArbiter(_ context.Context, account string) (bool, error) {
	_, ok := t.state.arbiters[account]
	return ok, nil
}

func (t *memoryTx) AuthorizeArbiter(_ context.Context, account string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.arbiters[account] = struct{}{}
	return nil
}

func (t *memoryTx) AddApplication(_ context.Context, app model.Application) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := applicationKey{escrowID: app.EscrowID, freelancer: app.Freelancer}
	if _, ok := t.state.applied[key]; ok {
		return ErrDuplicate
	}
	t.state.applications[app.EscrowID] = append(t.state.applications[app.EscrowID], app)
	t.state.applied[key] = len(t.state.applications[app.EscrowID]) - 1
	return nil
}

func (t *memoryTx) GetApplication(_ context.Context, escrowID uint32, freelancer string) (*model.Application, error) {
	pos, ok := t.state.applied[applicationKey{escrowID: escrowID, freelancer: freelancer}]
	if !ok {
		return nil, ErrNotFound
	}
	app := t.state.applications[escrowID][pos]
	return &app, nil
}

func (t *memoryTx) ListApplications(_ context.Context, escrowID uint32) ([]model.Application, error) {
	return append([]model.Application{}, t.state.applications[escrowID]...), nil
}

func (t *memoryTx) CountApplications(_ context.Context, escrowID uint32) (int, error) {
	return len(t.state.applications[escrowID]), nil
}

func (t *memoryTx) Reputation(_ context.Context, account string) (uint32, error) {
	return t.state.reputation[account], nil
}

func (t *memoryTx) SetReputation(_ context.Context, account string, points uint32) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.reputation[account] = points
	return nil
}

func (t *memoryTx) CompletedEscrows(_ context.Context, account string) (uint32, error) {
	return t.state.completed[account], nil
}

func (t *memoryTx) SetCompletedEscrows(_ context.Context, account string, count uint32) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.completed[account] = count
	return nil
}

func (t *memoryTx) GetRating(_ context.Context, escrowID uint32) (*model.Rating, error) {
	r, ok := t.state.ratings[escrowID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memoryTx) SaveRating(_ context.Context, rating model.Rating) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.ratings[rating.EscrowID]; ok {
		return ErrDuplicate
	}
	t.state.ratings[rating.EscrowID] = rating
	return nil
}

func (t *memoryTx) AverageRating(_ context.Context, account string) (model.AverageRating, error) {
	return t.state.averages[account], nil
}

func (t *memoryTx) SetAverageRating(_ context.Context, account string, avg model.AverageRating) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.averages[account] = avg
	return nil
}
