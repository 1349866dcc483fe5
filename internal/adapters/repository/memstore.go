package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/questlog/internal/domain/dedupe"
	"github.com/okian/questlog/internal/domain/model"
	"github.com/okian/questlog/internal/domain/progression"
	"github.com/okian/questlog/pkg/logger"
	"github.com/okian/questlog/pkg/metrics"
)

// memState holds one generation of rows. The committed state and each
// transaction's staged writes share this shape.
type memState struct {
	quests      map[string]model.Quest
	assignments map[string]model.QuestAssignment // key: user, quest
	submissions map[string]model.Submission      // key: submission id
	active      map[string]string                // key: user, quest -> submission id
	awards      map[string][]model.SkillAward    // key: submission id
	ledger      map[string]model.SkillLedgerEntry
}

func newMemState() memState {
	return memState{
		quests:      map[string]model.Quest{},
		assignments: map[string]model.QuestAssignment{},
		submissions: map[string]model.Submission{},
		active:      map[string]string{},
		awards:      map[string][]model.SkillAward{},
		ledger:      map[string]model.SkillLedgerEntry{},
	}
}

// MemoryStore is an in-process Store. Writers are serialized by a single
// lock and stage their writes until fn returns without error, so a failed
// unit of work leaves no trace.
type MemoryStore struct {
	mu     sync.RWMutex
	state  memState
	closed bool

	awardIndex dedupe.Deduper
	log        logger.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.awardIndex == nil {
		o.awardIndex = dedupe.NewInMemoryDeduper()
	}
	return &MemoryStore{
		state:      newMemState(),
		awardIndex: o.awardIndex,
		log:        o.log,
	}
}

// Update runs fn with exclusive access and commits its writes on success.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(sinceMs(start)) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memTx{store: s, staged: newMemState()}
	if err := fn(tx); err != nil {
		tx.rollback(ctx)
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback(ctx)
		return err
	}
	tx.commit()
	return nil
}

// View runs fn against a consistent snapshot. Writes fail with ErrReadOnly.
func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(sinceMs(start)) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memTx{store: s, readOnly: true})
}

// Close releases the store. Later calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memTx struct {
	store    *MemoryStore
	staged   memState
	readOnly bool
	// award keys recorded in the index by this transaction
	recorded []string
}

func pairKey(a, b string) string { return dedupe.Key(a, b) }

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) commit() {
	st := &t.store.state
	for k, v := range t.staged.quests {
		st.quests[k] = v
	}
	for k, v := range t.staged.assignments {
		st.assignments[k] = v
	}
	for k, v := range t.staged.submissions {
		st.submissions[k] = v
	}
	for k, v := range t.staged.active {
		st.active[k] = v
	}
	for k, v := range t.staged.awards {
		st.awards[k] = append(st.awards[k], v...)
	}
	for k, v := range t.staged.ledger {
		st.ledger[k] = v
	}
}

func (t *memTx) rollback(ctx context.Context) {
	for _, k := range t.recorded {
		t.store.awardIndex.Unrecord(ctx, k)
	}
	if len(t.recorded) > 0 {
		t.store.log.Debug(ctx, "rolled back award index", logger.Int("keys", len(t.recorded)))
	}
}

func cloneQuest(q model.Quest) model.Quest {
	q.Skills = slices.Clone(q.Skills)
	return q
}

func (t *memTx) Quest(_ context.Context, id string) (model.Quest, error) {
	if q, ok := t.staged.quests[id]; ok {
		return cloneQuest(q), nil
	}
	if q, ok := t.store.state.quests[id]; ok {
		return cloneQuest(q), nil
	}
	return model.Quest{}, ErrNotFound
}

func (t *memTx) Quests(_ context.Context) ([]model.Quest, error) {
	out := make([]model.Quest, 0, len(t.store.state.quests)+len(t.staged.quests))
	for id, q := range t.store.state.quests {
		if _, ok := t.staged.quests[id]; ok {
			continue
		}
		out = append(out, cloneQuest(q))
	}
	for _, q := range t.staged.quests {
		out = append(out, cloneQuest(q))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) PutQuest(ctx context.Context, q model.Quest) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.Quest(ctx, q.ID); err == nil {
		return ErrConflict
	}
	t.staged.quests[q.ID] = cloneQuest(q)
	return nil
}

func (t *memTx) Assignment(_ context.Context, userID, questID string) (model.QuestAssignment, error) {
	k := pairKey(userID, questID)
	if a, ok := t.staged.assignments[k]; ok {
		return a, nil
	}
	if a, ok := t.store.state.assignments[k]; ok {
		return a, nil
	}
	return model.QuestAssignment{}, ErrNotFound
}

func (t *memTx) AssignmentsForQuest(_ context.Context, questID string) ([]model.QuestAssignment, error) {
	var out []model.QuestAssignment
	for k, a := range t.store.state.assignments {
		if a.QuestID != questID {
			continue
		}
		if _, ok := t.staged.assignments[k]; ok {
			continue
		}
		out = append(out, a)
	}
	for _, a := range t.staged.assignments {
		if a.QuestID == questID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (t *memTx) PutAssignment(_ context.Context, a model.QuestAssignment) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.staged.assignments[pairKey(a.UserID, a.QuestID)] = a
	return nil
}

func (t *memTx) Submission(_ context.Context, id string) (model.Submission, error) {
	if s, ok := t.staged.submissions[id]; ok {
		return s, nil
	}
	if s, ok := t.store.state.submissions[id]; ok {
		return s, nil
	}
	return model.Submission{}, ErrNotFound
}

func (t *memTx) ActiveSubmission(ctx context.Context, userID, questID string) (model.Submission, error) {
	k := pairKey(userID, questID)
	id, ok := t.staged.active[k]
	if !ok {
		id, ok = t.store.state.active[k]
	}
	if !ok {
		return model.Submission{}, ErrNotFound
	}
	return t.Submission(ctx, id)
}

func (t *memTx) SubmissionsForQuest(ctx context.Context, questID string) ([]model.Submission, error) {
	ids := map[string]string{}
	for k, id := range t.store.state.active {
		ids[k] = id
	}
	for k, id := range t.staged.active {
		ids[k] = id
	}
	var out []model.Submission
	for _, id := range ids {
		s, err := t.Submission(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.QuestID == questID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) PutSubmission(ctx context.Context, s model.Submission) error {
	if err := t.writable(); err != nil {
		return err
	}
	k := pairKey(s.UserID, s.QuestID)
	if cur, err := t.ActiveSubmission(ctx, s.UserID, s.QuestID); err == nil && cur.ID != s.ID {
		return ErrConflict
	}
	t.staged.submissions[s.ID] = s
	t.staged.active[k] = s.ID
	return nil
}

func (t *memTx) InsertAward(ctx context.Context, a model.SkillAward) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	k := pairKey(a.SubmissionID, a.SkillName)
	if t.store.awardIndex.SeenAndRecord(ctx, k) {
		return false, nil
	}
	t.recorded = append(t.recorded, k)
	t.staged.awards[a.SubmissionID] = append(t.staged.awards[a.SubmissionID], a)
	return true, nil
}

func (t *memTx) Awards(_ context.Context, submissionID string) ([]model.SkillAward, error) {
	out := slices.Clone(t.store.state.awards[submissionID])
	out = append(out, t.staged.awards[submissionID]...)
	return out, nil
}

func (t *memTx) ledgerEntry(userID, skill string) model.SkillLedgerEntry {
	k := pairKey(userID, skill)
	if e, ok := t.staged.ledger[k]; ok {
		return e
	}
	if e, ok := t.store.state.ledger[k]; ok {
		return e
	}
	return model.SkillLedgerEntry{UserID: userID, SkillName: skill}
}

func (t *memTx) FoldLedger(_ context.Context, userID, skill string, points int, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	e := progression.Fold(t.ledgerEntry(userID, skill), points, at)
	t.staged.ledger[pairKey(userID, skill)] = e
	return nil
}

func (t *memTx) LedgerEntries(_ context.Context, userID string) ([]model.SkillLedgerEntry, error) {
	seen := map[string]bool{}
	var out []model.SkillLedgerEntry
	for k, e := range t.staged.ledger {
		if e.UserID == userID {
			seen[k] = true
			out = append(out, e)
		}
	}
	for k, e := range t.store.state.ledger {
		if e.UserID == userID && !seen[k] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillName < out[j].SkillName })
	return out, nil
}
