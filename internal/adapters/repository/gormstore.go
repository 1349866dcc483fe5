package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/questlog/internal/domain/model"
	"github.com/okian/questlog/pkg/logger"
	"github.com/okian/questlog/pkg/metrics"
)

// SQLSTATE values and classes the store reacts to.
const (
	pgUniqueViolation       = "23505"
	pgClassTxRollback       = "40"
	pgClassConnectionFailed = "08"
)

// GormStore is a Store backed by a relational database through gorm.
// Assignment reads inside Update take a row lock, award inserts skip
// existing (submission, skill) pairs, and ledger folds are single upserts.
type GormStore struct {
	db           *gorm.DB
	log          logger.Logger
	maxRetries   int
	retryBackoff time.Duration
}

var _ Store = (*GormStore)(nil)

// OpenPostgres connects to dsn and prepares the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewGormStore(ctx, db, opts...)
}

// NewGormStore wraps an open gorm handle and migrates the schema.
func NewGormStore(ctx context.Context, db *gorm.DB, opts ...Option) (*GormStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &GormStore{
		db:           db,
		log:          o.log,
		maxRetries:   o.maxRetries,
		retryBackoff: o.retryBackoff,
	}
	if err := db.WithContext(ctx).AutoMigrate(
		&questRow{},
		&questSkillRow{},
		&assignmentRow{},
		&submissionRow{},
		&awardRow{},
		&ledgerRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Update runs fn in a transaction, retrying transient failures.
func (s *GormStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(sinceMs(start)) }()
	return s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			return fn(&gormTx{db: db, lock: true})
		})
	})
}

// View runs fn in a transaction that refuses writes.
func (s *GormStore) View(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(sinceMs(start)) }()
	return s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			return fn(&gormTx{db: db, readOnly: true})
		})
	})
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) withRetry(ctx context.Context, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil || !isTransient(err) || attempt >= s.maxRetries {
			return err
		}
		metrics.RecordPersistenceRetry()
		s.log.Warn(ctx, "retrying transaction after transient failure",
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryBackoff * time.Duration(attempt+1)):
		}
	}
}

// isTransient reports failures worth retrying: serialization failures,
// deadlocks and dropped connections.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case pgClassTxRollback, pgClassConnectionFailed:
			return true
		}
		return false
	}
	return errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}

type gormTx struct {
	db       *gorm.DB
	lock     bool
	readOnly bool
}

func (t *gormTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *gormTx) Quest(ctx context.Context, id string) (model.Quest, error) {
	var row questRow
	if err := t.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return model.Quest{}, translate(err)
	}
	var skills []questSkillRow
	if err := t.db.WithContext(ctx).
		Where("quest_id = ?", id).
		Order("position ASC").
		Find(&skills).Error; err != nil {
		return model.Quest{}, translate(err)
	}
	return row.toModel(skills), nil
}

func (t *gormTx) Quests(ctx context.Context) ([]model.Quest, error) {
	var rows []questRow
	if err := t.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	if len(rows) == 0 {
		return []model.Quest{}, nil
	}
	var skills []questSkillRow
	if err := t.db.WithContext(ctx).Order("quest_id ASC, position ASC").Find(&skills).Error; err != nil {
		return nil, translate(err)
	}
	byQuest := make(map[string][]questSkillRow, len(rows))
	for _, s := range skills {
		byQuest[s.QuestID] = append(byQuest[s.QuestID], s)
	}
	out := make([]model.Quest, len(rows))
	for i, r := range rows {
		out[i] = r.toModel(byQuest[r.ID])
	}
	return out, nil
}

func (t *gormTx) PutQuest(ctx context.Context, q model.Quest) error {
	if err := t.writable(); err != nil {
		return err
	}
	row, skills := toQuestRow(q)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	if len(skills) == 0 {
		return nil
	}
	return translate(t.db.WithContext(ctx).Create(&skills).Error)
}

func (t *gormTx) Assignment(ctx context.Context, userID, questID string) (model.QuestAssignment, error) {
	q := t.db.WithContext(ctx)
	if t.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row assignmentRow
	if err := q.Where("user_id = ? AND quest_id = ?", userID, questID).Take(&row).Error; err != nil {
		return model.QuestAssignment{}, translate(err)
	}
	return row.toModel(), nil
}

func (t *gormTx) AssignmentsForQuest(ctx context.Context, questID string) ([]model.QuestAssignment, error) {
	var rows []assignmentRow
	if err := t.db.WithContext(ctx).
		Where("quest_id = ?", questID).
		Order("user_id ASC").
		Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]model.QuestAssignment, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// PutAssignment updates the existing (user, quest) row or inserts a new
// one. A concurrent insert loses on the unique index with ErrConflict.
func (t *gormTx) PutAssignment(ctx context.Context, a model.QuestAssignment) error {
	if err := t.writable(); err != nil {
		return err
	}
	row := toAssignmentRow(a)
	res := t.db.WithContext(ctx).
		Model(&assignmentRow{}).
		Where("user_id = ? AND quest_id = ?", row.UserID, row.QuestID).
		Updates(map[string]interface{}{
			"status":       row.Status,
			"assigned_at":  row.AssignedAt,
			"started_at":   row.StartedAt,
			"due_at":       row.DueAt,
			"is_mandatory": row.IsMandatory,
			"updated_at":   row.UpdatedAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return translate(t.db.WithContext(ctx).Create(&row).Error)
}

func (t *gormTx) Submission(ctx context.Context, id string) (model.Submission, error) {
	q := t.db.WithContext(ctx)
	if t.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row submissionRow
	if err := q.Where("id = ?", id).Take(&row).Error; err != nil {
		return model.Submission{}, translate(err)
	}
	return row.toModel(), nil
}

func (t *gormTx) ActiveSubmission(ctx context.Context, userID, questID string) (model.Submission, error) {
	q := t.db.WithContext(ctx)
	if t.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row submissionRow
	if err := q.Where("user_id = ? AND quest_id = ?", userID, questID).Take(&row).Error; err != nil {
		return model.Submission{}, translate(err)
	}
	return row.toModel(), nil
}

func (t *gormTx) SubmissionsForQuest(ctx context.Context, questID string) ([]model.Submission, error) {
	var rows []submissionRow
	if err := t.db.WithContext(ctx).
		Where("quest_id = ?", questID).
		Order("submitted_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]model.Submission, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// PutSubmission writes s by id. Replacing the active submission for the
// same (user, quest) keeps its id, so the unique index rejects a second one.
func (t *gormTx) PutSubmission(ctx context.Context, s model.Submission) error {
	if err := t.writable(); err != nil {
		return err
	}
	row := toSubmissionRow(s)
	res := t.db.WithContext(ctx).
		Model(&submissionRow{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"status":        row.Status,
			"payload_kind":  row.PayloadKind,
			"payload_value": row.PayloadValue,
			"submitted_at":  row.SubmittedAt,
			"reviewed_at":   row.ReviewedAt,
			"reviewer_id":   row.ReviewerID,
			"feedback":      row.Feedback,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return translate(t.db.WithContext(ctx).Create(&row).Error)
}

func (t *gormTx) InsertAward(ctx context.Context, a model.SkillAward) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	row := toAwardRow(a)
	res := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "submission_id"}, {Name: "skill_name"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (t *gormTx) Awards(ctx context.Context, submissionID string) ([]model.SkillAward, error) {
	var rows []awardRow
	if err := t.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("skill_name ASC").
		Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]model.SkillAward, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (t *gormTx) FoldLedger(ctx context.Context, userID, skill string, points int, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	if points < 0 {
		points = 0
	}
	at = at.UTC()
	row := ledgerRow{UserID: userID, SkillName: skill, TotalPoints: points, LastAwardedAt: &at}
	return translate(t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "skill_name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_points": gorm.Expr("skill_ledger_entries.total_points + excluded.total_points"),
				"last_awarded_at": gorm.Expr(
					"CASE WHEN skill_ledger_entries.last_awarded_at IS NULL OR excluded.last_awarded_at > skill_ledger_entries.last_awarded_at " +
						"THEN excluded.last_awarded_at ELSE skill_ledger_entries.last_awarded_at END"),
			}),
		}).
		Create(&row).Error)
}

func (t *gormTx) LedgerEntries(ctx context.Context, userID string) ([]model.SkillLedgerEntry, error) {
	var rows []ledgerRow
	if err := t.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("skill_name ASC").
		Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]model.SkillLedgerEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}
