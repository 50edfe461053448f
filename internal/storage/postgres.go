package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/quiz-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// withinTx runs fn in a transaction, rolling back on error
func (r *PostgresRepository) withinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- Questions ---

const questionColumns = `id, category, question_text, options, option_a, option_b, option_c, option_d, correct_answer, explanation, is_premium, created_at`

// scanQuestion reads a question row and normalizes legacy option and
// correct-answer shapes into the canonical form.
func scanQuestion(row rowScanner) (*models.Question, error) {
	var q models.Question
	var optionsJSON []byte
	var optA, optB, optC, optD, correct sql.NullString

	if err := row.Scan(
		&q.ID,
		&q.Category,
		&q.Text,
		&optionsJSON,
		&optA, &optB, &optC, &optD,
		&correct,
		&q.Explanation,
		&q.IsPremium,
		&q.CreatedAt,
	); err != nil {
		return nil, err
	}

	var options []string
	if optionsJSON != nil {
		if err := json.Unmarshal(optionsJSON, &options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
	}
	q.Options = models.NormalizeOptions(options,
		nullStringPtr(optA), nullStringPtr(optB), nullStringPtr(optC), nullStringPtr(optD))

	if correct.Valid {
		q.CorrectAnswer = models.NormalizeCorrectAnswer(correct.String)
	}

	return &q, nil
}

// GetQuestion retrieves a question by ID
func (r *PostgresRepository) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`

	q, err := scanQuestion(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

// ListQuestions returns every question passing the filter
func (r *PostgresRepository) ListQuestions(ctx context.Context, filter models.QuestionFilter) ([]*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions`

	switch filter {
	case models.FilterExcludePremium:
		query += ` WHERE is_premium = FALSE`
	case models.FilterPremiumOnly:
		query += ` WHERE is_premium = TRUE`
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}

	return questions, rows.Err()
}

// CreateQuestion inserts a question, replacing one with the same ID
func (r *PostgresRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	var correct sql.NullString
	if q.CorrectAnswer != nil {
		correct = sql.NullString{String: strconv.Itoa(*q.CorrectAnswer), Valid: true}
	}

	query := `
		INSERT INTO questions (id, category, question_text, options, correct_answer, explanation, is_premium, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET category = EXCLUDED.category, question_text = EXCLUDED.question_text, options = EXCLUDED.options,
		    correct_answer = EXCLUDED.correct_answer, explanation = EXCLUDED.explanation, is_premium = EXCLUDED.is_premium
	`

	_, err = r.pool.Exec(ctx, query,
		q.ID,
		q.Category,
		q.Text,
		optionsJSON,
		correct,
		q.Explanation,
		q.IsPremium,
		q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}

	return nil
}

// DeleteQuestion removes a question, reporting whether it existed
func (r *PostgresRepository) DeleteQuestion(ctx context.Context, id string) (bool, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete question: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// CountQuestions returns the pool size
func (r *PostgresRepository) CountQuestions(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return n, nil
}

// --- Users ---

const userColumns = `id, email, full_name, bio, password_hash, is_admin, is_premium, notify_new_questions, created_at,
	total_tests, average_score, xp, level, streak_current, streak_best, last_active`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var lastActive sql.NullTime

	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.Bio,
		&u.PasswordHash,
		&u.IsAdmin,
		&u.IsPremium,
		&u.NotifyNewQuestions,
		&u.CreatedAt,
		&u.TotalTests,
		&u.AverageScore,
		&u.XP,
		&u.Level,
		&u.StreakCurrent,
		&u.StreakBest,
		&lastActive,
	); err != nil {
		return nil, err
	}

	if lastActive.Valid {
		u.LastActive = &lastActive.Time
	}
	return &u, nil
}

// CreateUser inserts a new account
func (r *PostgresRepository) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, email, full_name, bio, password_hash, is_admin, is_premium, notify_new_questions, created_at, level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		u.ID,
		u.Email,
		u.FullName,
		u.Bio,
		u.PasswordHash,
		u.IsAdmin,
		u.IsPremium,
		u.NotifyNewQuestions,
		u.CreatedAt,
		max(1, u.Level),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUser retrieves a user by ID
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *PostgresRepository) getUser(ctx context.Context, query, arg string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Leaderboard returns users with at least one test, best average first
func (r *PostgresRepository) Leaderboard(ctx context.Context, limit int) ([]*models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users
		WHERE total_tests > 0
		ORDER BY average_score DESC, id
		LIMIT $1
	`, userColumns)

	return r.listUsers(ctx, query, limitArg(limit))
}

// ListNotifiableUsers returns users that opted into new-question notifications
func (r *PostgresRepository) ListNotifiableUsers(ctx context.Context) ([]*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE notify_new_questions = TRUE ORDER BY id`, userColumns)
	return r.listUsers(ctx, query)
}

func (r *PostgresRepository) listUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// SetPremium toggles a user's premium flag
func (r *PostgresRepository) SetPremium(ctx context.Context, id string, premium bool) error {
	result, err := r.pool.Exec(ctx, `UPDATE users SET is_premium = $2 WHERE id = $1`, id, premium)
	if err != nil {
		return fmt.Errorf("failed to update premium flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfile writes the non-nil fields of update
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error {
	query := `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
		    bio = COALESCE($3, bio),
		    notify_new_questions = COALESCE($4, notify_new_questions)
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, update.FullName, update.Bio, update.NotifyNewQuestions)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsers returns accounts newest first
func (r *PostgresRepository) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY created_at DESC, id LIMIT $1`, userColumns)
	return r.listUsers(ctx, query, limitArg(limit))
}

// CountUsers returns the number of accounts
func (r *PostgresRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// DeleteUser removes an account; dependent rows go through ON DELETE CASCADE
func (r *PostgresRepository) DeleteUser(ctx context.Context, id string) (bool, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// --- Sessions ---

// CreateSession creates a new test session record
func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.TestSession) error {
	questionsJSON, err := json.Marshal(s.QuestionIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	answersJSON, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	query := `
		INSERT INTO test_sessions (id, user_id, questions, answers, completed, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		questionsJSON,
		answersJSON,
		s.Completed,
		s.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession retrieves a session owned by userID
func (r *PostgresRepository) GetSession(ctx context.Context, id, userID string) (*models.TestSession, error) {
	query := `
		SELECT id, user_id, questions, answers, completed, started_at, completed_at, result
		FROM test_sessions
		WHERE id = $1 AND user_id = $2
	`

	var s models.TestSession
	var questionsJSON, answersJSON, resultJSON []byte
	var completedAt sql.NullTime

	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&s.ID,
		&s.UserID,
		&questionsJSON,
		&answersJSON,
		&s.Completed,
		&s.StartedAt,
		&completedAt,
		&resultJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}

	if questionsJSON != nil {
		if err := json.Unmarshal(questionsJSON, &s.QuestionIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
		}
	}

	s.Answers, err = decodeAnswers(answersJSON)
	if err != nil {
		return nil, err
	}

	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &s.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	return &s, nil
}

// decodeAnswers accepts integer or string-typed indices, dropping anything else
func decodeAnswers(data []byte) (map[string]int, error) {
	answers := make(map[string]int)
	if data == nil {
		return answers, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	for qid, v := range raw {
		if n, ok := models.CoerceAnswer(v); ok {
			answers[qid] = n
		}
	}
	return answers, nil
}

// SetAnswer upserts a single answer with one atomic statement
func (r *PostgresRepository) SetAnswer(ctx context.Context, id, userID, questionID string, selected int) error {
	query := `
		UPDATE test_sessions
		SET answers = jsonb_set(answers, ARRAY[$3::text], to_jsonb($4::int), true)
		WHERE id = $1 AND user_id = $2 AND completed = FALSE
	`

	result, err := r.pool.Exec(ctx, query, id, userID, questionID, selected)
	if err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.missingOrCompleted(ctx, r.pool, id)
	}

	return nil
}

// CompleteSession marks the session completed and updates the owner's
// aggregate in a single transaction. The conditional update on
// completed = FALSE decides the single winner.
func (r *PostgresRepository) CompleteSession(ctx context.Context, id string, result *models.ScoringResult, completedAt time.Time, update AggregateFunc) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	return r.withinTx(ctx, func(tx pgx.Tx) error {
		var userID string
		err := tx.QueryRow(ctx, `
			UPDATE test_sessions
			SET completed = TRUE, completed_at = $2, result = $3
			WHERE id = $1 AND completed = FALSE
			RETURNING user_id
		`, id, completedAt, resultJSON).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.missingOrCompleted(ctx, tx, id)
			}
			return fmt.Errorf("failed to complete session: %w", err)
		}

		if update == nil {
			return nil
		}

		var agg models.UserAggregate
		var lastActive sql.NullTime
		err = tx.QueryRow(ctx, `
			SELECT total_tests, average_score, xp, level, streak_current, streak_best, last_active
			FROM users WHERE id = $1
			FOR UPDATE
		`, userID).Scan(
			&agg.TotalTests,
			&agg.AverageScore,
			&agg.XP,
			&agg.Level,
			&agg.StreakCurrent,
			&agg.StreakBest,
			&lastActive,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Account removed mid-test; the session still completes.
				return nil
			}
			return fmt.Errorf("failed to load user aggregate: %w", err)
		}
		if lastActive.Valid {
			agg.LastActive = &lastActive.Time
		}

		next := update(agg)

		_, err = tx.Exec(ctx, `
			UPDATE users
			SET total_tests = $2, average_score = $3, xp = $4, level = $5,
			    streak_current = $6, streak_best = $7, last_active = $8
			WHERE id = $1
		`,
			userID,
			next.TotalTests,
			next.AverageScore,
			next.XP,
			next.Level,
			next.StreakCurrent,
			next.StreakBest,
			nullTime(next.LastActive),
		)
		if err != nil {
			return fmt.Errorf("failed to update user aggregate: %w", err)
		}

		return nil
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresRepository) missingOrCompleted(ctx context.Context, q querier, id string) error {
	var completed bool
	err := q.QueryRow(ctx, `SELECT completed FROM test_sessions WHERE id = $1`, id).Scan(&completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to check session: %w", err)
	}
	if completed {
		return ErrAlreadyCompleted
	}
	return ErrSessionNotFound
}

// DeleteStaleSessions removes never-completed sessions started before the cutoff
func (r *PostgresRepository) DeleteStaleSessions(ctx context.Context, startedBefore time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM test_sessions WHERE completed = FALSE AND started_at < $1`, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Results ---

// AppendResult inserts a history record
func (r *PostgresRepository) AppendResult(ctx context.Context, tr *models.TestResult) error {
	breakdownJSON, err := json.Marshal(tr.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	query := `
		INSERT INTO test_results (id, session_id, user_id, user_name, score, percentage, total_questions, correct_answers, questions_with_answers, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		tr.ID,
		tr.SessionID,
		tr.UserID,
		tr.UserName,
		tr.Score,
		tr.Percentage,
		tr.TotalQuestions,
		tr.CorrectAnswers,
		breakdownJSON,
		tr.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append result: %w", err)
	}

	return nil
}

// RecentResults returns a user's latest results, newest first
func (r *PostgresRepository) RecentResults(ctx context.Context, userID string, limit int) ([]*models.TestResult, error) {
	query := `
		SELECT id, session_id, user_id, user_name, score, percentage, total_questions, correct_answers, questions_with_answers, completed_at
		FROM test_results
		WHERE user_id = $1
		ORDER BY completed_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []*models.TestResult
	for rows.Next() {
		var tr models.TestResult
		var breakdownJSON []byte

		if err := rows.Scan(
			&tr.ID,
			&tr.SessionID,
			&tr.UserID,
			&tr.UserName,
			&tr.Score,
			&tr.Percentage,
			&tr.TotalQuestions,
			&tr.CorrectAnswers,
			&breakdownJSON,
			&tr.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		if err := json.Unmarshal(breakdownJSON, &tr.Questions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal breakdown: %w", err)
		}

		results = append(results, &tr)
	}

	return results, rows.Err()
}

// CountResults returns the number of completed tests on record
func (r *PostgresRepository) CountResults(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM test_results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

// CountResultsSince counts a user's results completed at or after since
func (r *PostgresRepository) CountResultsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM test_results WHERE user_id = $1 AND completed_at >= $2`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

// --- Notifications ---

// CreateNotifications inserts notifications in one batch
func (r *PostgresRepository) CreateNotifications(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, n := range ns {
		batch.Queue(`
			INSERT INTO notifications (id, user_id, title, message, type, read, question_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, n.ID, n.UserID, n.Title, n.Message, string(n.Type), n.Read, nullString(n.QuestionID), n.CreatedAt)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to create notifications: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first
func (r *PostgresRepository) ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, title, message, type, read, question_id, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		var typ string
		var questionID sql.NullString

		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &typ, &n.Read, &questionID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = models.NotificationType(typ)
		n.QuestionID = questionID.String
		out = append(out, &n)
	}

	return out, rows.Err()
}

// MarkNotificationRead flags one of the user's notifications as read
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// --- API Clients ---

// GetClientByApiKey retrieves an API client by its key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}

	if permissionsJSON != nil {
		if err := json.Unmarshal(permissionsJSON, &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`, apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}
	return nil
}

// Helper functions for nullable values

// limitArg maps a non-positive limit to NULL, which LIMIT treats as unbounded
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
