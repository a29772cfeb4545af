package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS chat_runs (
    id TEXT PRIMARY KEY,
    chat_name TEXT NOT NULL,
    participants JSONB NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    state TEXT,
    rounds INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
    run_id TEXT NOT NULL REFERENCES chat_runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    round INTEGER NOT NULL,
    name TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, seq)
)`,
	`CREATE TABLE IF NOT EXISTS executions (
    id TEXT PRIMARY KEY,
    run_id TEXT,
    mode TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_run ON executions(run_id)`,
	`CREATE TABLE IF NOT EXISTS command_results (
    execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    group_name TEXT NOT NULL,
    command TEXT NOT NULL,
    status TEXT NOT NULL,
    output TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (execution_id, seq)
)`,
}

const pgRunColumns = `id, chat_name, participants, status, state, rounds, error, started_at, finished_at`

// postgresTimeout bounds every statement of the postgres stores
const postgresTimeout = 10 * time.Second

// NewPostgresBundle creates a Bundle backed by a Postgres connection pool
func NewPostgresBundle(ctx context.Context, dsn string) (*Bundle, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	return &Bundle{
		Chats:      &PostgresChatStore{pool: pool},
		Executions: &PostgresExecutionStore{pool: pool},
		closer: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

func pgContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), postgresTimeout)
}

// =============================================================================
// PostgresChatStore
// =============================================================================

type PostgresChatStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresChatStore) CreateRun(chatName string, participants []string) (string, error) {
	ctx, cancel := pgContext()
	defer cancel()

	if participants == nil {
		participants = []string{}
	}
	id := generateID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_runs (id, chat_name, participants, started_at) VALUES ($1, $2, $3, $4)`,
		id, chatName, participants, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

func (s *PostgresChatStore) AppendMessage(runID string, msg StoredMessage) error {
	ctx, cancel := pgContext()
	defer cancel()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (run_id, seq, round, name, role, content, created_at)
		 SELECT id, (SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE run_id = $1), $2, $3, $4, $5, $6
		 FROM chat_runs WHERE id = $1`,
		runID, msg.Round, msg.Name, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return requireTag(tag, "run", runID)
}

func (s *PostgresChatStore) FinishRun(id, state string, rounds int, errMsg *string) error {
	ctx, cancel := pgContext()
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_runs SET status = $1, state = $2, rounds = $3, error = $4, finished_at = $5 WHERE id = $6`,
		finishedStatus(errMsg == nil), state, rounds, errMsg, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireTag(tag, "run", id)
}

func (s *PostgresChatStore) GetRun(id string) (*ChatRun, error) {
	ctx, cancel := pgContext()
	defer cancel()

	run, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM chat_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

func (s *PostgresChatStore) ListRuns(limit, offset int) ([]ChatRun, int, error) {
	ctx, cancel := pgContext()
	defer cancel()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chat_runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM chat_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
		lim, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []ChatRun{}
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *run)
	}
	return runs, total, rows.Err()
}

func (s *PostgresChatStore) GetMessages(runID string) ([]StoredMessage, error) {
	if _, err := s.GetRun(runID); err != nil {
		return nil, err
	}
	ctx, cancel := pgContext()
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT seq, round, name, role, content, created_at FROM chat_messages WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.Seq, &m.Round, &m.Name, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// =============================================================================
// PostgresExecutionStore
// =============================================================================

type PostgresExecutionStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresExecutionStore) CreateExecution(runID, mode string) (string, error) {
	ctx, cancel := pgContext()
	defer cancel()

	var run *string
	if runID != "" {
		run = &runID
	}
	id := generateID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO executions (id, run_id, mode, started_at) VALUES ($1, $2, $3, $4)`,
		id, run, mode, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}
	return id, nil
}

func (s *PostgresExecutionStore) RecordCommand(executionID string, rec CommandRecord) error {
	ctx, cancel := pgContext()
	defer cancel()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO command_results (execution_id, seq, group_name, command, status, output, error, created_at)
		 SELECT id, (SELECT COALESCE(MAX(seq), 0) + 1 FROM command_results WHERE execution_id = $1), $2, $3, $4, $5, $6, $7
		 FROM executions WHERE id = $1`,
		executionID, rec.Group, rec.Command, rec.Status, rec.Output, rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return requireTag(tag, "execution", executionID)
}

func (s *PostgresExecutionStore) FinishExecution(id string, success bool) error {
	ctx, cancel := pgContext()
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE executions SET status = $1, finished_at = $2 WHERE id = $3`,
		finishedStatus(success), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	return requireTag(tag, "execution", id)
}

func (s *PostgresExecutionStore) GetExecution(id string) (*ExecutionInfo, error) {
	ctx, cancel := pgContext()
	defer cancel()

	info, err := scanPgExecution(s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	return info, err
}

func (s *PostgresExecutionStore) GetCommands(executionID string) ([]CommandRecord, error) {
	if _, err := s.GetExecution(executionID); err != nil {
		return nil, err
	}
	ctx, cancel := pgContext()
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT seq, group_name, command, status, output, error, created_at
		 FROM command_results WHERE execution_id = $1 ORDER BY seq`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("get commands: %w", err)
	}
	defer rows.Close()

	var recs []CommandRecord
	for rows.Next() {
		var r CommandRecord
		if err := rows.Scan(&r.Seq, &r.Group, &r.Command, &r.Status, &r.Output, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *PostgresExecutionStore) ListExecutions(runID string) ([]ExecutionInfo, error) {
	ctx, cancel := pgContext()
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE COALESCE(run_id, '') = $1 ORDER BY started_at, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []ExecutionInfo
	for rows.Next() {
		info, err := scanPgExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

// =============================================================================
// Helpers
// =============================================================================

func scanPgRun(row pgx.Row) (*ChatRun, error) {
	var (
		run           ChatRun
		state, errMsg *string
	)
	if err := row.Scan(&run.ID, &run.ChatName, &run.Participants, &run.Status, &state, &run.Rounds, &errMsg, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	if state != nil {
		run.State = *state
	}
	run.Error = errMsg
	return &run, nil
}

func scanPgExecution(row pgx.Row) (*ExecutionInfo, error) {
	var (
		info  ExecutionInfo
		runID *string
	)
	if err := row.Scan(&info.ID, &runID, &info.Mode, &info.Status, &info.StartedAt, &info.FinishedAt); err != nil {
		return nil, err
	}
	if runID != nil {
		info.RunID = *runID
	}
	return &info, nil
}

func requireTag(tag pgconn.CommandTag, kind, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
