package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_runs (
    id TEXT PRIMARY KEY,
    chat_name TEXT NOT NULL,
    participants_json TEXT NOT NULL,
    status TEXT DEFAULT 'running',
    state TEXT,
    rounds INTEGER DEFAULT 0,
    error TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS chat_messages (
    run_id TEXT NOT NULL REFERENCES chat_runs(id),
    seq INTEGER NOT NULL,
    round INTEGER NOT NULL,
    name TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS executions (
    id TEXT PRIMARY KEY,
    run_id TEXT,
    mode TEXT NOT NULL,
    status TEXT DEFAULT 'running',
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_executions_run ON executions(run_id);

CREATE TABLE IF NOT EXISTS command_results (
    execution_id TEXT NOT NULL REFERENCES executions(id),
    seq INTEGER NOT NULL,
    group_name TEXT NOT NULL,
    command TEXT NOT NULL,
    status TEXT NOT NULL,
    output TEXT,
    error TEXT,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (execution_id, seq)
);
`

// NewSQLiteBundle creates a Bundle backed by SQLite at the given path
func NewSQLiteBundle(dbPath string) (*Bundle, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps seq allocation race free
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Chats:      &SQLiteChatStore{db: db},
		Executions: &SQLiteExecutionStore{db: db},
		closer:     db.Close,
	}, nil
}

// =============================================================================
// SQLiteChatStore
// =============================================================================

type SQLiteChatStore struct {
	db *sql.DB
}

func (s *SQLiteChatStore) CreateRun(chatName string, participants []string) (string, error) {
	participantsJSON, err := json.Marshal(participants)
	if err != nil {
		return "", err
	}
	id := generateID()
	_, err = s.db.Exec(
		`INSERT INTO chat_runs (id, chat_name, participants_json, started_at) VALUES (?, ?, ?, ?)`,
		id, chatName, string(participantsJSON), time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

func (s *SQLiteChatStore) AppendMessage(runID string, msg StoredMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO chat_messages (run_id, seq, round, name, role, content, created_at)
		 SELECT id, (SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE run_id = ?), ?, ?, ?, ?, ?
		 FROM chat_runs WHERE id = ?`,
		runID, msg.Round, msg.Name, msg.Role, msg.Content, msg.CreatedAt, runID,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return requireRow(res, "run", runID)
}

func (s *SQLiteChatStore) FinishRun(id, state string, rounds int, errMsg *string) error {
	res, err := s.db.Exec(
		`UPDATE chat_runs SET status = ?, state = ?, rounds = ?, error = ?, finished_at = ? WHERE id = ?`,
		finishedStatus(errMsg == nil), state, rounds, errMsg, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireRow(res, "run", id)
}

const runColumns = `id, chat_name, participants_json, status, state, rounds, error, started_at, finished_at`

func (s *SQLiteChatStore) GetRun(id string) (*ChatRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM chat_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

func (s *SQLiteChatStore) ListRuns(limit, offset int) ([]ChatRun, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM chat_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []ChatRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *run)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteChatStore) GetMessages(runID string) ([]StoredMessage, error) {
	if _, err := s.GetRun(runID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT seq, round, name, role, content, created_at FROM chat_messages WHERE run_id = ? ORDER BY seq`,
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
// SQLiteExecutionStore
// =============================================================================

type SQLiteExecutionStore struct {
	db *sql.DB
}

func (s *SQLiteExecutionStore) CreateExecution(runID, mode string) (string, error) {
	id := generateID()
	_, err := s.db.Exec(
		`INSERT INTO executions (id, run_id, mode, started_at) VALUES (?, ?, ?, ?)`,
		id, nullString(runID), mode, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}
	return id, nil
}

func (s *SQLiteExecutionStore) RecordCommand(executionID string, rec CommandRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO command_results (execution_id, seq, group_name, command, status, output, error, created_at)
		 SELECT id, (SELECT COALESCE(MAX(seq), 0) + 1 FROM command_results WHERE execution_id = ?), ?, ?, ?, ?, ?, ?
		 FROM executions WHERE id = ?`,
		executionID, rec.Group, rec.Command, rec.Status, rec.Output, rec.Error, rec.CreatedAt, executionID,
	)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return requireRow(res, "execution", executionID)
}

func (s *SQLiteExecutionStore) FinishExecution(id string, success bool) error {
	res, err := s.db.Exec(
		`UPDATE executions SET status = ?, finished_at = ? WHERE id = ?`,
		finishedStatus(success), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	return requireRow(res, "execution", id)
}

const executionColumns = `id, run_id, mode, status, started_at, finished_at`

func (s *SQLiteExecutionStore) GetExecution(id string) (*ExecutionInfo, error) {
	info, err := scanExecution(s.db.QueryRow(`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	return info, err
}

func (s *SQLiteExecutionStore) GetCommands(executionID string) ([]CommandRecord, error) {
	if _, err := s.GetExecution(executionID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT seq, group_name, command, status, COALESCE(output, ''), COALESCE(error, ''), created_at
		 FROM command_results WHERE execution_id = ? ORDER BY seq`,
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

func (s *SQLiteExecutionStore) ListExecutions(runID string) ([]ExecutionInfo, error) {
	rows, err := s.db.Query(
		`SELECT `+executionColumns+` FROM executions WHERE COALESCE(run_id, '') = ? ORDER BY started_at, rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []ExecutionInfo
	for rows.Next() {
		info, err := scanExecution(rows)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*ChatRun, error) {
	var (
		run              ChatRun
		participantsJSON string
		state, errMsg    sql.NullString
		finishedAt       sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.ChatName, &participantsJSON, &run.Status, &state, &run.Rounds, &errMsg, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participantsJSON), &run.Participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	run.State = state.String
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

func scanExecution(row scanner) (*ExecutionInfo, error) {
	var (
		info       ExecutionInfo
		runID      sql.NullString
		finishedAt sql.NullTime
	)
	if err := row.Scan(&info.ID, &runID, &info.Mode, &info.Status, &info.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	info.RunID = runID.String
	if finishedAt.Valid {
		info.FinishedAt = &finishedAt.Time
	}
	return &info, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
