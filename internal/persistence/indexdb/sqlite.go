package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/seanhlewis/mcagentgym/internal/persistence/steplog"
)

// Stats reports queue health for the single-writer goroutine.
type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	EnqueuedTotal     uint64
	DropRunTotal      uint64
	DropStepTotal     uint64
	DropIncidentTotal uint64
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	enqueuedTotal     atomic.Uint64
	dropRunTotal      atomic.Uint64
	dropStepTotal     atomic.Uint64
	dropIncidentTotal atomic.Uint64
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqStep
	reqIncident
)

type req struct {
	kind reqKind

	run runRow
	rec steplog.Record
}

type runRow struct {
	RunID     string
	StartedAt string
	Agents    int
	RawJSON   string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Decisions arrive at inference latency, so this covers minutes of
		// writer backlog before anything drops.
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			agents INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			agent TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			state TEXT NOT NULL,
			task_id TEXT,
			prompt_digest TEXT,
			decision TEXT,
			outcome TEXT,
			err TEXT,
			latency_ms INTEGER NOT NULL,
			PRIMARY KEY (run_id, agent, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_steps_agent_ts ON steps(agent, ts);`,
		`CREATE TABLE IF NOT EXISTS incidents (
			run_id TEXT NOT NULL,
			agent TEXT NOT NULL,
			ts INTEGER NOT NULL,
			level TEXT NOT NULL,
			strategy TEXT NOT NULL,
			line TEXT NOT NULL,
			PRIMARY KEY (run_id, agent, ts)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_agent_ts ON incidents(agent, ts);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordRun registers a run before its steps arrive.
func (s *SQLiteIndex) RecordRun(runID string, startedAt time.Time, agents []string) {
	if s == nil || s.closed.Load() {
		return
	}
	raw, _ := json.Marshal(map[string]any{"agents": agents})
	r := runRow{
		RunID:     runID,
		StartedAt: startedAt.UTC().Format(time.RFC3339Nano),
		Agents:    len(agents),
		RawJSON:   string(raw),
	}
	s.enqueuedTotal.Add(1)
	select {
	case s.ch <- req{kind: reqRun, run: r}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropRunTotal.Add(1)
	}
}

// Record indexes one step-log record, routed by its kind.
func (s *SQLiteIndex) Record(rec steplog.Record) {
	if s == nil || s.closed.Load() {
		return
	}
	kind := reqStep
	if rec.Kind == steplog.KindSuspicion {
		kind = reqIncident
	}
	s.enqueuedTotal.Add(1)
	select {
	case s.ch <- req{kind: kind, rec: rec}:
	default:
		if kind == reqIncident {
			s.dropIncidentTotal.Add(1)
		} else {
			s.dropStepTotal.Add(1)
		}
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		EnqueuedTotal:     s.enqueuedTotal.Load(),
		DropRunTotal:      s.dropRunTotal.Load(),
		DropStepTotal:     s.dropStepTotal.Load(),
		DropIncidentTotal: s.dropIncidentTotal.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,started_at,agents,raw_json) VALUES(?,?,?,?)`)
	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO steps(run_id,agent,seq,ts,state,task_id,prompt_digest,decision,outcome,err,latency_ms) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertIncident, _ := s.db.Prepare(`INSERT OR REPLACE INTO incidents(run_id,agent,ts,level,strategy,line) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertRun != nil {
			_ = insertRun.Close()
		}
		if insertStep != nil {
			_ = insertStep.Close()
		}
		if insertIncident != nil {
			_ = insertIncident.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRun:
			if insertRun == nil {
				continue
			}
			if _, err := tx.Stmt(insertRun).Exec(r.run.RunID, r.run.StartedAt, r.run.Agents, r.run.RawJSON); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqStep:
			if insertStep == nil {
				continue
			}
			rec := r.rec
			if _, err := tx.Stmt(insertStep).Exec(
				rec.RunID,
				rec.Agent,
				int64(rec.Seq),
				rec.TS,
				rec.State,
				rec.TaskID,
				rec.PromptDigest,
				string(rec.Decision),
				rec.Outcome,
				rec.Err,
				rec.LatencyMS,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqIncident:
			if insertIncident == nil {
				continue
			}
			rec := r.rec
			if _, err := tx.Stmt(insertIncident).Exec(
				rec.RunID,
				rec.Agent,
				rec.TS,
				rec.Level,
				rec.Strategy,
				rec.Line,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}

// StepsForAgent returns one agent's indexed steps in sequence order.
func (s *SQLiteIndex) StepsForAgent(runID, agent string) ([]steplog.Record, error) {
	rows, err := s.db.Query(
		`SELECT seq, ts, state, task_id, prompt_digest, decision, outcome, err, latency_ms
		 FROM steps WHERE run_id = ? AND agent = ? ORDER BY seq`, runID, agent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []steplog.Record
	for rows.Next() {
		rec := steplog.Record{Kind: steplog.KindStep, RunID: runID, Agent: agent}
		var taskID, digest, decision, outcome, errStr sql.NullString
		if err := rows.Scan(&rec.Seq, &rec.TS, &rec.State, &taskID, &digest, &decision, &outcome, &errStr, &rec.LatencyMS); err != nil {
			return nil, err
		}
		rec.TaskID = taskID.String
		rec.PromptDigest = digest.String
		if decision.String != "" {
			rec.Decision = json.RawMessage(decision.String)
		}
		rec.Outcome = outcome.String
		rec.Err = errStr.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// IncidentsForAgent returns one agent's suspicion incidents in time order.
func (s *SQLiteIndex) IncidentsForAgent(runID, agent string) ([]steplog.Record, error) {
	rows, err := s.db.Query(
		`SELECT ts, level, strategy, line FROM incidents
		 WHERE run_id = ? AND agent = ? ORDER BY ts`, runID, agent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []steplog.Record
	for rows.Next() {
		rec := steplog.Record{Kind: steplog.KindSuspicion, RunID: runID, Agent: agent}
		if err := rows.Scan(&rec.TS, &rec.Level, &rec.Strategy, &rec.Line); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Runs lists recorded runs, newest first.
func (s *SQLiteIndex) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query(`SELECT run_id, started_at, agents FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var ri RunInfo
		var started string
		if err := rows.Scan(&ri.RunID, &started, &ri.Agents); err != nil {
			return nil, err
		}
		ri.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, ri)
	}
	return out, rows.Err()
}

type RunInfo struct {
	RunID     string
	StartedAt time.Time
	Agents    int
}
