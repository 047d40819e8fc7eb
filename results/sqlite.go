// Package results stores benchmark and replay results in SQLite databases.
package results

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/cachemodel/benchmarks"
)

// DefaultBatchSize is the number of buffered rows that triggers a flush.
const DefaultBatchSize = 10000

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS cache_results
	(
		run_id            VARCHAR(32)  NOT NULL,
		pattern           VARCHAR(200) NOT NULL,
		cache             VARCHAR(200) NOT NULL,
		topology          VARCHAR(32)  NOT NULL,
		policy            VARCHAR(16)  NOT NULL,
		size_bytes        INTEGER      NOT NULL,
		block_size        INTEGER      NOT NULL,
		associativity     INTEGER      NOT NULL,
		accesses          INTEGER      NOT NULL,
		reads             INTEGER      NOT NULL,
		writes            INTEGER      NOT NULL,
		hits              INTEGER      NOT NULL,
		compulsory_misses INTEGER      NOT NULL,
		capacity_misses   INTEGER      NOT NULL,
		conflict_misses   INTEGER      NOT NULL,
		evictions         INTEGER      NOT NULL,
		writebacks        INTEGER      NOT NULL,
		hit_ratio         FLOAT        NOT NULL,
		miss_ratio        FLOAT        NOT NULL,
		amat              FLOAT        NOT NULL,
		wall_time_ns      INTEGER      NOT NULL
	);
`

const insertSQL = `INSERT INTO cache_results VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteRecorder buffers result rows and writes them to a SQLite database
// in batches. Buffered rows are flushed when the program exits through
// atexit.Exit.
type SQLiteRecorder struct {
	*sql.DB
	statement *sql.Stmt

	mu        sync.Mutex
	dbName    string
	runID     string
	pending   []benchmarks.Result
	batchSize int
	closed    bool
	log       *logrus.Entry
}

// NewSQLiteRecorder creates <path>.sqlite3 and its result table. An empty
// path generates a unique name. Existing files are never overwritten.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	runID := xid.New().String()

	r := &SQLiteRecorder{
		dbName:    strings.TrimSuffix(path, ".sqlite3"),
		runID:     runID,
		batchSize: DefaultBatchSize,
	}
	if r.dbName == "" {
		r.dbName = "cachemodel_results_" + runID
	}
	r.log = logrus.WithField("db", r.Filename())

	if err := r.createDatabase(); err != nil {
		return nil, err
	}

	if err := r.createTable(); err != nil {
		_ = r.DB.Close()
		return nil, err
	}

	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			r.log.WithError(err).Error("failed to flush results")
		}
	})

	return r, nil
}

// Filename is the database file name.
func (r *SQLiteRecorder) Filename() string {
	return r.dbName + ".sqlite3"
}

// RunID identifies the rows written by this recorder.
func (r *SQLiteRecorder) RunID() string {
	return r.runID
}

// SetBatchSize changes the number of rows buffered before a flush.
func (r *SQLiteRecorder) SetBatchSize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batchSize = max(n, 1)
}

// Record buffers one result.
func (r *SQLiteRecorder) Record(result benchmarks.Result) error {
	return r.RecordAll([]benchmarks.Result{result})
}

// RecordAll buffers results and flushes once the batch is full.
func (r *SQLiteRecorder) RecordAll(results []benchmarks.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder %s is closed", r.Filename())
	}

	r.pending = append(r.pending, results...)
	if len(r.pending) >= r.batchSize {
		return r.flushLocked()
	}

	return nil
}

// Flush writes all the buffered results in one transaction.
func (r *SQLiteRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	return r.flushLocked()
}

func (r *SQLiteRecorder) flushLocked() error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt := tx.Stmt(r.statement)
	for _, res := range r.pending {
		_, err := stmt.Exec(
			r.runID,
			res.Pattern,
			res.Cache,
			res.Topology,
			res.Policy,
			res.Size,
			res.BlockSize,
			res.Associativity,
			res.Accesses,
			res.Reads,
			res.Writes,
			res.Hits,
			res.CompulsoryMisses,
			res.CapacityMisses,
			res.ConflictMisses,
			res.Evictions,
			res.Writebacks,
			res.HitRatio,
			res.MissRatio,
			res.AMAT,
			res.WallTime.Nanoseconds(),
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert result %s/%s: %w",
				res.Pattern, res.Cache, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}

	r.log.WithField("rows", len(r.pending)).Debug("results flushed")
	r.pending = nil

	return nil
}

// Close flushes the buffered results and closes the database.
func (r *SQLiteRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	flushErr := r.flushLocked()
	r.closed = true

	_ = r.statement.Close()
	if err := r.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return flushErr
}

func (r *SQLiteRecorder) createDatabase() error {
	filename := r.Filename()

	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	r.DB = db
	r.log.Info("recording results")

	return nil
}

func (r *SQLiteRecorder) createTable() error {
	if _, err := r.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	stmt, err := r.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	r.statement = stmt

	return nil
}

// OpenSQLite opens an existing result database.
func OpenSQLite(filename string) (*sql.DB, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("failed to open results: %w", err)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open results: %w", err)
	}

	return db, nil
}

// Load reads every row of a result database in insertion order.
func Load(filename string) ([]benchmarks.Result, error) {
	db, err := OpenSQLite(filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query(`
		SELECT pattern, cache, topology, policy, size_bytes, block_size,
			associativity, accesses, reads, writes, hits, compulsory_misses,
			capacity_misses, conflict_misses, evictions, writebacks,
			hit_ratio, miss_ratio, amat, wall_time_ns
		FROM cache_results ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var loaded []benchmarks.Result
	for rows.Next() {
		var (
			res      benchmarks.Result
			wallTime int64
		)
		err := rows.Scan(
			&res.Pattern,
			&res.Cache,
			&res.Topology,
			&res.Policy,
			&res.Size,
			&res.BlockSize,
			&res.Associativity,
			&res.Accesses,
			&res.Reads,
			&res.Writes,
			&res.Hits,
			&res.CompulsoryMisses,
			&res.CapacityMisses,
			&res.ConflictMisses,
			&res.Evictions,
			&res.Writebacks,
			&res.HitRatio,
			&res.MissRatio,
			&res.AMAT,
			&wallTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.WallTime = time.Duration(wallTime)
		loaded = append(loaded, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	return loaded, nil
}
