package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the local Store backing implementation: one sqlite
// database per group directory, WAL mode for concurrent readers while a
// single writer appends fragments. Mirrors the teacher's
// store.SQLiteBM25Index setup (pure-Go driver, WAL, single-writer pool,
// startup PRAGMAs) adapted from an FTS5 text index to dense/sparse
// vector fragments.
type SQLiteStore struct {
	mu    sync.RWMutex
	db    *sql.DB
	path  string
	lock  *writeLock
	codec *codec
}

var _ Store = (*SQLiteStore)(nil)

// Options configures a SQLiteStore.
type Options struct {
	// ZstdLevel is the zstd compression level applied to dense fragment
	// and PutBlob blobs before they're persisted (sparse cell values are
	// stored uncompressed); 0 uses the library default.
	ZstdLevel int
}

// OpenStore opens (creating if absent) a sqlite-backed store at path. The
// write lock file lives in path's directory.
func OpenStore(path string, opts Options) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	lock, err := newWriteLock(dir)
	if err != nil {
		return nil, err
	}

	dsn := path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, fmt.Errorf("pragma %q: %w", p, err))
		}
	}

	level := opts.ZstdLevel
	if level == 0 {
		level = 3
	}
	cdc, err := newCodec(level)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, path: path, lock: lock, codec: cdc}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schemas (
			uri TEXT PRIMARY KEY,
			array_kind TEXT NOT NULL,
			elem_kind INTEGER NOT NULL,
			cols INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dense_fragments (
			uri TEXT NOT NULL,
			fragment_id TEXT NOT NULL,
			ts_lo INTEGER NOT NULL,
			ts_hi INTEGER NOT NULL,
			col_lo INTEGER NOT NULL,
			col_hi INTEGER NOT NULL,
			elem_kind INTEGER NOT NULL,
			cols INTEGER NOT NULL,
			blob BLOB NOT NULL,
			PRIMARY KEY (uri, fragment_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dense_fragments_ts ON dense_fragments(uri, ts_lo, ts_hi)`,
		`CREATE TABLE IF NOT EXISTS sparse_cells (
			uri TEXT NOT NULL,
			fragment_id TEXT NOT NULL,
			external_id INTEGER NOT NULL,
			cell_ts INTEGER NOT NULL,
			value BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sparse_cells_lookup ON sparse_cells(uri, external_id, cell_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_sparse_cells_ts ON sparse_cells(uri, cell_ts)`,
		`CREATE TABLE IF NOT EXISTS blobs (
			uri TEXT NOT NULL,
			ts INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (uri, ts)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, fmt.Errorf("migrate: %w", err))
		}
	}
	return nil
}

// Create registers a new array's schema.
func (s *SQLiteStore) Create(ctx context.Context, uri string, schema Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kind string
	var elemKind vecmath.Kind
	var cols int
	switch {
	case schema.Dense != nil:
		kind, elemKind, cols = "dense", schema.Dense.Kind, schema.Dense.Cols
	case schema.Sparse != nil:
		kind, elemKind, cols = "sparse", schema.Sparse.Kind, schema.Sparse.Cols
	default:
		return tdberrors.InvalidArgument("schema must set Dense or Sparse")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO schemas (uri, array_kind, elem_kind, cols) VALUES (?, ?, ?, ?)`,
		uri, kind, int(elemKind), cols)
	if err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	return nil
}

func (s *SQLiteStore) schemaFor(ctx context.Context, uri string) (kind string, elemKind vecmath.Kind, cols int, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT array_kind, elem_kind, cols FROM schemas WHERE uri = ?`, uri)
	var ek int
	if scanErr := row.Scan(&kind, &ek, &cols); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", 0, 0, tdberrors.New(tdberrors.ErrCodeFragmentNotFound, fmt.Sprintf("array %q not created", uri), nil)
		}
		return "", 0, 0, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, scanErr)
	}
	return kind, vecmath.Kind(ek), cols, nil
}

// Open returns a merged view of uri restricted to ts.
func (s *SQLiteStore) Open(ctx context.Context, uri string, mode Mode, ts TSRange) (Array, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kind, elemKind, cols, err := s.schemaFor(ctx, uri)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "dense":
		return s.openDense(ctx, uri, elemKind, cols, ts)
	case "sparse":
		return s.openSparse(ctx, uri, ts)
	default:
		return nil, tdberrors.New(tdberrors.ErrCodeStorageCorrupt, fmt.Sprintf("unknown array kind %q for %q", kind, uri), nil)
	}
}

func (s *SQLiteStore) openDense(ctx context.Context, uri string, elemKind vecmath.Kind, cols int, ts TSRange) (Array, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fragment_id, ts_lo, col_lo, col_hi, blob FROM dense_fragments
		 WHERE uri = ? AND ts_lo >= ? AND ts_lo <= ?
		 ORDER BY ts_lo ASC, col_lo ASC`,
		uri, ts.Lo, ts.Hi)
	if err != nil {
		return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	defer rows.Close()

	maxCol := 0
	type frag struct {
		colLo, colHi int
		blob         []byte
	}
	var frags []frag
	for rows.Next() {
		var f frag
		var fragID string
		var tsLo int64
		if err := rows.Scan(&fragID, &tsLo, &f.colLo, &f.colHi, &f.blob); err != nil {
			return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		if f.colHi > maxCol {
			maxCol = f.colHi
		}
		frags = append(frags, f)
	}

	m := vecmath.NewMatrix(elemKind, maxCol, cols)
	for _, f := range frags {
		data, err := s.codec.decompress(f.blob)
		if err != nil {
			return nil, tdberrors.New(tdberrors.ErrCodeStorageCorrupt, fmt.Sprintf("decompress fragment for %q: %v", uri, err), err)
		}
		block := &vecmath.Matrix{Kind: elemKind, Rows: f.colHi - f.colLo, Cols: cols}
		block.SetBytes(data)
		for i := 0; i < block.Rows; i++ {
			m.SetRow(f.colLo+i, block.Row(i))
		}
	}

	return &sqliteDenseArray{tsRange: ts, matrix: m, size: maxCol}, nil
}

func (s *SQLiteStore) openSparse(ctx context.Context, uri string, ts TSRange) (Array, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_id, cell_ts, value FROM sparse_cells
		 WHERE uri = ? AND cell_ts >= ? AND cell_ts <= ?
		 ORDER BY external_id ASC, cell_ts ASC`,
		uri, ts.Lo, ts.Hi)
	if err != nil {
		return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	defer rows.Close()

	latest := make(map[uint64]SparseCell)
	for rows.Next() {
		var extID uint64
		var cellTS int64
		var value []byte
		if err := rows.Scan(&extID, &cellTS, &value); err != nil {
			return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		cur, ok := latest[extID]
		if ok && uint64(cellTS) < cur.Timestamp {
			continue
		}
		cell := SparseCell{ExternalID: extID, Timestamp: uint64(cellTS)}
		if value != nil {
			cell.Value = vecmath.BytesToFloat32s(value)
		}
		latest[extID] = cell
	}

	cells := make([]SparseCell, 0, len(latest))
	for _, c := range latest {
		cells = append(cells, c)
	}

	return &sqliteSparseArray{tsRange: ts, cells: cells}, nil
}

// Append writes a new fragment. For dense arrays cells must be
// *vecmath.Matrix (rows appended after the current max row of fragments
// written at the same ts; a new ts starts at row 0);
// for sparse arrays cells must be []SparseCell (cell_ts is overridden by
// the ts argument, matching the single-timestamp-per-call contract).
func (s *SQLiteStore) Append(ctx context.Context, uri string, cells any, ts uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeConcurrentWriter, err)
	}
	defer s.lock.Unlock()

	kind, elemKind, cols, err := s.schemaFor(ctx, uri)
	if err != nil {
		return err
	}

	switch kind {
	case "dense":
		m, ok := cells.(*vecmath.Matrix)
		if !ok {
			return tdberrors.TypeMismatch("dense Append requires *vecmath.Matrix cells")
		}
		if m.Cols != cols {
			return tdberrors.ShapeMismatch(fmt.Sprintf("append cols %d does not match schema cols %d", m.Cols, cols))
		}
		return s.appendDense(ctx, uri, elemKind, m, ts)
	case "sparse":
		rows, ok := cells.([]SparseCell)
		if !ok {
			return tdberrors.TypeMismatch("sparse Append requires []SparseCell cells")
		}
		return s.appendSparse(ctx, uri, rows, ts)
	default:
		return tdberrors.New(tdberrors.ErrCodeStorageCorrupt, fmt.Sprintf("unknown array kind %q for %q", kind, uri), nil)
	}
}

func (s *SQLiteStore) appendDense(ctx context.Context, uri string, elemKind vecmath.Kind, m *vecmath.Matrix, ts uint64) error {
	// Row offsets accumulate only across shards of the SAME ingestion
	// timestamp (a single generation written via multiple Append calls).
	// A new ts starts a fresh generation at row 0: each ingestion
	// publishes an independent full snapshot, never a column-range
	// extension of a prior generation's array.
	var colLo sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(col_hi) FROM dense_fragments WHERE uri = ? AND ts_lo = ? AND ts_hi = ?`,
		uri, ts, ts).Scan(&colLo); err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	start := 0
	if colLo.Valid {
		start = int(colLo.Int64)
	}

	compressed := s.codec.compress(m.Bytes())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dense_fragments (uri, fragment_id, ts_lo, ts_hi, col_lo, col_hi, elem_kind, cols, blob)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uri, uuid.NewString(), ts, ts, start, start+m.Rows, int(elemKind), m.Cols, compressed)
	if err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	return nil
}

func (s *SQLiteStore) appendSparse(ctx context.Context, uri string, cells []SparseCell, ts uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	defer tx.Rollback()

	fragID := uuid.NewString()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sparse_cells (uri, fragment_id, external_id, cell_ts, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	defer stmt.Close()

	for _, c := range cells {
		var value []byte
		if len(c.Value) > 0 {
			value = vecmath.Float32sToBytes(c.Value)
		}
		if _, err := stmt.ExecContext(ctx, uri, fragID, c.ExternalID, ts, value); err != nil {
			return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	return nil
}

// Consolidate merges fragments that share the same write timestamp into
// one (dense) or collapses many small append fragments of the sparse
// updates log into a single fragment id (sparse), dropping the physical
// fragment count without discarding any cell version.
func (s *SQLiteStore) Consolidate(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeConcurrentWriter, err)
	}
	defer s.lock.Unlock()

	kind, _, _, err := s.schemaFor(ctx, uri)
	if err != nil {
		return err
	}

	if kind == "sparse" {
		mergedID := uuid.NewString()
		_, err := s.db.ExecContext(ctx,
			`UPDATE sparse_cells SET fragment_id = ? WHERE uri = ?`, mergedID, uri)
		if err != nil {
			return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		return nil
	}

	// Dense: merge fragments sharing identical (ts_lo, ts_hi) cohorts,
	// since those are the shard outputs of one ingestion run.
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ts_lo, ts_hi FROM dense_fragments WHERE uri = ?`, uri)
	if err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	var cohorts [][2]int64
	for rows.Next() {
		var lo, hi int64
		if err := rows.Scan(&lo, &hi); err != nil {
			rows.Close()
			return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		cohorts = append(cohorts, [2]int64{lo, hi})
	}
	rows.Close()

	for _, cohort := range cohorts {
		if err := s.mergeDenseCohort(ctx, uri, cohort[0], cohort[1]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) mergeDenseCohort(ctx context.Context, uri string, tsLo, tsHi int64) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fragment_id, col_lo, col_hi, elem_kind, cols, blob FROM dense_fragments
		 WHERE uri = ? AND ts_lo = ? AND ts_hi = ? ORDER BY col_lo ASC`,
		uri, tsLo, tsHi)
	if err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}

	type frag struct {
		id           string
		colLo, colHi int
		elemKind     vecmath.Kind
		cols         int
		blob         []byte
	}
	var frags []frag
	for rows.Next() {
		var f frag
		var ek int
		if err := rows.Scan(&f.id, &f.colLo, &f.colHi, &ek, &f.cols, &f.blob); err != nil {
			rows.Close()
			return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		f.elemKind = vecmath.Kind(ek)
		frags = append(frags, f)
	}
	rows.Close()

	if len(frags) <= 1 {
		return nil
	}

	colLo, colHi := frags[0].colLo, frags[len(frags)-1].colHi
	merged := vecmath.NewMatrix(frags[0].elemKind, colHi-colLo, frags[0].cols)
	for _, f := range frags {
		data, err := s.codec.decompress(f.blob)
		if err != nil {
			return tdberrors.New(tdberrors.ErrCodeStorageCorrupt, fmt.Sprintf("decompress fragment %s: %v", f.id, err), err)
		}
		block := &vecmath.Matrix{Kind: f.elemKind, Rows: f.colHi - f.colLo, Cols: f.cols}
		block.SetBytes(data)
		for i := 0; i < block.Rows; i++ {
			merged.SetRow(f.colLo-colLo+i, block.Row(i))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	defer tx.Rollback()

	for _, f := range frags {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dense_fragments WHERE uri = ? AND fragment_id = ?`, uri, f.id); err != nil {
			return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
	}

	compressed := s.codec.compress(merged.Bytes())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dense_fragments (uri, fragment_id, ts_lo, ts_hi, col_lo, col_hi, elem_kind, cols, blob)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uri, uuid.NewString(), tsLo, tsHi, colLo, colHi, int(frags[0].elemKind), frags[0].cols, compressed); err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}

	return tx.Commit()
}

// Vacuum irreversibly drops superseded sparse cell versions (every row
// for an external id except the one with the greatest cell_ts), after
// which time-travel reads that would have observed an older version can
// no longer do so. Dense arrays have nothing to vacuum: every fragment
// is live base data.
func (s *SQLiteStore) Vacuum(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeConcurrentWriter, err)
	}
	defer s.lock.Unlock()

	kind, _, _, err := s.schemaFor(ctx, uri)
	if err != nil {
		return err
	}
	if kind != "sparse" {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM sparse_cells
		WHERE uri = ? AND rowid NOT IN (
			SELECT rowid FROM (
				SELECT rowid, external_id,
				       ROW_NUMBER() OVER (PARTITION BY external_id ORDER BY cell_ts DESC) AS rn
				FROM sparse_cells WHERE uri = ?
			) WHERE rn = 1
		)`, uri, uri)
	if err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	return nil
}

// Fragments reports every physical fragment backing uri, for inspection
// and for the >10-fragments consolidation trigger.
func (s *SQLiteStore) Fragments(ctx context.Context, uri string) ([]FragmentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kind, _, _, err := s.schemaFor(ctx, uri)
	if err != nil {
		return nil, err
	}

	var infos []FragmentInfo
	if kind == "dense" {
		rows, err := s.db.QueryContext(ctx,
			`SELECT fragment_id, ts_lo, ts_hi, col_lo, col_hi FROM dense_fragments WHERE uri = ?`, uri)
		if err != nil {
			return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		defer rows.Close()
		for rows.Next() {
			var info FragmentInfo
			var lo, hi int64
			if err := rows.Scan(&info.FragmentID, &lo, &hi, &info.ColLo, &info.ColHi); err != nil {
				return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
			}
			info.TSRange = TSRange{Lo: uint64(lo), Hi: uint64(hi)}
			info.Rows = info.ColHi - info.ColLo
			infos = append(infos, info)
		}
		return infos, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT fragment_id, MIN(cell_ts), MAX(cell_ts), COUNT(*) FROM sparse_cells WHERE uri = ? GROUP BY fragment_id`, uri)
	if err != nil {
		return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	defer rows.Close()
	for rows.Next() {
		var info FragmentInfo
		var lo, hi int64
		if err := rows.Scan(&info.FragmentID, &lo, &hi, &info.Rows); err != nil {
			return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		info.TSRange = TSRange{Lo: uint64(lo), Hi: uint64(hi)}
		infos = append(infos, info)
	}
	return infos, nil
}

// PutBlob stores an opaque, timestamp-addressed blob: used for
// structural sub-arrays (ingestion offsets, external-id tables) that
// are better modeled as one versioned object per ingestion than as a
// Kind-tagged dense Matrix.
func (s *SQLiteStore) PutBlob(ctx context.Context, uri string, ts uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	compressed := s.codec.compress(data)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blobs (uri, ts, data) VALUES (?, ?, ?)`, uri, ts, compressed)
	if err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	return nil
}

// GetBlob retrieves the blob written at exactly ts, or
// ErrCodeFragmentNotFound if none exists.
func (s *SQLiteStore) GetBlob(ctx context.Context, uri string, ts uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE uri = ? AND ts = ?`, uri, ts).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, tdberrors.New(tdberrors.ErrCodeFragmentNotFound, fmt.Sprintf("no blob for %q at ts %d", uri, ts), nil)
	}
	if err != nil {
		return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	return s.codec.decompress(compressed)
}

// Close releases the underlying database handle and codec.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codec.Close()
	return s.db.Close()
}

type sqliteDenseArray struct {
	tsRange TSRange
	matrix  *vecmath.Matrix
	size    int
}

func (a *sqliteDenseArray) TSRange() TSRange       { return a.tsRange }
func (a *sqliteDenseArray) Matrix() *vecmath.Matrix { return a.matrix }
func (a *sqliteDenseArray) Size() int               { return a.size }

type sqliteSparseArray struct {
	tsRange TSRange
	cells   []SparseCell
}

func (a *sqliteSparseArray) TSRange() TSRange     { return a.tsRange }
func (a *sqliteSparseArray) Cells() []SparseCell { return a.cells }
