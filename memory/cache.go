package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// Snapshot cache
// ---------------------------------------------------------------------------

// Cache persists built indexes in SQLite so a large corpus is only
// re-parsed when its files change.
type Cache struct {
	db *sql.DB
	sq sq.StatementBuilderType
}

// insertChunk bounds the rows per INSERT to stay well below SQLite's
// host parameter limit.
const insertChunk = 400

// OpenCache opens or creates the cache database at path.
func OpenCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	c := &Cache{db: db, sq: sq.StatementBuilder}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tm_snapshots (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		root        TEXT NOT NULL,
		source      TEXT NOT NULL,
		target      TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		entries     INTEGER NOT NULL,
		built_at    TEXT NOT NULL,
		UNIQUE(root, source, target)
	);
	CREATE TABLE IF NOT EXISTS tm_entries (
		snapshot_id INTEGER NOT NULL REFERENCES tm_snapshots(id) ON DELETE CASCADE,
		source_text TEXT NOT NULL,
		target_text TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, source_text)
	);`
	_, err := c.db.Exec(schema)
	return err
}

// Snapshot describes a stored index.
type Snapshot struct {
	Root        string
	Source      string
	Target      string
	Fingerprint string
	Entries     int
	BuiltAt     time.Time
}

// Load returns the stored index for opts when its fingerprint matches.
// The boolean is false on a miss or a stale snapshot.
func (c *Cache) Load(ctx context.Context, opts Options, fingerprint string) (*Index, bool, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, false, err
	}

	q := c.sq.Select("id", "fingerprint").
		From("tm_snapshots").
		Where(sq.Eq{"root": root, "source": opts.SourceFolder, "target": opts.TargetFolder}).
		Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, false, err
	}

	var id int64
	var stored string
	if err := c.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id, &stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query snapshot: %w", err)
	}
	if stored != fingerprint {
		return nil, false, nil
	}

	sqlStr, args, err = c.sq.Select("source_text", "target_text").
		From("tm_entries").
		Where(sq.Eq{"snapshot_id": id}).
		ToSql()
	if err != nil {
		return nil, false, err
	}
	rows, err := c.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, false, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	pairs := make(map[string]string)
	for rows.Next() {
		var s, t string
		if err := rows.Scan(&s, &t); err != nil {
			return nil, false, fmt.Errorf("scan entry: %w", err)
		}
		pairs[s] = t
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return NewIndex(pairs), true, nil
}

// Store replaces the snapshot for opts with idx.
func (c *Cache) Store(ctx context.Context, opts Options, fingerprint string, idx *Index) error {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	sqlStr, args, err := c.sq.Delete("tm_snapshots").
		Where(sq.Eq{"root": root, "source": opts.SourceFolder, "target": opts.TargetFolder}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}

	sqlStr, args, err = c.sq.Insert("tm_snapshots").
		Columns("root", "source", "target", "fingerprint", "entries", "built_at").
		Values(root, opts.SourceFolder, opts.TargetFolder, fingerprint, idx.Len(), time.Now().UTC().Format(time.RFC3339)).
		ToSql()
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	ins := c.sq.Insert("tm_entries").Columns("snapshot_id", "source_text", "target_text")
	n := 0
	for s, t := range idx.Pairs() {
		ins = ins.Values(id, s, t)
		n++
		if n == insertChunk {
			if err := execInsert(ctx, tx, ins); err != nil {
				return err
			}
			ins = c.sq.Insert("tm_entries").Columns("snapshot_id", "source_text", "target_text")
			n = 0
		}
	}
	if n > 0 {
		if err := execInsert(ctx, tx, ins); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func execInsert(ctx context.Context, tx *sql.Tx, ins sq.InsertBuilder) error {
	sqlStr, args, err := ins.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert entries: %w", err)
	}
	return nil
}

// Snapshots lists every stored snapshot.
func (c *Cache) Snapshots(ctx context.Context) ([]Snapshot, error) {
	sqlStr, args, err := c.sq.Select("root", "source", "target", "fingerprint", "entries", "built_at").
		From("tm_snapshots").
		OrderBy("root", "source", "target").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var built string
		if err := rows.Scan(&s.Root, &s.Source, &s.Target, &s.Fingerprint, &s.Entries, &built); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.BuiltAt, _ = time.Parse(time.RFC3339, built)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Fingerprint summarises the corpus files (count, total size, newest
// modification time) so that any added, removed or edited file
// invalidates a stored snapshot.
func Fingerprint(opts Options) (string, error) {
	src, dst, err := scanCorpus(opts)
	if err != nil {
		return "", err
	}
	var count int
	var size, newest int64
	for _, files := range [][]corpusFile{src, dst} {
		for _, f := range files {
			count++
			size += f.size
			newest = max(newest, f.mod)
		}
	}
	return fmt.Sprintf("v1:%d:%d:%d:%d", count, size, newest, opts.effectiveMinSourceLength()), nil
}

// BuildCached returns the cached index for opts when it is still fresh,
// and otherwise builds the index and stores it. A nil cache builds
// without caching. Cache failures are logged through opts.OnLog and do not
// prevent a build.
func BuildCached(ctx context.Context, c *Cache, opts Options) (idx *Index, fromCache bool, err error) {
	if c == nil {
		idx, err = Build(opts)
		return idx, false, err
	}

	fp, err := Fingerprint(opts)
	if err != nil {
		return nil, false, err
	}

	idx, ok, err := c.Load(ctx, opts, fp)
	if err != nil {
		opts.log("translation memory cache unavailable: %v", err)
	} else if ok {
		return idx, true, nil
	}

	idx, err = Build(opts)
	if err != nil {
		return nil, false, err
	}
	if err := c.Store(ctx, opts, fp, idx); err != nil {
		opts.log("storing translation memory snapshot: %v", err)
	}
	return idx, false, nil
}
