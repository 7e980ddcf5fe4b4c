package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/ggonzalez94/nft-cli/internal/model"
)

const lockTimeout = 5 * time.Second

// Store keeps wallet holdings and short-lived market reads in sqlite.
// Writers serialize on a file lock so concurrent CLI processes are safe.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

type Result struct {
	Hit   bool
	Value []byte
	Age   time.Duration
	Stale bool
}

// HoldingsResult is a cached holdings read with its freshness.
type HoldingsResult struct {
	Hit      bool
	Holdings model.Holdings
	Age      time.Duration
	Stale    bool
}

func Open(path, lockPath string) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"CREATE TABLE IF NOT EXISTS cache_entries (key TEXT PRIMARY KEY, value BLOB NOT NULL, created_at INTEGER NOT NULL, ttl_seconds INTEGER NOT NULL);",
		`CREATE TABLE IF NOT EXISTS holdings (
			wallet TEXT NOT NULL,
			chain TEXT NOT NULL,
			payload BLOB NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (wallet, chain)
		);`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}
	store := &Store{db: db, lock: flock.New(lockPath), now: time.Now}
	_ = store.Prune(context.Background())
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune drops entries whose TTL has expired.
func (s *Store) Prune(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE created_at + ttl_seconds < ?", s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (Result, error) {
	var value []byte
	var createdUnix, ttlSeconds int64
	err := s.db.QueryRowContext(ctx, "SELECT value, created_at, ttl_seconds FROM cache_entries WHERE key = ?", key).Scan(&value, &createdUnix, &ttlSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}
	age := s.age(createdUnix)
	return Result{
		Hit:   true,
		Value: value,
		Age:   age,
		Stale: age > time.Duration(ttlSeconds)*time.Second,
	}, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	return s.withLock(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO cache_entries (key, value, created_at, ttl_seconds)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value=excluded.value,
				created_at=excluded.created_at,
				ttl_seconds=excluded.ttl_seconds
		`, key, value, s.now().UTC().Unix(), ttlSeconds)
		if err != nil {
			return fmt.Errorf("cache write: %w", err)
		}
		return nil
	})
}

// Holdings returns the cached holdings for wallet on chain. Stale is set
// once the entry is older than maxAge.
func (s *Store) Holdings(ctx context.Context, wallet, chain string, maxAge time.Duration) (HoldingsResult, error) {
	var payload []byte
	var fetchedUnix int64
	err := s.db.QueryRowContext(ctx, "SELECT payload, fetched_at FROM holdings WHERE wallet = ? AND chain = ?",
		normalizeWallet(wallet), chain).Scan(&payload, &fetchedUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return HoldingsResult{}, nil
		}
		return HoldingsResult{}, fmt.Errorf("read holdings: %w", err)
	}
	var holdings model.Holdings
	if err := json.Unmarshal(payload, &holdings); err != nil {
		return HoldingsResult{}, fmt.Errorf("decode holdings: %w", err)
	}
	age := s.age(fetchedUnix)
	return HoldingsResult{Hit: true, Holdings: holdings, Age: age, Stale: age > maxAge}, nil
}

func (s *Store) PutHoldings(ctx context.Context, holdings model.Holdings) error {
	wallet := normalizeWallet(holdings.Wallet)
	if wallet == "" || holdings.Chain == "" {
		return fmt.Errorf("put holdings: wallet and chain are required")
	}
	payload, err := json.Marshal(holdings)
	if err != nil {
		return fmt.Errorf("encode holdings: %w", err)
	}
	return s.withLock(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO holdings (wallet, chain, payload, fetched_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(wallet, chain) DO UPDATE SET
				payload=excluded.payload,
				fetched_at=excluded.fetched_at
		`, wallet, holdings.Chain, payload, s.now().UTC().Unix())
		if err != nil {
			return fmt.Errorf("write holdings: %w", err)
		}
		return nil
	})
}

// InvalidateHoldings forgets a wallet's holdings, e.g. after a purchase.
func (s *Store) InvalidateHoldings(ctx context.Context, wallet, chain string) error {
	return s.withLock(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM holdings WHERE wallet = ? AND chain = ?", normalizeWallet(wallet), chain)
		if err != nil {
			return fmt.Errorf("invalidate holdings: %w", err)
		}
		return nil
	})
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *Store) age(unix int64) time.Duration {
	age := s.now().Sub(time.Unix(unix, 0))
	if age < 0 {
		return 0
	}
	return age
}

func normalizeWallet(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}
