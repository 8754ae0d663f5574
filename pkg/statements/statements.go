// Package statements provides keyed statement text loaded from YAML files.
//
// A statement file lists entries with a key, the SQL text and two optional
// attributes: cache, the default result TTL in milliseconds or the key of
// another entry holding that number, and host, which restricts the entry to
// one machine.
//
//	statements:
//	  - key: short_ttl
//	    sql: "60000"
//	  - key: orders.open
//	    sql: SELECT id, total FROM orders WHERE status = 'open' AND customer = ?customer
//	    cache: short_ttl
//	  - key: orders.debug
//	    sql: SELECT * FROM orders
//	    host: build-01
//
// Keys are case-insensitive. Text containing whitespace is never treated as
// a key.
package statements

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/config"
	"github.com/ajitpratap0/sqlrt/pkg/errors"
	"github.com/ajitpratap0/sqlrt/pkg/logger"
)

// Statement is a resolved statement.
type Statement struct {
	Key string
	SQL string
	// CacheTTL is the default result TTL; zero disables caching.
	CacheTTL time.Duration
}

// Source looks up statements by key.
type Source interface {
	Lookup(key string) (Statement, bool)
}

// Resolve maps text to a statement: the entry of src when text is a
// known key, otherwise text itself as literal SQL.
func Resolve(src Source, text string) Statement {
	trimmed := strings.TrimSpace(text)
	if src == nil || trimmed == "" || strings.IndexFunc(trimmed, unicode.IsSpace) >= 0 {
		return Statement{SQL: text}
	}
	if st, ok := src.Lookup(trimmed); ok {
		return st
	}
	return Statement{SQL: text}
}

type entry struct {
	Key   string `yaml:"key"`
	SQL   string `yaml:"sql"`
	Cache string `yaml:"cache"`
	Host  string `yaml:"host"`
}

type file struct {
	Statements []entry `yaml:"statements"`
}

// Store is a Source backed by statement files.
type Store struct {
	mu         sync.RWMutex
	host       string
	statements map[string]Statement
}

// NewStore creates an empty store for host.
func NewStore(host string) *Store {
	return &Store{host: host, statements: make(map[string]Statement)}
}

// Load reads the statement files in order; later files override earlier keys.
func Load(host string, paths ...string) (*Store, error) {
	s := NewStore(host)
	var entries []entry
	for _, path := range paths {
		var f file
		if err := config.LoadInto(path, &f); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load statement file").
				WithDetail("path", path)
		}
		entries = append(entries, f.Statements...)
		logger.Debug("loaded statement file", zap.String("path", path), zap.Int("entries", len(f.Statements)))
	}
	if err := s.add(entries); err != nil {
		return nil, err
	}
	return s, nil
}

// FromConfig loads the configured files, defaulting the host filter to the
// machine hostname.
func FromConfig(cfg config.StatementsConfig) (*Store, error) {
	host := cfg.Host
	if host == "" {
		host, _ = os.Hostname()
	}
	return Load(host, cfg.Files...)
}

// Add registers a statement directly. ttl may be zero.
func (s *Store) Add(key, sql string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statements[strings.ToLower(key)] = Statement{Key: key, SQL: sql, CacheTTL: ttl}
}

func (s *Store) add(entries []entry) error {
	kept := make(map[string]entry, len(entries))
	for _, e := range entries {
		if e.Key == "" {
			return errors.New(errors.ErrorTypeConfig, "statement entry without key")
		}
		if e.Host != "" && !strings.EqualFold(e.Host, s.host) {
			continue
		}
		kept[strings.ToLower(e.Key)] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range kept {
		ttl, err := cacheTTL(e, kept)
		if err != nil {
			return err
		}
		s.statements[k] = Statement{Key: e.Key, SQL: e.SQL, CacheTTL: ttl}
	}
	return nil
}

// cacheTTL interprets the cache attribute: a millisecond count, or the key
// of an entry whose text is one.
func cacheTTL(e entry, all map[string]entry) (time.Duration, error) {
	attr := strings.TrimSpace(e.Cache)
	if attr == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(attr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	ref, ok := all[strings.ToLower(attr)]
	if !ok {
		return 0, errors.Newf(errors.ErrorTypeConfig, "cache attribute of %q refers to unknown key %q", e.Key, attr)
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(ref.SQL), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConfig, "cache attribute is not a number").
			WithDetail("key", e.Key).
			WithDetail("ref", attr)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Lookup implements Source.
func (s *Store) Lookup(key string) (Statement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statements[strings.ToLower(key)]
	return st, ok
}

// Keys returns the known keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.statements))
	for _, st := range s.statements {
		out = append(out, st.Key)
	}
	sort.Strings(out)
	return out
}
