package cache

import (
    "sort"
    "strings"
    "sync"
    "time"

    "marketdata/internal/bars"
)

const (
    // HistoryTTL is how long a normalized dataset stays fresh.
    HistoryTTL = 300 * time.Second
    // UniverseTTL is how long a resolved symbol universe stays fresh.
    UniverseTTL = 24 * time.Hour
)

// Key canonicalizes a historical-data request: symbols are upper-cased,
// de-duplicated and sorted so argument order never splits cache entries.
func Key(symbols []string, period, interval string) string {
    seen := make(map[string]struct{}, len(symbols))
    norm := make([]string, 0, len(symbols))
    for _, s := range symbols {
        u := strings.ToUpper(strings.TrimSpace(s))
        if u == "" {
            continue
        }
        if _, dup := seen[u]; dup {
            continue
        }
        seen[u] = struct{}{}
        norm = append(norm, u)
    }
    sort.Strings(norm)
    return strings.Join(norm, ",") + "|" + period + "|" + interval
}

type historyEntry struct {
    snapshot  *bars.Dataset
    createdAt time.Time
}

// History memoizes normalized datasets for a short TTL. Entries are whole
// snapshots: a refresh replaces the entry, there is no per-ticker
// invalidation. Hits serve the entire batch even if some requested tickers
// were unfetchable when the entry was created (they stay absent).
type History struct {
    TTL time.Duration

    mu      sync.Mutex
    entries map[string]historyEntry
    now     func() time.Time
}

func NewHistory() *History {
    return &History{
        TTL:     HistoryTTL,
        entries: make(map[string]historyEntry),
        now:     time.Now,
    }
}

// GetOrFetch returns a copy of the fresh entry for key, or runs fetch and
// stores its result. Both paths hand back clones; cache state is never
// aliased to callers.
func (c *History) GetOrFetch(key string, fetch func() (*bars.Dataset, error)) (*bars.Dataset, error) {
    c.mu.Lock()
    if e, ok := c.entries[key]; ok && c.now().Sub(e.createdAt) < c.TTL {
        snap := e.snapshot.Clone()
        c.mu.Unlock()
        return snap, nil
    }
    c.mu.Unlock()

    ds, err := fetch()
    if err != nil {
        return nil, err
    }
    snap := ds.Clone()
    c.mu.Lock()
    c.entries[key] = historyEntry{snapshot: snap, createdAt: c.now()}
    c.mu.Unlock()
    return ds, nil
}

type universeEntry struct {
    symbols   []string
    createdAt time.Time
}

// Universe caches resolved symbol lists per universe type, independently of
// the historical-data cache. Keys are the universe type tokens.
type Universe struct {
    TTL time.Duration

    mu      sync.Mutex
    entries map[string]universeEntry
    now     func() time.Time
}

func NewUniverse() *Universe {
    return &Universe{
        TTL:     UniverseTTL,
        entries: make(map[string]universeEntry),
        now:     time.Now,
    }
}

func (c *Universe) GetOrFetch(u string, fetch func() ([]string, error)) ([]string, error) {
    c.mu.Lock()
    if e, ok := c.entries[u]; ok && c.now().Sub(e.createdAt) < c.TTL {
        out := make([]string, len(e.symbols))
        copy(out, e.symbols)
        c.mu.Unlock()
        return out, nil
    }
    c.mu.Unlock()

    symbols, err := fetch()
    if err != nil {
        return nil, err
    }
    stored := make([]string, len(symbols))
    copy(stored, symbols)
    c.mu.Lock()
    c.entries[u] = universeEntry{symbols: stored, createdAt: c.now()}
    c.mu.Unlock()
    return symbols, nil
}
