package keyring

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// DurableStore is the second lookup layer: a TTL-bearing cache surviving
// process restarts (a real implementation backs this with tosdb or an
// external KV store; the in-memory implementation here is what tests and
// single-process deployments use).
//
// A store holds one whole response per server name. Put must apply
// compare-and-set semantics on (server_name, fetched_ts): a write with an
// older FetchedAtTS than what is already stored for that server is silently
// dropped rather than overwriting a fresher fetch. An accepted write
// replaces the previous response whole, so keys the new response omits are
// not kept.
type DurableStore interface {
	Get(ctx context.Context, serverName string) (*ServerKeyResponse, bool, error)
	Put(ctx context.Context, resp *ServerKeyResponse) error
}

// memoryStore is a process-local DurableStore backed by a mutex-guarded
// map, keyed by server name (a response covers every key_id for that
// server, matching the wire shape of GET /_matrix/key/v2/server).
type memoryStore struct {
	mu       sync.Mutex
	byServer map[string]*ServerKeyResponse
}

// NewMemoryStore returns a DurableStore with no persistence beyond process
// lifetime — suitable for tests and for wrapping with a real backing store.
func NewMemoryStore() DurableStore {
	return &memoryStore{byServer: map[string]*ServerKeyResponse{}}
}

func (m *memoryStore) Get(_ context.Context, serverName string) (*ServerKeyResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byServer[serverName]
	return r, ok, nil
}

func (m *memoryStore) Put(_ context.Context, resp *ServerKeyResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byServer[resp.ServerName]; ok {
		if existing.FetchedAtTS > resp.FetchedAtTS {
			return nil
		}
		resp.RowID = existing.RowID
	}
	if resp.RowID == "" {
		if id, err := uuid.NewRandom(); err == nil {
			resp.RowID = id.String()
		}
	}
	m.byServer[resp.ServerName] = resp
	return nil
}
