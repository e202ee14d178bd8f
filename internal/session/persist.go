package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/kv"
	"github.com/dropDatabas3/portal/internal/observability/logger"
)

// DefaultStorageKey es la key del snapshot persistido.
const DefaultStorageKey = "auth-storage"

const persistTimeout = 5 * time.Second

// persisted es el formato en disco: {"state": {...}, "version": N}.
type persisted struct {
	State   persistedState `json:"state"`
	Version int            `json:"version"`
}

type persistedState struct {
	Token string          `json:"token"`
	User  *types.AuthUser `json:"user"`
}

const persistVersion = 1

// persist escribe el estado actual (no el que disparó la escritura) para que
// escrituras concurrentes terminen siempre con el último snapshot.
// Usa su propio ctx: un logout persiste aunque el caller ya haya cancelado.
func (s *Store) persist() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	st := s.Snapshot()
	p := persisted{
		State:   persistedState{Token: s.cipher.Encrypt(st.Token), User: st.User},
		Version: persistVersion,
	}
	b, err := json.Marshal(p)
	if err != nil {
		s.log.Warn("persist: marshal failed", logger.Err(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.storage.Set(ctx, s.key, string(b)); err != nil {
		s.log.Warn("persist: write failed", logger.Key(s.key), logger.Err(err))
	}
}

// load lee el snapshot. ok=false si no hay nada utilizable.
func (s *Store) load(ctx context.Context) (persistedState, bool) {
	raw, err := s.storage.Get(ctx, s.key)
	if err != nil {
		if !kv.IsNotFound(err) {
			s.log.Warn("hydrate: read failed", logger.Key(s.key), logger.Err(err))
		}
		return persistedState{}, false
	}
	var p persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.log.Warn("hydrate: corrupt snapshot", logger.Key(s.key), logger.Err(err))
		return persistedState{}, false
	}
	return p.State, true
}
