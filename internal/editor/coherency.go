package editor

import (
	"context"
	"fmt"

	"github.com/stemsi/classpoll/internal/model"
)

// Mode selects how a refresh treats the local snapshot.
type Mode int

const (
	// ModeOptimisticTrust keeps the local snapshot. Edits are assumed to have
	// reached the server, so passive refreshes do not fetch.
	ModeOptimisticTrust Mode = iota
	// ModeRevalidate discards the local snapshot and blocks on a fresh fetch.
	// Writes still in flight may be overwritten by the fetched tree.
	ModeRevalidate
)

func (m Mode) String() string {
	switch m {
	case ModeOptimisticTrust:
		return "optimistic-trust"
	case ModeRevalidate:
		return "revalidate"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Refresh returns the session according to mode. In trust mode the current
// snapshot is returned as is, fetching only when nothing has been loaded.
func (e *Editor) Refresh(ctx context.Context, mode Mode) (*model.Session, error) {
	if mode == ModeOptimisticTrust {
		if s := e.store.Snapshot(); s != nil {
			return s, nil
		}
	}
	return e.Revalidate(ctx)
}

// Revalidate fetches the session and replaces the snapshot wholesale.
// Streams of entities that no longer exist are unmounted; the others adopt
// the fetched values as their baseline.
func (e *Editor) Revalidate(ctx context.Context) (*model.Session, error) {
	sessionID, err := e.session()
	if err != nil {
		return nil, err
	}
	fresh, err := e.backend.FetchSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}

	s := e.store.Replace(fresh)
	e.unmountMissing(s)
	e.rebaseMounted(s)
	e.log.Debug().Str("session_id", sessionID.String()).Uint64("revision", s.Revision).Msg("snapshot revalidated")
	return s, nil
}
