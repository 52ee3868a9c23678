package ports

import (
	"context"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// SessionRepository persists survey sessions and their tracks.
type SessionRepository interface {
	// FindActiveByOwner returns domain.ErrNotFound when the owner has no active session.
	FindActiveByOwner(ctx context.Context, ownerID string) (*domain.Session, error)
	// FindByOwner returns all sessions of an owner, newest first.
	FindByOwner(ctx context.Context, ownerID string) ([]domain.Session, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// Persist inserts or updates a session. A second active session for the
	// same owner fails with domain.ErrConflict. Updates never rewrite the
	// stored track and fail with domain.ErrSessionClosed once the stored
	// session is completed.
	Persist(ctx context.Context, session *domain.Session) error
	// AppendSample atomically adds sample to the end of an active session's
	// track. It fails with domain.ErrSessionClosed when the session is
	// completed or gone.
	AppendSample(ctx context.Context, sessionID string, sample domain.Sample) error
	Remove(ctx context.Context, id string) error
}

// FindRepository manages the session reference held by finds.
type FindRepository interface {
	ListBySession(ctx context.Context, sessionID string) ([]domain.Find, error)
	// DetachSession clears the session reference of every linked find and
	// returns the ids of the finds it changed.
	DetachSession(ctx context.Context, sessionID string) ([]string, error)
	Reattach(ctx context.Context, findIDs []string, sessionID string) error
}
