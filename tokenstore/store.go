package tokenstore

import (
	"context"
	"errors"
)

var (
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenRevoked is returned by Rotate when the token being rotated was
	// already revoked or rotated. Exactly one of any set of concurrent
	// rotations of the same token can succeed.
	ErrTokenRevoked = errors.New("token already revoked")
)

// Store is the persistence boundary for issued-token records.
type Store interface {
	// Put stores new records. All records land or none do.
	Put(ctx context.Context, records ...*Record) error

	// Rotate atomically revokes oldJTI and stores the replacement records.
	// Fails with ErrTokenRevoked if oldJTI was already revoked, which is how
	// concurrent refresh exchanges are reduced to a single winner.
	Rotate(ctx context.Context, oldJTI string, replacements ...*Record) error

	GetByJTI(ctx context.Context, jti string) (*Record, error)
	GetByValueHash(ctx context.Context, hash string) (*Record, error)

	// Revoke marks a single token revoked. Revoking an already revoked token
	// is a no-op, not an error.
	Revoke(ctx context.Context, jti string) error

	// RevokeByParent revokes every token whose ParentJTI matches, returning
	// how many were newly revoked.
	RevokeByParent(ctx context.Context, parentJTI string) (int, error)

	// RevokeByClient revokes every token issued to the client.
	RevokeByClient(ctx context.Context, clientID string) (int, error)

	// RevokeBySubject revokes every token issued for the subject.
	RevokeBySubject(ctx context.Context, subject string) (int, error)
}
