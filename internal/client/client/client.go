package client

import (
	"context"

	"github.com/dmitrijs2005/fieldsync/internal/client/models"
)

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Register(ctx context.Context, username, password string) error
	// Login returns the issued access and refresh tokens.
	Login(ctx context.Context, username, password string) (string, string, error)
	Logout(ctx context.Context) error
	// Push creates e on the server and returns the server copy.
	Push(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Update(ctx context.Context, e *models.Entity) (*models.Entity, error)
	Delete(ctx context.Context, category models.Category, remoteID string) error
	Pull(ctx context.Context, req models.PullRequest) (*models.PullResult, error)
}

// Credentials supplies the identity attached to every call and receives
// refreshed tokens.
type Credentials interface {
	DeviceID() string
	Tokens() (access, refresh string)
	UpdateTokens(ctx context.Context, access, refresh string) error
}
