package interfaces

import (
	"context"

	"github.com/inferloop/tabsynth/pkg/models"
)

// Storage defines the lifecycle shared by every storage backend
type Storage interface {
	// Connect establishes connection to the storage backend
	Connect(ctx context.Context) error

	// Close closes the connection and cleans up resources
	Close() error

	// Ping tests the connection
	Ping(ctx context.Context) error
}

// DescriptionStore persists dataset descriptions by id
type DescriptionStore interface {
	Storage

	// Save writes a description under id, replacing any previous one
	Save(ctx context.Context, id string, desc *models.DatasetDescription) error

	// Load reads the description stored under id
	Load(ctx context.Context, id string) (*models.DatasetDescription, error)

	// Delete removes the description stored under id
	Delete(ctx context.Context, id string) error

	// List returns the ids of every stored description
	List(ctx context.Context) ([]string, error)
}
