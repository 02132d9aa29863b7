package ports

import (
	"context"

	"vorpal/internal/types"
)

// StoreInventoryPort lists and removes whole store entries.
type StoreInventoryPort interface {
	ListEntries(ctx context.Context) ([]types.StoreEntryInfo, error)
	RemoveEntry(ctx context.Context, entry types.StoreEntryInfo) error
}
