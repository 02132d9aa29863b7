package app

import (
	"time"

	"github.com/google/uuid"

	"vorpal/internal/adapters"
	"vorpal/internal/ports"
)

type Service struct {
	GraphLoader  ports.GraphLoaderPort
	SourceTree   ports.SourceTreePort
	KeyGen       ports.KeyGeneratorPort
	Lockfiles    ports.LockfilePort
	NewStore     func(root string) ports.StorePort
	NewInventory func(root string) ports.StoreInventoryPort
	NewKeys      func(privatePath string, identityPath string) ports.KeyProviderPort
	Dial         func(endpoint string, runID string) (ports.BuildClientPort, error)
	NewRunID     func() string
	Clock        func() time.Time
}

func NewService() Service {
	return Service{
		GraphLoader: adapters.NewGraphFileAdapter(),
		SourceTree:  adapters.NewSourceTreeAdapter(),
		KeyGen:      adapters.NewKeyFileGenerator(),
		Lockfiles:   adapters.NewLockFileAdapter(),
		NewStore: func(root string) ports.StorePort {
			return adapters.NewFileStore(root)
		},
		NewInventory: func(root string) ports.StoreInventoryPort {
			return adapters.NewFileStore(root)
		},
		NewKeys: func(privatePath string, identityPath string) ports.KeyProviderPort {
			return adapters.NewFileKeyProvider(privatePath, identityPath)
		},
		Dial: func(endpoint string, runID string) (ports.BuildClientPort, error) {
			return adapters.NewGRPCBuildClient(endpoint, runID)
		},
		NewRunID: uuid.NewString,
	}
}
