package adapters

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"vorpal/internal/ports"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

// LockFileAdapter writes and reads the YAML lockfile that pins the
// outputs of a build run.
type LockFileAdapter struct{}

func NewLockFileAdapter() LockFileAdapter {
	return LockFileAdapter{}
}

func (a LockFileAdapter) WriteLockfile(path string, lock types.Lockfile) error {
	if strings.TrimSpace(path) == "" {
		return shared.Fail(shared.KindIO, shared.StageConfig, "lockfile path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return shared.Fail(shared.KindIO, shared.StageConfig, "failed to create lockfile directory", err)
	}
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(lock); err != nil {
		return shared.Fail(shared.KindIO, shared.StageConfig, "failed to encode lockfile", err)
	}
	if err := encoder.Close(); err != nil {
		return shared.Fail(shared.KindIO, shared.StageConfig, "failed to encode lockfile", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return shared.Fail(shared.KindIO, shared.StageConfig, "failed to write lockfile "+path, err)
	}
	return nil
}

func (a LockFileAdapter) ReadLockfile(path string) (types.Lockfile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return types.Lockfile{}, shared.Fail(shared.KindIO, shared.StageConfig, "lockfile not found: "+path, err)
	}
	var lock types.Lockfile
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&lock); err != nil {
		return types.Lockfile{}, shared.Fail(shared.KindInvalidGraph, shared.StageConfig, "invalid lockfile "+path, err)
	}
	for _, record := range lock.Packages {
		if record.Name == "" || record.Output.IsZero() {
			return types.Lockfile{}, shared.Fail(shared.KindInvalidGraph, shared.StageConfig, "lockfile "+path+" has an incomplete package entry", nil)
		}
	}
	return lock, nil
}

var _ ports.LockfilePort = LockFileAdapter{}
