package ports

import "vorpal/internal/types"

type LockfilePort interface {
	WriteLockfile(path string, lock types.Lockfile) error
	ReadLockfile(path string) (types.Lockfile, error)
}
