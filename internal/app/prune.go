package app

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"vorpal/internal/shared"
)

// PruneStore removes store entries outside the retention policy. Outputs
// named by any of req.Lockfiles are always kept. Pruning while a build
// writes to the same package root is not supported.
func (s Service) PruneStore(ctx context.Context, req PruneRequest) (PruneResult, error) {
	root := strings.TrimSpace(req.PackageRoot)
	if root == "" {
		return PruneResult{}, shared.Fail(shared.KindIO, shared.StageConfig, "package root is required", nil)
	}
	protectKeys := append([]string(nil), req.ProtectKeys...)
	for _, path := range req.Lockfiles {
		lock, err := s.Lockfiles.ReadLockfile(path)
		if err != nil {
			return PruneResult{}, err
		}
		for _, record := range lock.Packages {
			protectKeys = append(protectKeys, record.Output.Key())
		}
	}

	inventory := s.NewInventory(root)
	entries, err := inventory.ListEntries(ctx)
	if err != nil {
		return PruneResult{}, err
	}
	policy := req.policy(protectKeys)
	plan := BuildStorePrunePlan(entries, policy, timeNow(s.Clock))

	result := PruneResult{KeepCount: len(plan.Keep), DryRun: policy.DryRun}
	for _, entry := range plan.Delete {
		result.Deleted = append(result.Deleted, entry.Path)
	}
	if policy.DryRun {
		result.DeleteCount = len(plan.Delete)
		return result, nil
	}
	for _, entry := range plan.Delete {
		if err := inventory.RemoveEntry(ctx, entry); err != nil {
			return PruneResult{}, err
		}
		result.DeleteCount++
	}
	log.Ctx(ctx).Info().
		Int("kept", result.KeepCount).
		Int("deleted", result.DeleteCount).
		Msg("store pruned")
	return result, nil
}

func timeNow(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock().UTC()
}
