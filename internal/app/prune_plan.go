package app

import (
	"sort"
	"strings"
	"time"

	"vorpal/internal/types"
)

// BuildStorePrunePlan splits entries into keep and delete sets. An entry
// is kept when its key or name is protected, when it is younger than
// KeepDays, or when it is among the KeepLast newest entries of its
// package name and kind. Everything else is deleted.
func BuildStorePrunePlan(entries []types.StoreEntryInfo, policy types.StoreRetentionPolicy, now time.Time) types.StorePrunePlan {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	normalized := normalizeRetentionPolicy(policy)
	protectedKeys := normalizeSet(normalized.ProtectKeys)
	protectedNames := normalizeSet(normalized.ProtectNames)

	keep := make([]bool, len(entries))
	grouped := map[string][]int{}
	for i, entry := range entries {
		if isProtected(entry, protectedKeys, protectedNames) {
			keep[i] = true
		}
		if normalized.KeepDays > 0 && !entry.CreatedAt.IsZero() {
			cutoff := now.AddDate(0, 0, -normalized.KeepDays)
			if !entry.CreatedAt.Before(cutoff) {
				keep[i] = true
			}
		}
		group := retentionGroupKey(entry)
		grouped[group] = append(grouped[group], i)
	}

	if normalized.KeepLast > 0 {
		for _, group := range grouped {
			sorted := append([]int(nil), group...)
			sort.Slice(sorted, func(a, b int) bool {
				ea, eb := entries[sorted[a]], entries[sorted[b]]
				if !ea.CreatedAt.Equal(eb.CreatedAt) {
					return ea.CreatedAt.After(eb.CreatedAt)
				}
				return ea.Hash < eb.Hash
			})
			limit := min(normalized.KeepLast, len(sorted))
			for _, i := range sorted[:limit] {
				keep[i] = true
			}
		}
	}

	plan := types.StorePrunePlan{}
	for i, entry := range entries {
		if keep[i] {
			plan.Keep = append(plan.Keep, entry)
		} else {
			plan.Delete = append(plan.Delete, entry)
		}
	}
	return plan
}

func normalizeRetentionPolicy(policy types.StoreRetentionPolicy) types.StoreRetentionPolicy {
	normalized := policy
	if normalized.KeepLast < 0 {
		normalized.KeepLast = 0
	}
	if normalized.KeepDays < 0 {
		normalized.KeepDays = 0
	}
	return normalized
}

func normalizeSet(values []string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, value := range values {
		key := strings.TrimSpace(value)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	return set
}

func isProtected(entry types.StoreEntryInfo, keys map[string]struct{}, names map[string]struct{}) bool {
	if _, ok := keys[entry.Key()]; ok {
		return true
	}
	_, ok := names[entry.Name]
	return ok
}

// Archives and unpacked directories age separately so an output keeps
// both forms or neither under KeepLast.
func retentionGroupKey(entry types.StoreEntryInfo) string {
	if entry.Kind == types.StoreEntrySourceArchive {
		return "source:" + entry.Name
	}
	return "output:" + entry.Name + ":" + string(entry.Kind)
}
