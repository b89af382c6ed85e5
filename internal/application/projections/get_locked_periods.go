package projections

import (
	"context"
	"sort"

	"restart/internal/domain/hours"
)

// QueryGetLockedPeriods lists locked periods, newest start first.
func QueryGetLockedPeriods(ctx context.Context, deps GetHourListDeps) ([]hours.LockedPeriod, error) {
	periods, err := deps.Backend.ListLockedPeriods(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].Start > periods[j].Start
	})
	if periods == nil {
		periods = []hours.LockedPeriod{}
	}
	return periods, nil
}
