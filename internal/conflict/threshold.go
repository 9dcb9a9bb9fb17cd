// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package conflict

import (
	"strings"

	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// MatchThreshold returns the threshold whose test name or alias equals
// name, ignoring case and surrounding space. A nil list means
// types.DefaultThresholds; an empty non-nil list matches nothing.
func MatchThreshold(thresholds []types.LabThreshold, name string) (types.LabThreshold, bool) {
	if thresholds == nil {
		thresholds = types.DefaultThresholds()
	}
	name = strings.TrimSpace(name)
	for _, th := range thresholds {
		if strings.EqualFold(th.Test, name) {
			return th, true
		}
		for _, alias := range th.Aliases {
			if strings.EqualFold(alias, name) {
				return th, true
			}
		}
	}
	return types.LabThreshold{}, false
}

// Flag returns "High" or "Low" when lab crosses its threshold, and "" when
// it does not or no threshold applies.
func Flag(thresholds []types.LabThreshold, lab types.LabResult) string {
	th, ok := MatchThreshold(thresholds, lab.Name)
	if !ok {
		return ""
	}
	v, ok := lab.Value.Float()
	if !ok || !th.Crossed(v) {
		return ""
	}
	if th.Direction == types.ThresholdBelow {
		return "Low"
	}
	return "High"
}
