// ABOUTME: Sorted-merge reconciliation of the admin set against a target set
// ABOUTME: One ascending pass with a binary-search cursor that only moves forward

package whitelist

import (
	"slices"

	"github.com/2389/whitelist-gateway/internal/address"
)

// Plan is the set of writes that turns the current admin set into the target.
type Plan struct {
	Add    []address.Principal
	Remove []address.Principal
}

// Changes is the total number of writes in the plan.
func (p Plan) Changes() int {
	return len(p.Add) + len(p.Remove)
}

// normalizeTarget sorts ps ascending and drops duplicates in place.
func normalizeTarget(ps []address.Principal) []address.Principal {
	slices.SortFunc(ps, address.Principal.Compare)
	return slices.Compact(ps)
}

// reconcile diffs current against target. Both must be sorted ascending
// without duplicates.
//
// For each current member the cursor low marks the start of the unconsumed
// target suffix. A binary search in that suffix finds where the member
// belongs: everything skipped over is new, a hit is kept and consumed, a
// miss is removed. low never moves backwards, so the pass costs
// O(len(current) * log(len(target))) plus the output size.
func reconcile(current, target []address.Principal) Plan {
	var plan Plan
	low := 0
	for _, member := range current {
		if low >= len(target) {
			plan.Remove = append(plan.Remove, member)
			continue
		}

		i, found := slices.BinarySearchFunc(target[low:], member, address.Principal.Compare)
		plan.Add = append(plan.Add, target[low:low+i]...)
		low += i
		if found {
			low++
		} else {
			plan.Remove = append(plan.Remove, member)
		}
	}
	plan.Add = append(plan.Add, target[low:]...)
	return plan
}
