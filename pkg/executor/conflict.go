package executor

import "github.com/nstogner/overseer/pkg/domain"

// conflicts reports whether two invocations may not run concurrently: either
// is inherently serial, or their resource key sets intersect.
func conflicts(a, b *domain.ToolInvocation) bool {
	if a.Serial || b.Serial {
		return true
	}
	for _, ka := range a.ResourceKeys {
		for _, kb := range b.ResourceKeys {
			if ka == kb {
				return true
			}
		}
	}
	return false
}

// buildLayers partitions the invocations into ordered execution layers by
// greedy graph coloring in request order: each invocation is placed in the
// first layer containing no conflicting member. Within a layer no two
// invocations conflict; layers execute strictly in order.
func buildLayers(invs []*domain.ToolInvocation) [][]int {
	var layers [][]int
	for i, inv := range invs {
		placed := false
		for l, layer := range layers {
			clash := false
			for _, j := range layer {
				if conflicts(inv, invs[j]) {
					clash = true
					break
				}
			}
			if !clash {
				layers[l] = append(layers[l], i)
				placed = true
				break
			}
		}
		if !placed {
			layers = append(layers, []int{i})
		}
	}
	return layers
}
