package workflow

import (
	"sort"

	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
)

// topologicalOrder runs Kahn's algorithm over steps' parents edges
// (parent -> child), generalized from pkg/contracts/workflow.go's flat
// WorkflowStep list to the spec's named-step-with-parents graph. Ties are
// broken by step name so a given document always orders the same way.
func topologicalOrder(steps map[string]Step) ([]Step, error) {
	childrenOf := make(map[string][]string, len(steps))
	indegree := make(map[string]int, len(steps))
	for name := range steps {
		indegree[name] = 0
	}
	for name, s := range steps {
		for _, parent := range s.Parents {
			childrenOf[parent] = append(childrenOf[parent], name)
			indegree[name]++
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]Step, 0, len(steps))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, steps[name])

		var freed []string
		children := append([]string(nil), childrenOf[name]...)
		sort.Strings(children)
		for _, child := range children {
			indegree[child]--
			if indegree[child] == 0 {
				freed = append(freed, child)
			}
		}
		ready = append(ready, freed...)
		sort.Strings(ready)
	}

	if len(order) != len(steps) {
		return nil, gpferrors.NewWorkflowError("", "", "le document de workflow contient un cycle de dépendances entre étapes", nil)
	}
	return order, nil
}
