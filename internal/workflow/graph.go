package workflow

import (
	"sort"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// HasCircularDependencies reports whether the transitions, read as a directed graph on
// statuses, contain a cycle.
func HasCircularDependencies(transitions []domain.WorkflowTransition) bool {
	return FindCycle(transitions) != nil
}

// FindCycle returns the statuses of one cycle with the first status repeated at the end,
// or nil. Traversal order is sorted so the result is stable.
func FindCycle(transitions []domain.WorkflowTransition) []domain.TicketStatus {
	adjacency := make(map[domain.TicketStatus][]domain.TicketStatus)
	for _, t := range transitions {
		adjacency[t.FromStatus] = append(adjacency[t.FromStatus], t.ToStatus)
		if _, ok := adjacency[t.ToStatus]; !ok {
			adjacency[t.ToStatus] = nil
		}
	}

	nodes := make([]domain.TicketStatus, 0, len(adjacency))
	for status, next := range adjacency {
		nodes = append(nodes, status)
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	visited := make(map[domain.TicketStatus]bool, len(nodes))
	onStack := make(map[domain.TicketStatus]bool, len(nodes))
	var path []domain.TicketStatus

	var visit func(status domain.TicketStatus) []domain.TicketStatus
	visit = func(status domain.TicketStatus) []domain.TicketStatus {
		visited[status] = true
		onStack[status] = true
		path = append(path, status)
		for _, next := range adjacency[status] {
			if onStack[next] {
				for i, s := range path {
					if s == next {
						cycle := append([]domain.TicketStatus{}, path[i:]...)
						return append(cycle, next)
					}
				}
			}
			if !visited[next] {
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}
		onStack[status] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, status := range nodes {
		if !visited[status] {
			if cycle := visit(status); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
