package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/reposit-go/reposit/internal/orm/ormerrors"
)

// DependencyGraph represents foreign key dependencies between entity types
type DependencyGraph struct {
	nodes map[string]*EntityMetadata
	edges map[string][]string // dependent -> principals
}

// NewDependencyGraph creates a graph over the given entities. Edges to types
// outside the set and self references are ignored.
func NewDependencyGraph(entities map[reflect.Type]*EntityMetadata) *DependencyGraph {
	g := &DependencyGraph{
		nodes: make(map[string]*EntityMetadata, len(entities)),
		edges: make(map[string][]string),
	}
	for _, m := range entities {
		g.nodes[m.TypeName] = m
	}

	for name, m := range g.nodes {
		for _, navName := range m.NavOrder {
			fk, ok := m.ForeignKeys[navName]
			if !ok || fk.Principal == m.Type {
				continue
			}
			target := ormerrors.TypeName(fk.Principal)
			if _, exists := g.nodes[target]; !exists {
				continue
			}
			if !contains(g.edges[name], target) {
				g.edges[name] = append(g.edges[name], target)
			}
		}
	}
	return g
}

// DetectCycles detects circular dependencies in the graph
func (g *DependencyGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var dfs func(node string, path []string) bool
	dfs = func(node string, path []string) bool {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, next := range g.edges[node] {
			if !visited[next] {
				if dfs(next, path) {
					return true
				}
			} else if onStack[next] {
				for i, n := range path {
					if n == next {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
				return true
			}
		}

		onStack[node] = false
		return false
	}

	for _, node := range g.sortedNodes() {
		if !visited[node] {
			dfs(node, nil)
		}
	}
	return cycles
}

// TopologicalSort returns entities with principals before their dependents.
// Ties are broken by type name so the order is stable. A cycle means no
// creation order exists without an explicit principal designation.
func (g *DependencyGraph) TopologicalSort() ([]*EntityMetadata, error) {
	outDegree := make(map[string]int, len(g.nodes))
	reverse := make(map[string][]string)
	for node := range g.nodes {
		outDegree[node] = len(g.edges[node])
		for _, target := range g.edges[node] {
			reverse[target] = append(reverse[target], node)
		}
	}

	var queue []string
	for _, node := range g.sortedNodes() {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]*EntityMetadata, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, g.nodes[node])

		dependents := reverse[node]
		sort.Strings(dependents)
		for _, dep := range dependents {
			outDegree[dep]--
			if outDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(result) != len(g.nodes) {
		cycles := g.DetectCycles()
		if len(cycles) > 0 && len(cycles[0]) > 1 {
			return nil, fmt.Errorf("%w (%s)",
				ormerrors.AmbiguousPrincipal(cycles[0][0], cycles[0][1]), formatCycles(cycles))
		}
		return nil, fmt.Errorf("circular foreign key dependency detected")
	}
	return result, nil
}

// Dependencies returns the principals a type depends on directly
func (g *DependencyGraph) Dependencies(typeName string) []string {
	return append([]string(nil), g.edges[typeName]...)
}

// Dependents returns the types that depend on the given type directly
func (g *DependencyGraph) Dependents(typeName string) []string {
	var out []string
	for _, node := range g.sortedNodes() {
		if contains(g.edges[node], typeName) {
			out = append(out, node)
		}
	}
	return out
}

func (g *DependencyGraph) sortedNodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatCycles(cycles [][]string) string {
	parts := make([]string, len(cycles))
	for i, cycle := range cycles {
		parts[i] = strings.Join(cycle, " -> ") + " -> " + cycle[0]
	}
	return strings.Join(parts, "; ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
