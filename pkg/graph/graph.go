// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package graph implements the dependency graph: a directed graph of rule
// names, topological sort, and target-scoped post-order traversal.
package graph

import (
	"fmt"
	"sort"
)

// Graph is a directed graph whose nodes are rule names and whose edges
// point from a task to each of its dependencies.
type Graph struct {
	nodes map[string]bool
	edges map[string][]string // task -> deps, insertion order preserved
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: map[string]bool{}, edges: map[string][]string{}}
}

// AddTask registers a node. Re-adding an existing node is a no-op.
func (g *Graph) AddTask(name string) {
	g.nodes[name] = true
	if _, ok := g.edges[name]; !ok {
		g.edges[name] = nil
	}
}

// AddDependency adds an edge task -> dep. Both nodes must already exist.
func (g *Graph) AddDependency(task, dep string) error {
	if !g.nodes[task] {
		return fmt.Errorf("task not found %q", task)
	}
	if !g.nodes[dep] {
		return fmt.Errorf("dependency not found %q", dep)
	}
	g.edges[task] = append(g.edges[task], dep)
	return nil
}

// Deps returns the direct dependencies of task, in the order they were added.
func (g *Graph) Deps(task string) []string {
	return g.edges[task]
}

// Has reports whether name is a node in the graph.
func (g *Graph) Has(name string) bool {
	return g.nodes[name]
}

// GetSortedTasks returns a dependency-first ordering: every task appears
// after all of its (transitive) dependencies.
//
// With a target, it performs a post-order DFS from that single node over
// the task->dep edges, which already yields deps before the task that
// needs them — this mirrors the original engine's target-scoped walk,
// which does not additionally reverse that order (only the no-target,
// full-toposort path below does).
//
// Without a target, it computes a full topological sort (task before dep,
// since edges run task->dep) and reverses it, which is algebraically the
// same "deps first" order the DFS path produces directly.
func (g *Graph) GetSortedTasks(target string) ([]string, error) {
	if target != "" {
		if !g.nodes[target] {
			return nil, fmt.Errorf("%s", g.targetNotFoundMessage(target))
		}
		var order []string
		visited := map[string]bool{}
		var visit func(string)
		visit = func(node string) {
			if visited[node] {
				return
			}
			visited[node] = true
			for _, dep := range g.edges[node] {
				visit(dep)
			}
			order = append(order, node)
		}
		visit(target)
		return order, nil
	}

	order, err := g.toposort()
	if err != nil {
		return nil, err
	}
	reverse(order)
	return order, nil
}

// toposort returns nodes ordered task-before-dep (Kahn's algorithm over the
// reverse adjacency, since in-degree here counts "is a dependency of").
func (g *Graph) toposort() ([]string, error) {
	// inDegree[n] = number of tasks that depend on n (i.e. edges INTO n in
	// the task->dep graph point the other way for Kahn's purposes: we want
	// nodes with no outstanding dependents processed first in the returned
	// task-before-dep order).
	remaining := map[string]int{} // node -> number of unresolved dependents
	for _, deps := range g.edges {
		for _, dep := range deps {
			remaining[dep]++
		}
	}

	var ready []string
	for node := range g.nodes {
		if remaining[node] == 0 {
			ready = append(ready, node)
		}
	}
	sort.Strings(ready) // deterministic order among equally-ready nodes

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		for _, dep := range g.edges[node] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(g.nodes) {
		var cyclic []string
		for node, n := range remaining {
			if n > 0 {
				cyclic = append(cyclic, node)
			}
		}
		sort.Strings(cyclic)
		return nil, fmt.Errorf("found a circular dependency in the graph: %v", cyclic)
	}

	return order, nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func (g *Graph) targetNotFoundMessage(target string) string {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	suggestions := suggestSimilar(target, names, 10)
	return fmt.Sprintf("%s not found. Similar targets include:\n%s", target, join(suggestions, "\n"))
}

func join(items []string, sep string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += sep
		}
		out += item
	}
	return out
}
