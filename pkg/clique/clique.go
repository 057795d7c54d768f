// Package clique enumerates maximal cliques with the Bron–Kerbosch algorithm
// using Tomita pivoting.
package clique

import (
	"cmp"
	"slices"
)

// Maximal returns every maximal clique of the undirected graph over vertices
// whose edges are given by adjacent. adjacent must be symmetric; it is never
// called with a == b. Each clique is sorted and the cliques are ordered
// lexicographically, so the output is deterministic.
func Maximal[K cmp.Ordered](vertices []K, adjacent func(a, b K) bool) [][]K {
	vs := slices.Clone(vertices)
	slices.Sort(vs)
	vs = slices.Compact(vs)

	n := len(vs)
	adj := make([][]bool, n)
	for i := range adj {
		adj[i] = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if adjacent(vs[i], vs[j]) {
				adj[i][j] = true
				adj[j][i] = true
			}
		}
	}

	s := &search{adj: adj}
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	s.tomita(nil, p, nil)

	out := make([][]K, 0, len(s.cliques))
	for _, c := range s.cliques {
		keys := make([]K, len(c))
		for i, idx := range c {
			keys[i] = vs[idx]
		}
		out = append(out, keys)
	}
	slices.SortFunc(out, func(a, b []K) int { return slices.Compare(a, b) })
	return out
}

type search struct {
	adj     [][]bool
	cliques [][]int
}

// tomita works on index sets kept in ascending order.
func (s *search) tomita(r, p, x []int) {
	if len(p) == 0 && len(x) == 0 {
		c := slices.Clone(r)
		slices.Sort(c)
		s.cliques = append(s.cliques, c)
		return
	}

	u := s.pivot(p, x)
	candidates := make([]int, 0, len(p))
	for _, v := range p {
		if !s.adj[u][v] {
			candidates = append(candidates, v)
		}
	}

	for _, v := range candidates {
		s.tomita(append(r, v), s.neighbours(p, v), s.neighbours(x, v))
		p = remove(p, v)
		x = insert(x, v)
	}
}

// pivot picks the vertex of P ∪ X with the most neighbours in P. Ties keep
// the lowest index.
func (s *search) pivot(p, x []int) int {
	best, bestCount := -1, -1
	visit := func(u int) {
		count := 0
		for _, v := range p {
			if s.adj[u][v] {
				count++
			}
		}
		if count > bestCount || (count == bestCount && u < best) {
			best, bestCount = u, count
		}
	}
	for _, u := range p {
		visit(u)
	}
	for _, u := range x {
		visit(u)
	}
	return best
}

func (s *search) neighbours(set []int, v int) []int {
	out := make([]int, 0, len(set))
	for _, w := range set {
		if s.adj[v][w] {
			out = append(out, w)
		}
	}
	return out
}

func remove(set []int, v int) []int {
	i, found := slices.BinarySearch(set, v)
	if !found {
		return set
	}
	out := make([]int, 0, len(set)-1)
	out = append(out, set[:i]...)
	return append(out, set[i+1:]...)
}

func insert(set []int, v int) []int {
	i, found := slices.BinarySearch(set, v)
	if found {
		return set
	}
	out := make([]int, 0, len(set)+1)
	out = append(out, set[:i]...)
	out = append(out, v)
	return append(out, set[i:]...)
}
