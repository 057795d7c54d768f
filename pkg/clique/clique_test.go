package clique

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func edges(pairs ...[2]int) func(a, b int) bool {
	set := make(map[[2]int]bool)
	for _, p := range pairs {
		set[p] = true
		set[[2]int{p[1], p[0]}] = true
	}
	return func(a, b int) bool { return set[[2]int{a, b}] }
}

func TestMaximal(t *testing.T) {
	tests := []struct {
		name     string
		vertices []int
		adjacent func(a, b int) bool
		want     [][]int
	}{
		{
			name:     "isolated vertices",
			vertices: []int{3, 1, 2},
			adjacent: edges(),
			want:     [][]int{{1}, {2}, {3}},
		},
		{
			name:     "triangle with tail",
			vertices: []int{1, 2, 3, 4},
			adjacent: edges([2]int{1, 2}, [2]int{2, 3}, [2]int{1, 3}, [2]int{3, 4}),
			want:     [][]int{{1, 2, 3}, {3, 4}},
		},
		{
			name:     "two overlapping cliques",
			vertices: []int{1, 2, 3, 4, 5},
			adjacent: edges(
				[2]int{1, 2}, [2]int{1, 3}, [2]int{2, 3},
				[2]int{2, 4}, [2]int{3, 4}, [2]int{4, 5},
			),
			want: [][]int{{1, 2, 3}, {2, 3, 4}, {4, 5}},
		},
		{
			name:     "empty graph",
			vertices: nil,
			adjacent: edges(),
			want:     [][]int{{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Maximal(tt.vertices, tt.adjacent)
			if len(tt.want) == 1 && len(tt.want[0]) == 0 {
				assert.Len(t, got, 1)
				assert.Empty(t, got[0])
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaximal_CoversEveryVertex(t *testing.T) {
	// Complete graph on 6 vertices minus a perfect matching.
	vertices := []int{0, 1, 2, 3, 4, 5}
	missing := map[[2]int]bool{{0, 1}: true, {2, 3}: true, {4, 5}: true}
	adjacent := func(a, b int) bool {
		if a > b {
			a, b = b, a
		}
		return !missing[[2]int{a, b}]
	}

	got := Maximal(vertices, adjacent)
	// One vertex from each missing pair: 2^3 cliques of size 3.
	assert.Len(t, got, 8)
	seen := make(map[int]bool)
	for _, c := range got {
		assert.Len(t, c, 3)
		for _, v := range c {
			seen[v] = true
		}
	}
	assert.Len(t, seen, 6)
}

func TestMaximal_StringKeys(t *testing.T) {
	got := Maximal([]string{"b", "a", "c"}, func(a, b string) bool { return a != "c" && b != "c" })
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, got)
}
