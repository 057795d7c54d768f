package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNum_EmptyWhenInverted(t *testing.T) {
	assert.True(t, Num(5, 4).IsEmpty())
	assert.False(t, Num(4, 4).IsEmpty())
}

func TestMeet(t *testing.T) {
	tests := []struct {
		name string
		a, b Intersect
		want Intersect
	}{
		{"overlapping ranges", Num(10, 20), Num(15, 30), Num(15, 20)},
		{"disjoint ranges", Num(0, 5), Num(6, 9), Empty(TypeNum)},
		{"all is identity", All(TypeText), Text("a", "b"), Text("a", "b")},
		{"text sets", Text("a", "b", "c"), Text("c", "b", "z"), Text("b", "c")},
		{"disjoint text", Text("a"), Text("b"), Empty(TypeText)},
		{"empty absorbs", Empty(TypeNum), All(TypeNum), Empty(TypeNum)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Meet(tt.b)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestUnion(t *testing.T) {
	assert.True(t, Num(0, 30).Equal(Num(0, 10).Union(Num(20, 30))))
	assert.True(t, Text("a", "b").Equal(Text("a").Union(Text("b", "a"))))
	assert.True(t, All(TypeText).Union(Text("a")).IsAll())
	assert.True(t, Text("x").Equal(Empty(TypeText).Union(Text("x"))))
}

func TestWithin(t *testing.T) {
	assert.True(t, Num(15, 20).Within(Num(10, 30)))
	assert.False(t, Num(5, 20).Within(Num(10, 30)))
	assert.True(t, Text("a").Within(Text("a", "b")))
	assert.False(t, Text("a", "c").Within(Text("a", "b")))
	assert.True(t, Text("a").Within(All(TypeText)))
	assert.False(t, All(TypeText).Within(Text("a")))
	assert.True(t, Empty(TypeNum).Within(Num(0, 0)))
}

func TestContains(t *testing.T) {
	assert.True(t, Num(1, 2).Contains(int64(2)))
	assert.False(t, Num(1, 2).Contains("2"))
	assert.True(t, Text("x", "y").Contains("y"))
	assert.False(t, Empty(TypeText).Contains("y"))
	assert.True(t, All(TypeNum).Contains(3.5))
}

func TestIntersectJSON(t *testing.T) {
	for _, in := range []Intersect{Num(1.5, 7), Text("b", "a"), All(TypeText), Empty(TypeNum)} {
		data, err := json.Marshal(in)
		require.NoError(t, err)

		var out Intersect
		require.NoError(t, json.Unmarshal(data, &out))
		assert.True(t, in.Equal(out), "round trip of %s gave %s", in, out)
	}
}
