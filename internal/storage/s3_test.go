package storage

import "testing"

func TestBucketKey(t *testing.T) {
	tests := []struct {
		prefix string
		name   string
		want   string
	}{
		{prefix: "", name: "aig/imdb.json.zst", want: "aig/imdb.json.zst"},
		{prefix: "litmus", name: "aig/imdb.json.zst", want: "litmus/aig/imdb.json.zst"},
		{prefix: "/litmus/", name: "schema/x", want: "litmus/schema/x"},
	}

	for _, tt := range tests {
		b := NewBucket(nil, "bucket", tt.prefix)
		if got := b.Key(tt.name); got != tt.want {
			t.Fatalf("expected %q, got %q", tt.want, got)
		}
	}
}
