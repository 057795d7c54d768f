package db

import (
	"math/big"
	"testing"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/cq"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{int32(7), int64(7)},
		{uint8(3), int64(3)},
		{float32(1.5), 1.5},
		{[]byte("abc"), "abc"},
		{big.NewInt(42), int64(42)},
		{time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), "2020-01-02T03:04:05Z"},
		{true, true},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.in)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got)
	}

	_, ok := Normalize(nil)
	assert.False(t, ok)
}

func TestRows(t *testing.T) {
	r := NewRows()
	r.Add([]any{"a", int64(1)})
	r.Add([]any{"a", nil})
	r.Add([]any{[]byte("a"), int32(1)})
	r.Add([]any{"b", 2.0})

	assert.Equal(t, []cq.Tuple{{"a", int64(1)}, {"b", 2.0}}, r.Tuples())
	assert.Equal(t, 1, r.Skipped())
}
