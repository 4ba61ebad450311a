package sliceutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type program struct {
	ID   string
	Name string
}

func TestDeduplicate(t *testing.T) {
	t.Parallel()
	byID := func(p program) string { return p.ID }

	tests := []struct {
		name  string
		items []program
		key   func(program) string
		want  []program
	}{
		{
			name:  "empty",
			items: []program{},
			key:   byID,
			want:  []program{},
		},
		{
			name:  "no duplicates",
			items: []program{{"ai", "ИИ"}, {"ai_product", "AI Product"}},
			key:   byID,
			want:  []program{{"ai", "ИИ"}, {"ai_product", "AI Product"}},
		},
		{
			name:  "first occurrence wins",
			items: []program{{"ai", "first"}, {"ai_product", "AI Product"}, {"ai", "second"}},
			key:   byID,
			want:  []program{{"ai", "first"}, {"ai_product", "AI Product"}},
		},
		{
			name:  "derived key",
			items: []program{{"AI", "a"}, {"ai", "b"}, {"Ai", "c"}},
			key:   func(p program) string { return strings.ToLower(p.ID) },
			want:  []program{{"AI", "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Deduplicate(tt.items, tt.key))
		})
	}
}

func TestDeduplicate_Nil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Deduplicate[int, int](nil, func(i int) int { return i }))
}

func BenchmarkDeduplicate(b *testing.B) {
	items := make([]int, 1000)
	for i := range items {
		items[i] = i % 100
	}
	for b.Loop() {
		_ = Deduplicate(items, func(i int) int { return i })
	}
}
