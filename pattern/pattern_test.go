package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"star matches anything", "*", "anything", true},
		{"star matches empty", "*", "", true},
		{"exact equality", "admin.delete", "admin.delete", true},
		{"exact mismatch", "admin.delete", "admin.create", false},
		{"prefix wildcard", "public.*", "public.x", true},
		{"prefix wildcard no match", "public.*", "private.x", false},
		{"suffix wildcard", "*.delete", "admin.delete", true},
		{"middle wildcard", "admin.*.delete", "admin.users.delete", true},
		{"middle wildcard spans dots", "admin.*.delete", "admin.a.b.delete", true},
		{"multiple wildcards", "a.*.b.*.c", "a.x.b.y.c", true},
		{"multiple wildcards out of order fails", "a.*.b.*.c", "a.b.x.c", false},
		{"empty pattern empty value", "", "", true},
		{"empty pattern nonempty value", "", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.value))
			assert.Equal(t, tt.want, Compile(tt.pattern).Match(tt.value))
		})
	}
}

func TestMatchIsPureAndDeterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		assert.True(t, Match("*", "whatever"))
		assert.True(t, Match("public.*", "public.a.b.c"))
	}
}

func TestCompiledStringReturnsOriginal(t *testing.T) {
	assert.Equal(t, "public.*", Compile("public.*").String())
}
