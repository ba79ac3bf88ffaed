package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSearchVector(t *testing.T) {
	vector := BuildSearchVector(
		"TypeScript Type Error: cannot assign void to string",
		"Happens since v5.2, see `tsc --noEmit`.",
		[]string{"bug", "compiler"},
	)

	assert.Equal(t,
		"typescript type error cannot assign void string happens since see tsc noemit bug compiler",
		vector)
}

func TestBuildSearchVectorDropsShortTokens(t *testing.T) {
	vector := BuildSearchVector("a to of it", "is on at", nil)
	assert.Empty(t, vector)
}

func TestBuildSearchVectorDeterministic(t *testing.T) {
	a := BuildSearchVector("Panic in worker", "nil map write", []string{"runtime"})
	b := BuildSearchVector("Panic in worker", "nil map write", []string{"runtime"})
	assert.Equal(t, a, b)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"punctuation collapsed", "foo-bar, baz!", []string{"foo", "bar", "baz"}},
		{"short tokens dropped", "go is ok but golang stays", []string{"but", "golang", "stays"}},
		{"lowercased", "HTTP Timeout", []string{"http", "timeout"}},
		{"empty", "", nil},
		{"digits kept", "error 500 on v1.2.3", []string{"error", "500"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}
