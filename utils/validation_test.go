package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFolderName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"plain", "holidays", nil},
		{"spaces and unicode", "Été 2024", nil},
		{"empty", "", ErrInvalidArgument},
		{"too long", strings.Repeat("a", 256), ErrInvalidArgument},
		{"dot", ".", ErrInvalidPath},
		{"dot dot", "..", ErrInvalidPath},
		{"slash", "a/b", ErrInvalidArgument},
		{"backslash", `a\b`, ErrInvalidArgument},
		{"nul", "a\x00b", ErrInvalidArgument},
		{"hidden", ".thumbs", ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFolderName(tt.input)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNormalizeRelativePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/", ""},
		{"a", "a"},
		{"/a/b/", "a/b"},
		{"a//b/./c", "a/b/c"},
		{`a\b`, "a/b"},
	}
	for _, tt := range tests {
		got, err := NormalizeRelativePath(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}

	for _, bad := range []string{"..", "a/../b", "../etc", "a\x00", "\xff"} {
		_, err := NormalizeRelativePath(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "a", JoinRelativePath("", "a"))
	assert.Equal(t, "a/b", JoinRelativePath("a", "b"))

	assert.Equal(t, "", ParentPath("a"))
	assert.Equal(t, "a", ParentPath("a/b"))
	assert.Equal(t, "a/b", ParentPath("a/b/c"))

	assert.Nil(t, PathSegments(""))
	assert.Equal(t, []string{"a", "b"}, PathSegments("a/b"))
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
	assert.Equal(t, 0, NewPagination(1, 0, 5).TotalPages)
}
