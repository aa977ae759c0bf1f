package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandQuery_UnionsSynonyms(t *testing.T) {
	expanded := ExpandQuery("create blog post")
	for _, want := range []string{"create", "blog", "post", "add", "new", "publish", "ghost", "cms", "article"} {
		require.Contains(t, strings.Fields(expanded), want)
	}
}

func TestExpandQuery_UnknownWordsPassThrough(t *testing.T) {
	expanded := ExpandQuery("frobnicate widgets")
	require.Contains(t, strings.Fields(expanded), "frobnicate")
	require.Contains(t, strings.Fields(expanded), "widgets")
}

func TestExpandQuery_Deterministic(t *testing.T) {
	a := ExpandQuery("create list search")
	b := ExpandQuery("create list search")
	require.Equal(t, a, b)
}

func TestExpandQuery_EmptyInput(t *testing.T) {
	require.Equal(t, "", ExpandQuery(""))
}
