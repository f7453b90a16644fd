package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildQueryDropsStopWordsAndDuplicates(t *testing.T) {
	q := BuildQuery("the Quick quick brown Fox and the dog")
	require.Equal(t, `"quick" OR "brown" OR "fox" OR "dog"`, q)
}

func TestBuildQueryAllStopWords(t *testing.T) {
	require.Equal(t, "", BuildQuery("the a an of"))
}

func TestBuildQueryEmpty(t *testing.T) {
	require.Equal(t, "", BuildQuery("   "))
}

func TestBuildQueryStripsPunctuation(t *testing.T) {
	require.Equal(t, `"hello" OR "world"`, BuildQuery("hello, world!"))
}
