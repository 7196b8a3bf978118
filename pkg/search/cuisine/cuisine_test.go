package cuisine

import (
	"testing"

	"ai-restaurant-search-be/pkg/search/langctx"

	"github.com/stretchr/testify/assert"
)

func TestEveryEntryIsComplete(t *testing.T) {
	for _, k := range Keys() {
		e, ok := Lookup(k)
		assert.True(t, ok)
		assert.Equal(t, k, e.Key)
		assert.NotEmpty(t, e.IncludedTypes, k)
		for _, l := range langctx.Supported {
			assert.NotEmpty(t, e.Terms[l], "%s missing %s term", k, l)
		}
	}
}

func TestDetect(t *testing.T) {
	got, ok := Detect("Italian restaurants nearby")
	assert.True(t, ok)
	assert.Equal(t, "italian", got)

	got, ok = Detect("איפה יש סושי טוב")
	assert.True(t, ok)
	assert.Equal(t, "sushi", got)

	_, ok = Detect("somewhere to eat")
	assert.False(t, ok)
}

func TestTypeMatchAndValidity(t *testing.T) {
	assert.True(t, TypeMatch("italian", []string{"restaurant", "italian_restaurant"}))
	assert.False(t, TypeMatch("italian", []string{"sushi_restaurant"}))
	assert.False(t, TypeMatch("klingon", []string{"restaurant"}))

	assert.True(t, IsValid(""))
	assert.True(t, IsValid("vegan"))
	assert.False(t, IsValid("klingon"))
	assert.Equal(t, "מסעדה איטלקית", Term("italian", langctx.Hebrew))
}
