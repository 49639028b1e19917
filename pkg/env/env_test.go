package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("STOREFRONT_TEST_FORMAT", "   ")
	assert.Equal(t, "json", Get("STOREFRONT_TEST_FORMAT", "json"))

	t.Setenv("STOREFRONT_TEST_FORMAT", " console ")
	assert.Equal(t, "console", Get("STOREFRONT_TEST_FORMAT", "json"))
}

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("STOREFRONT_TEST_INSTANCE", "")
	t.Setenv("STOREFRONT_TEST_DYNO", "web.1")
	assert.Equal(t, "web.1", First("STOREFRONT_TEST_INSTANCE", "STOREFRONT_TEST_DYNO"))

	t.Setenv("STOREFRONT_TEST_INSTANCE", "storefront-a")
	assert.Equal(t, "storefront-a", First("STOREFRONT_TEST_INSTANCE", "STOREFRONT_TEST_DYNO"))
	assert.Empty(t, First("STOREFRONT_TEST_UNSET"))
}
