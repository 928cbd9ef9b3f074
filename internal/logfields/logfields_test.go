package logfields

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorNil(t *testing.T) {
	attr := Error(nil)
	require.Equal(t, KeyError, attr.Key)
	require.Equal(t, "", attr.Value.String())
}

func TestErrorNonNil(t *testing.T) {
	attr := Error(errors.New("boom"))
	require.Equal(t, "boom", attr.Value.String())
}

func TestFieldKeysStable(t *testing.T) {
	require.Equal(t, "provider", Provider("shopify").Key)
	require.Equal(t, "batch_id", BatchID("b1").Key)
	require.Equal(t, "event_count", EventCount(3).Key)
}
