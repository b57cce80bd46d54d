package mapview

import (
	"testing"

	"github.com/stretchr/testify/require"

	"allergen-map/internal/colormap"
)

func defaultMapping(t *testing.T) *colormap.Mapping {
	t.Helper()
	m, err := colormap.New(colormap.DefaultDomain())
	require.NoError(t, err)
	return m
}
