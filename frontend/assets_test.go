package frontend

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistServesPage(t *testing.T) {
	page, err := fs.ReadFile(Dist(), "index.html")
	require.NoError(t, err)
	assert.Contains(t, string(page), "app.js")

	_, err = fs.Stat(Dist(), "app.js")
	assert.NoError(t, err)
}
