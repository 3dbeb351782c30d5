package tenants_test

import (
	"testing"

	"github.com/jrsteele09/rhr-session/tenants"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	require.Equal(t, "acme-workforce", tenants.Slugify("Acme Workforce"))
	require.Equal(t, "o-brien-sons", tenants.Slugify("  O'Brien & Sons! "))
}
