package devtype_test

import (
	"testing"

	"github.com/canonical/seatd/internal/devtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRejectsRegularFile(t *testing.T) {
	_, err := devtype.Classify("/etc/passwd")
	require.Error(t, err)
}

func TestClassifyRejectsMissingPath(t *testing.T) {
	_, err := devtype.Classify("/does/not/exist")
	require.Error(t, err)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "drm", devtype.DRM.String())
	assert.Equal(t, "evdev", devtype.EVDEV.String())
	assert.Equal(t, "unknown", devtype.Unknown.String())
}
