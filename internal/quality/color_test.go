package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexToRGBRejectsMalformedHex(t *testing.T) {
	_, _, _, err := hexToRGB("not-a-color")
	require.Error(t, err)
}

func TestDeltaE76IsZeroForIdenticalColors(t *testing.T) {
	lab, err := hexToLab("#336699")
	require.NoError(t, err)
	assert.Equal(t, 0.0, deltaE76(lab, lab))
}

func TestDeltaE76IsLargeForBlackVsWhite(t *testing.T) {
	black, err := hexToLab("#000000")
	require.NoError(t, err)
	white, err := hexToLab("#ffffff")
	require.NoError(t, err)
	assert.Greater(t, deltaE76(black, white), 90.0)
}

func TestWithinPaletteToleranceMatchesClosestEntry(t *testing.T) {
	palette := []string{"#102030", "#ff0000"}
	assert.True(t, withinPaletteTolerance("#112031", palette, 15))
	assert.False(t, withinPaletteTolerance("#00ffff", palette, 15))
}

func TestWithinPaletteToleranceRejectsMalformedColor(t *testing.T) {
	assert.False(t, withinPaletteTolerance("garbage", []string{"#000000"}, 15))
}
