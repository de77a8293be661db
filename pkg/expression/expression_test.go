package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_InvalidExpression(t *testing.T) {
	_, err := Compile([]string{`Size >`})
	assert.Error(t, err)
}

func TestCompile_NonBoolExpression(t *testing.T) {
	_, err := Compile([]string{`Size + 1`})
	assert.Error(t, err)
}

func TestCheckArchiveSingleMatch(t *testing.T) {
	expressions, err := Compile([]string{
		`Size < 100`,
		`Name startsWith "desolation_"`,
	})
	require.NoError(t, err)

	match, reason, err := CheckArchiveSingleMatchWithReason(&Archive{
		Name: "desolation_core",
		Path: "/mods/desolation_core.pbo",
		Size: 1024,
	}, expressions)
	require.NoError(t, err)
	assert.True(t, match)
	assert.Equal(t, `Name startsWith "desolation_"`, reason)

	match, err = CheckArchiveSingleMatch(&Archive{
		Name: "ace_main",
		Path: "/mods/ace_main.pbo",
		Size: 1024,
	}, expressions)
	require.NoError(t, err)
	assert.False(t, match)
}
