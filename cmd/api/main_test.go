package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	day, err := parseDay("")
	require.NoError(t, err)
	assert.True(t, day.IsZero(), "empty date means today")

	day, err = parseDay("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), day)

	day, err = parseDay("2024-03-15T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 15, day.Day())

	_, err = parseDay("yesterday")
	assert.Error(t, err)
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 0, parseLimit(""))
	assert.Equal(t, 0, parseLimit("abc"))
	assert.Equal(t, 0, parseLimit("-5"))
	assert.Equal(t, 20, parseLimit("20"))
}
