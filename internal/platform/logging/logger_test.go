package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLoggerCarriesApp(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "lostfound", "debug", "json")

	logger.Debug().Str("claim_id", "c1").Msg("claim submitted")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "lostfound", line["app"])
	assert.Equal(t, "c1", line["claim_id"])
	assert.Equal(t, "claim submitted", line["message"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}
