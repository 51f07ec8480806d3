package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSON(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(Settings{Level: "warn", Format: FormatAuto}, &buf))

	log.Info().Msg("hidden")
	log.Warn().Str("component", "test").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "shown", line["message"])
	require.Equal(t, "test", line["component"])
}

func TestSetupWriter_InvalidLevel(t *testing.T) {
	require.Error(t, SetupWriter(Settings{Level: "loud"}, &bytes.Buffer{}))
}

func TestAnyChanged(t *testing.T) {
	set := map[string]bool{}
	changed := func(name string) bool { return set[name] }
	require.False(t, AnyChanged(changed))

	set["bus"] = true
	require.False(t, AnyChanged(changed))

	set["log-file"] = true
	require.True(t, AnyChanged(changed))
}
