package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerRenamesCoreFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo))
	logger.Debug("hidden")
	logger.Warn("reward payout deferred", "market", "0xabc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "WARN", line["severity"])
	require.Equal(t, "reward payout deferred", line["message"])
	require.Equal(t, "0xabc", line["market"])
	require.Contains(t, line, "timestamp")
	require.NotContains(t, buf.String(), "hidden")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer abc").Value.String())
	require.Equal(t, "mint", MaskField("action", "mint").Value.String())
	require.Equal(t, "", MaskField("token", "").Value.String())
	require.True(t, IsSensitive("archive_dsn"))
	require.False(t, IsSensitive("market"))
}

func TestHandlerRedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo))
	logger.Info("archive opened", "driver", "postgres", "dsn", "postgres://user:pw@db/events", "jwt_secret", "")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "postgres", line["driver"])
	require.Equal(t, RedactedValue, line["dsn"])
	require.Equal(t, "", line["jwt_secret"])
	require.NotContains(t, buf.String(), "pw@db")
}
