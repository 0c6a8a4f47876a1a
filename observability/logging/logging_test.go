package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelInfo))
	logger.Debug("hidden")
	logger.Info("committed", slog.String("operation", "supply"), MaskField("jwtSecret", "s3cr3t"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "committed", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Contains(t, line, "timestamp")
	require.Equal(t, "supply", line["operation"])
	require.Equal(t, RedactedValue, line["jwtSecret"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestMaskFieldKeepsAllowlistedAndEmpty(t *testing.T) {
	require.Equal(t, "supply", MaskField("operation", "supply").Value.String())
	require.Equal(t, "", MaskField("passphrase", "").Value.String())
	require.Equal(t, RedactedValue, MaskField("passphrase", "hunter2").Value.String())
}

func TestHandlerRedactsSecretsAndShortensAddresses(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelInfo))
	admin := "dfc1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzyxwvu"
	logger.Info("bootstrap",
		slog.String("admin", admin),
		slog.String("jwt_secret", "s3cr3t"),
		slog.String("dsn", "postgres://u:pw@db/events"),
		slog.String("symbol", "DFC"),
		slog.Uint64("height", 7))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, RedactedValue, line["jwt_secret"])
	require.Equal(t, RedactedValue, line["dsn"])
	require.Equal(t, ShortAddress(admin), line["admin"])
	require.NotContains(t, buf.String(), admin)
	require.Equal(t, "DFC", line["symbol"])
	require.Equal(t, float64(7), line["height"])
}
