package boot

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(sink *strings.Builder, status Status) *GenericTable {
	table := completeTable()
	table.Write = func(s []byte) Status {
		if status != StatusSuccess {
			return status
		}
		sink.Write(s)
		return StatusSuccess
	}
	return table
}

func TestLoggerEmitsThroughWrite(t *testing.T) {
	var sink strings.Builder
	log := NewLogger(writeTable(&sink, StatusSuccess), slog.LevelDebug)

	log.Info("mapped pages", slog.Int("count", 3), slog.String("perms", "rw-"))

	line := sink.String()
	assert.True(t, strings.HasPrefix(line, "INFO : mapped pages"), line)
	assert.Contains(t, line, " count=3")
	assert.Contains(t, line, " perms=rw-")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestLoggerDropsRecordsBelowLevel(t *testing.T) {
	var sink strings.Builder
	log := NewLogger(writeTable(&sink, StatusSuccess), slog.LevelWarn)

	log.Debug("probe step")
	log.Info("probe done")
	require.Empty(t, sink.String())

	log.Warn("probe exhausted")
	assert.True(t, strings.HasPrefix(sink.String(), "WARN : probe exhausted"))
}

func TestLoggerLevelTags(t *testing.T) {
	var sink strings.Builder
	log := NewLogger(writeTable(&sink, StatusSuccess), slog.LevelDebug-4)

	log.Log(context.Background(), slog.LevelDebug-4, "trace")
	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Error("error")

	lines := strings.Split(strings.TrimSuffix(sink.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "TRACE:"))
	assert.True(t, strings.HasPrefix(lines[1], "DEBUG:"))
	assert.True(t, strings.HasPrefix(lines[2], "INFO :"))
	assert.True(t, strings.HasPrefix(lines[3], "WARN :"))
	assert.True(t, strings.HasPrefix(lines[4], "ERROR:"))
}

func TestLoggerWithCarriesAttrs(t *testing.T) {
	var sink strings.Builder
	log := NewLogger(writeTable(&sink, StatusSuccess), slog.LevelInfo)

	log.With(slog.String("subsystem", "heap")).Info("grew slab", slog.Int("class", 2))

	line := sink.String()
	assert.Contains(t, line, " subsystem=heap")
	assert.Contains(t, line, " class=2")
	assert.Less(t, strings.Index(line, "subsystem=heap"), strings.Index(line, "class=2"),
		"attached attrs precede per-record attrs")
}

func TestLoggerSurvivesWriteFailure(t *testing.T) {
	var sink strings.Builder
	log := NewLogger(writeTable(&sink, StatusNotSupported), slog.LevelInfo)

	// slog swallows handler errors; the call must simply not panic.
	log.Info("lost")
	assert.Empty(t, sink.String())
}

func TestDiscardLogger(t *testing.T) {
	log := DiscardLogger()
	require.NotNil(t, log)
	log.Error("dropped")
}
