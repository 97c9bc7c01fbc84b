package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC) }

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("Error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "off", levelOff.String())
}

func TestLogger_WritesOrderedJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Now: fixedNow})

	log.With(Component("engine"), StudentID("s1")).Info("xp awarded", XPAmount(50), Err(errors.New("boom")))

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, `{"ts":"2026-03-02T18:30:00Z","level":"info","msg":"xp awarded","component":"engine","student_id":"s1"`), line)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(50), entries[0]["xp_amount"])
	assert.Equal(t, "boom", entries[0]["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn, Now: fixedNow})

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("kept")
	log.Error("kept")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.False(t, log.Enabled(LevelInfo))
}

func TestLogger_LaterFieldWins(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Now: fixedNow}).With(Operation("bound"))

	log.Info("override", Operation("call"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "call", entries[0]["operation"])
	assert.Equal(t, 1, strings.Count(buf.String(), `"operation"`))
}

func TestLogger_WithDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Options{Output: &buf, Now: fixedNow})
	_ = parent.With(CourseID("c1"))

	parent.Info("plain")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0], "course_id")
}

func TestLogger_Caller(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Output: &buf, AddCaller: true, Now: fixedNow}).Info("here")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0]["caller"], "logger_test.go:")
}

func TestLogger_ConcurrentChildrenShareWriter(t *testing.T) {
	var buf bytes.Buffer
	root := New(Options{Output: &buf, Now: fixedNow})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			root.With(Int("worker", i)).Info("tick")
		}(i)
	}
	wg.Wait()

	assert.Len(t, decodeLines(t, &buf), 20)
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.False(t, log.Enabled(LevelError))
	log.Error("nothing")
}
