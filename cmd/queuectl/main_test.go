package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistration(t *testing.T) {
	root := newRootCmd()

	expected := []string{
		"enqueue", "status", "list", "stats", "metrics",
		"dlq", "requeue", "config", "worker", "serve", "initdb",
	}
	var got []string
	for _, cmd := range root.Commands() {
		got = append(got, cmd.Name())
	}
	for _, name := range expected {
		assert.Contains(t, got, name)
	}
}

func TestResolveRunAt(t *testing.T) {
	t.Run("neither set", func(t *testing.T) {
		got, err := resolveRunAt("", 0)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("both set", func(t *testing.T) {
		_, err := resolveRunAt("2025-06-01T12:00:00Z", time.Minute)
		assert.Error(t, err)
	})

	t.Run("rfc3339", func(t *testing.T) {
		got, err := resolveRunAt("2025-06-01T12:00:00Z", 0)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), got.UTC())
	})

	t.Run("garbage timestamp", func(t *testing.T) {
		_, err := resolveRunAt("tomorrow", 0)
		assert.Error(t, err)
	})

	t.Run("delay", func(t *testing.T) {
		before := time.Now().UTC()
		got, err := resolveRunAt("", 30*time.Second)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.WithinDuration(t, before.Add(30*time.Second), *got, time.Second)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "long …", truncate("long string", 5))
}
