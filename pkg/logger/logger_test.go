package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesStructuredEntry(t *testing.T) {
	l := New("raftcore-test", "test")
	l.DisableConsoleOutput()
	ch := l.Subscribe()

	l.Info("role changed", "from", "follower", "to", "candidate", "term", 3)

	select {
	case entry := <-ch:
		assert.Equal(t, LevelInfo, entry.Level)
		assert.Equal(t, "role changed", entry.Message)
		assert.Equal(t, "follower", entry.Fields["from"])
		assert.Equal(t, "candidate", entry.Fields["to"])
		assert.Equal(t, "3", entry.Fields["term"])
	case <-time.After(time.Second):
		t.Fatal("no entry delivered")
	}
}

func TestSetLevelFilters(t *testing.T) {
	l := New("raftcore-test", "test")
	l.DisableConsoleOutput()
	l.SetLevel(LevelWarn)
	ch := l.Subscribe()

	l.Debug("dial failed, retrying", "peer", "n1")
	l.Info("connected to peer", "peer", "n1")
	l.Warn("peer link flapping", "peer", "n1")

	select {
	case entry := <-ch:
		assert.Equal(t, LevelWarn, entry.Level)
	case <-time.After(time.Second):
		t.Fatal("warn entry not delivered")
	}
	select {
	case entry := <-ch:
		t.Fatalf("filtered entry delivered: %+v", entry)
	default:
	}
}

func TestWithAttachesBaseFields(t *testing.T) {
	l := New("raftcore-test", "test")
	l.DisableConsoleOutput()
	ch := l.Subscribe()

	peerLog := l.With("peer", "n2")
	peerLog.Error("append_entry failed", "error", "timeout")

	select {
	case entry := <-ch:
		require.Equal(t, LevelError, entry.Level)
		assert.Equal(t, "n2", entry.Fields["peer"])
		assert.Equal(t, "timeout", entry.Fields["error"])
	case <-time.After(time.Second):
		t.Fatal("no entry delivered")
	}
}
