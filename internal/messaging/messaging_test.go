package messaging

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenPrePopulatesMessagesInFromGlobal(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "messages")
	log, err := NewLog(logPath)
	require.NoError(t, err)

	first, err := log.Open(t.TempDir(), "__a/x")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first.out, []byte("hello\n"), 0o644))
	require.NoError(t, first.Merge(context.Background()))

	second, err := log.Open(t.TempDir(), "__b/y")
	require.NoError(t, err)
	b, err := os.ReadFile(second.in)
	require.NoError(t, err)
	assert.Equal(t, "__a/x:hello\n", string(b))
}

func TestMergeAppliesPrefixPerLine(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "messages")
	log, err := NewLog(logPath)
	require.NoError(t, err)

	inv, err := log.Open(t.TempDir(), "__file/etc-hosts")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(inv.out, []byte("created\nchmodded\n"), 0o644))
	require.NoError(t, inv.Merge(context.Background()))

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "__file/etc-hosts:created\n__file/etc-hosts:chmodded\n", string(b))
}

func TestMergeCleansUpScratchFiles(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "messages")
	log, err := NewLog(logPath)
	require.NoError(t, err)

	inv, err := log.Open(t.TempDir(), "__a/x")
	require.NoError(t, err)
	require.NoError(t, inv.Merge(context.Background()))

	_, err = os.Stat(inv.in)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(inv.out)
	assert.True(t, os.IsNotExist(err))
}

func TestConcurrentMergesDoNotInterleave(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "messages")
	log, err := NewLog(logPath)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			inv, err := log.Open(t.TempDir(), "__worker/n")
			if err != nil {
				return
			}
			os.WriteFile(inv.out, []byte("line\n"), 0o644)
			inv.Merge(context.Background())
		}(i)
	}
	wg.Wait()

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := 0
	for _, c := range b {
		if c == '\n' {
			lines++
		}
	}
	assert.Equal(t, 20, lines, "every concurrent merge must contribute exactly one intact line")
}
