// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSim/services/simulator/dialog"
)

// The sink must satisfy the orchestrator's persistence contract.
var _ dialog.MemorySink = (*Sink)(nil)

func openTestSink(t *testing.T) *Sink {
	t.Helper()
	sink, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpenPersistent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir() + "/store"

	sink, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, sink.InsertThought("thread-1", "a thought"))
	require.NoError(t, sink.Close())

	// Reopening sees the previous write.
	sink, err = Open(cfg)
	require.NoError(t, err)
	defer sink.Close()

	entries, err := sink.ReadThread("thread-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a thought", entries[0].Text)
}

func TestInsertAndReadOrder(t *testing.T) {
	sink := openTestSink(t)

	require.NoError(t, sink.InsertThought("thread-1", "open with the request"))
	require.NoError(t, sink.InsertDialog("thread-1", "Human", "I want a refund"))
	require.NoError(t, sink.InsertTool("thread-1", "lookup_order", `{"id":42}`, "order shipped"))
	require.NoError(t, sink.InsertDialog("thread-1", "AI", "Your order has shipped."))

	entries, err := sink.ReadThread("thread-1")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, KindThought, entries[0].Kind)
	assert.Equal(t, "open with the request", entries[0].Text)

	assert.Equal(t, KindDialog, entries[1].Kind)
	assert.Equal(t, "Human", entries[1].Role)

	assert.Equal(t, KindTool, entries[2].Kind)
	assert.Equal(t, "lookup_order", entries[2].Name)
	assert.Equal(t, `{"id":42}`, entries[2].Args)
	assert.Equal(t, "order shipped", entries[2].Text)

	assert.Equal(t, "AI", entries[3].Role)
	assert.NotZero(t, entries[3].CreatedAt)
}

func TestReadOrderSurvivesManyWrites(t *testing.T) {
	sink := openTestSink(t)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, sink.InsertThought("thread-1", fmt.Sprintf("thought %03d", i)))
	}

	entries, err := sink.ReadThread("thread-1")
	require.NoError(t, err)
	require.Len(t, entries, n)
	for i, entry := range entries {
		assert.Equal(t, fmt.Sprintf("thought %03d", i), entry.Text)
	}
}

func TestThreadIsolation(t *testing.T) {
	sink := openTestSink(t)

	require.NoError(t, sink.InsertDialog("thread-a", "Human", "hello from a"))
	require.NoError(t, sink.InsertDialog("thread-b", "Human", "hello from b"))

	a, err := sink.ReadThread("thread-a")
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, "hello from a", a[0].Text)

	b, err := sink.ReadThread("thread-b")
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, "hello from b", b[0].Text)
}

func TestConcurrentThreads(t *testing.T) {
	sink := openTestSink(t)

	const threads = 8
	const writes = 20

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			threadID := fmt.Sprintf("thread-%d", id)
			for j := 0; j < writes; j++ {
				assert.NoError(t, sink.InsertThought(threadID, fmt.Sprintf("t%d-%d", id, j)))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < threads; i++ {
		entries, err := sink.ReadThread(fmt.Sprintf("thread-%d", i))
		require.NoError(t, err)
		require.Len(t, entries, writes)
		for j, entry := range entries {
			assert.Equal(t, fmt.Sprintf("t%d-%d", i, j), entry.Text)
		}
	}
}

func TestReadUnknownThread(t *testing.T) {
	sink := openTestSink(t)

	entries, err := sink.ReadThread("never-written")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvalidThreadIDRejected(t *testing.T) {
	sink := openTestSink(t)

	tests := []string{"", "has space", "slash/attack", "-leading-dash"}
	for _, id := range tests {
		t.Run(fmt.Sprintf("id=%q", id), func(t *testing.T) {
			assert.Error(t, sink.InsertThought(id, "x"))
			_, err := sink.ReadThread(id)
			assert.Error(t, err)
		})
	}
}
