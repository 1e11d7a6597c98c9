package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mygpt/internal/conversation"
)

func TestRunJanitor_PurgesIdleGuests(t *testing.T) {
	store := conversation.NewMemoryStore(0)
	ctx := context.Background()
	guest, err := store.Create(ctx, nil)
	require.NoError(t, err)

	jctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		runJanitor(jctx, store, time.Nanosecond, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := store.Get(ctx, guest.ID, 0)
		return err != nil
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRouteCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"route", "--json", "Write", "a", "haiku", "about", "autumn"})
	require.NoError(t, cmd.Execute())

	var d struct {
		Category string   `json:"category"`
		Chain    []string `json:"chain"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &d))
	assert.Equal(t, "creative", d.Category)
	assert.Equal(t, []string{"llama-8b", "llama-3.2-3b", "mistral-7b"}, d.Chain)
}

func TestModelsCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"models"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "mistral-7b")
	assert.Contains(t, out.String(), "fallback")
}
