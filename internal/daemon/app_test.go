// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/mediafit/internal/admission"
	"github.com/ManuGH/mediafit/internal/health"
	"github.com/ManuGH/mediafit/internal/history"
	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConverter struct {
	mu   sync.Mutex
	runs []string
	fail error
	ran  chan string
}

func (c *recordingConverter) Run(_ context.Context, input string, p media.OutputProfile) (pipeline.Result, error) {
	c.mu.Lock()
	c.runs = append(c.runs, input)
	c.mu.Unlock()
	defer func() { c.ran <- input }()
	if c.fail != nil {
		return pipeline.Result{}, c.fail
	}
	return pipeline.Result{Input: input, Outputs: []string{input + "." + p.Name}, Action: pipeline.ActionConverted}, nil
}

type memHistory struct {
	mu   sync.Mutex
	done map[string]history.Record
}

func (h *memHistory) IsProcessed(key string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.done[key]
	return ok, nil
}

func (h *memHistory) MarkCompleted(rec history.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done[rec.Key] = rec
	return nil
}

func TestNewApp_RequiresDependencies(t *testing.T) {
	_, err := NewApp(log.Base(), Options{})
	assert.ErrorIs(t, err, ErrMissingConverter)

	_, err = NewApp(log.Base(), Options{Converter: &recordingConverter{}})
	assert.ErrorIs(t, err, ErrMissingInbox)

	_, err = NewApp(log.Base(), Options{Converter: &recordingConverter{}, Inbox: NewInbox(t.TempDir(), 0)})
	assert.ErrorIs(t, err, ErrMissingGate)
}

func TestApp_ConvertsInboxFiles(t *testing.T) {
	dir := t.TempDir()
	done := filepath.Join(dir, "done.mkv")
	fresh := filepath.Join(dir, "fresh.mkv")
	require.NoError(t, os.WriteFile(done, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o600))

	hist := &memHistory{done: map[string]history.Record{done: {Key: done}}}
	conv := &recordingConverter{ran: make(chan string, 4)}
	tracker := health.NewRunTracker()
	profile := media.DefaultProfile()

	app, err := NewApp(log.Base(), Options{
		Converter: conv,
		Inbox:     NewInbox(dir, testSettle),
		Gate:      admission.NewGate(admission.GateEncode, 1),
		Profile:   profile,
		History:   hist,
		Tracker:   tracker,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	select {
	case got := <-conv.ran:
		assert.Equal(t, fresh, got)
	case <-time.After(5 * time.Second):
		t.Fatal("inbox file not converted")
	}
	assert.Eventually(t, func() bool {
		ok, _ := hist.IsProcessed(fresh)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{fresh}, conv.runs, "files in history are skipped")
	assert.Equal(t, health.StatusHealthy, tracker.Check(context.Background()).Status)
}

func TestApp_FailedConversionDegradesHealth(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.mkv"), []byte("x"), 0o600))

	conv := &recordingConverter{ran: make(chan string, 1), fail: errors.New("encode failed")}
	tracker := health.NewRunTracker()
	app, err := NewApp(log.Base(), Options{
		Converter: conv,
		Inbox:     NewInbox(dir, testSettle),
		Gate:      admission.NewGate(admission.GateEncode, 1),
		Profile:   media.DefaultProfile(),
		Tracker:   tracker,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	select {
	case <-conv.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("inbox file not converted")
	}
	assert.Eventually(t, func() bool {
		return tracker.Check(context.Background()).Status == health.StatusDegraded
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
}

func TestApp_InboxFailureStopsRun(t *testing.T) {
	app, err := NewApp(log.Base(), Options{
		Converter: &recordingConverter{},
		Inbox:     NewInbox(filepath.Join(t.TempDir(), "absent"), testSettle),
		Gate:      admission.NewGate(admission.GateEncode, 1),
		Profile:   media.DefaultProfile(),
	})
	require.NoError(t, err)
	assert.Error(t, app.Run(context.Background()))
}
