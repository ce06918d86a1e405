package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeready/internal/domain"
)

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.subjects))
	copy(out, f.subjects)
	return out
}

func snapshotWith(gen uint64, engine domain.EngineStatus, canEnable bool) domain.StatusSnapshot {
	return domain.StatusSnapshot{
		Generation:  gen,
		RefreshedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Engine:      engine,
		Readiness: domain.ReadinessState{
			IsAPIConnected:        true,
			AllProvidersConnected: true,
			CanEnable:             canEnable,
		},
	}
}

func TestDiffTransitions(t *testing.T) {
	prev := snapshotWith(1, domain.EngineStopped, false)
	next := snapshotWith(2, domain.EngineRunning, true)

	got := DiffTransitions(prev, next)
	require.Len(t, got, 2)

	require.Equal(t, FieldEngineStatus, got[0].Field)
	require.Equal(t, "Stopped", got[0].From)
	require.Equal(t, "Running", got[0].To)
	require.Equal(t, uint64(2), got[0].Generation)

	require.Equal(t, FieldCanEnable, got[1].Field)
	require.Equal(t, "false", got[1].From)
	require.Equal(t, "true", got[1].To)
}

func TestDiffTransitionsNoChanges(t *testing.T) {
	snap := snapshotWith(3, domain.EngineRunning, true)
	require.Empty(t, DiffTransitions(snap, snap))
}

func TestTransitionPublisherFirstSnapshotSeedsBaseline(t *testing.T) {
	conn := &fakeConn{}
	p := NewTransitionPublisher(nil, conn, "")

	p.handle(snapshotWith(1, domain.EngineStopped, false))
	require.Empty(t, conn.published())

	p.handle(snapshotWith(2, domain.EngineRunning, false))
	require.Equal(t, []string{DefaultTransitionSubject + "." + FieldEngineStatus}, conn.published())
}

func TestTransitionPublisherRunPublishesOnFlip(t *testing.T) {
	conn := &fakeConn{}
	p := NewTransitionPublisher(nil, conn, "status.events")

	ch := make(chan domain.StatusSnapshot, 4)
	ch <- snapshotWith(1, domain.EngineStopped, false)
	ch <- snapshotWith(2, domain.EngineStopped, true)
	close(ch)

	p.Run(context.Background(), ch)

	subjects := conn.published()
	require.Equal(t, []string{"status.events." + FieldCanEnable}, subjects)

	var tr Transition
	require.NoError(t, json.Unmarshal(conn.payloads[0], &tr))
	require.Equal(t, FieldCanEnable, tr.Field)
	require.Equal(t, "false", tr.From)
	require.Equal(t, "true", tr.To)
	require.Equal(t, uint64(2), tr.Generation)
}

func TestTransitionPublisherRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewTransitionPublisher(nil, &fakeConn{}, "")

	done := make(chan struct{})
	go func() {
		p.Run(ctx, make(chan domain.StatusSnapshot))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit on context cancel")
	}
}
