package ws

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tokmz/qim/pkg/logger"
)

func TestObserver_OneRecordPerTransition(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	obs := NewObserver(logger.FromZap(zap.New(core)))
	bus := NewEventBus(1, 16)
	obs.Attach(bus)

	now := time.Now()
	bus.Publish(Event{Type: EventSessionConnected, SessionID: "s1", Time: now})
	bus.Publish(Event{Type: EventSessionAuthenticated, SessionID: "s1", Time: now})
	bus.Publish(Event{Type: EventSessionConnected, SessionID: "s2", Time: now})
	bus.Publish(Event{Type: EventSessionAnonymous, SessionID: "s2", Time: now})
	bus.Publish(Event{Type: EventSessionDisconnected, SessionID: "s1", Time: now})
	bus.Close()

	entries := logs.All()
	require.Len(t, entries, 5)

	want := []struct{ msg, session, transition string }{
		{"session connected", "s1", "connected"},
		{"session authenticated", "s1", "authenticated"},
		{"session connected", "s2", "connected"},
		{"session anonymous", "s2", "anonymous"},
		{"session disconnected", "s1", "disconnected"},
	}
	for i, w := range want {
		assert.Equal(t, w.msg, entries[i].Message)
		fields := entries[i].ContextMap()
		assert.Equal(t, w.session, fields["session_id"])
		assert.Equal(t, w.transition, fields["transition"])
		assert.Len(t, fields, 2)
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1, 1)
	block := make(chan struct{})
	var handled atomic.Int32
	bus.Subscribe("custom", func(Event) {
		<-block
		handled.Add(1)
	})

	// 第一个事件占住 worker，第二个填满队列，其余被丢弃
	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: "custom", SessionID: fmt.Sprint(i)})
		time.Sleep(5 * time.Millisecond)
	}
	close(block)
	bus.Close()

	assert.Equal(t, int32(2), handled.Load())
	assert.Equal(t, int64(3), bus.DroppedEvents())

	// 关闭后发布是空操作
	bus.Publish(Event{Type: "custom"})
	assert.Equal(t, int64(3), bus.DroppedEvents())
}
