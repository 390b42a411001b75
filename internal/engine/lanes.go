package engine

import (
	"context"
	"hash/fnv"
	"sync"

	"reactboard/internal/logging"
	"reactboard/internal/slack"
)

const (
	defaultLaneCount = 16
	laneBuffer       = 256
)

type laneItem struct {
	workspace string
	event     slack.Event
	done      chan Outcome // nil for fire-and-forget dispatch
}

// Lanes routes events into a fixed set of sequential workers so that all
// events for one (workspace, message, person) tuple are applied in arrival
// order while unrelated tuples proceed in parallel.
type Lanes struct {
	engine *Engine
	lanes  []chan laneItem
	wg     sync.WaitGroup
}

func NewLanes(e *Engine, n int) *Lanes {
	if n <= 0 {
		n = defaultLaneCount
	}
	lanes := make([]chan laneItem, n)
	for i := range lanes {
		lanes[i] = make(chan laneItem, laneBuffer)
	}
	return &Lanes{engine: e, lanes: lanes}
}

// Start launches the lane workers. They drain until ctx is cancelled.
func (l *Lanes) Start(ctx context.Context) {
	log := logging.Component("lanes")
	for i, ch := range l.lanes {
		l.wg.Add(1)
		go func(lane int, ch chan laneItem) {
			defer l.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item := <-ch:
					outcome, err := l.engine.Handle(ctx, item.workspace, item.event)
					if err != nil {
						log.Error().Err(err).Int("lane", lane).
							Str("workspace", item.workspace).Msg("event processing failed")
					}
					if item.done != nil {
						item.done <- outcome
					}
				}
			}
		}(i, ch)
	}
}

func (l *Lanes) laneFor(workspace string, ev slack.Event) chan laneItem {
	h := fnv.New32a()
	h.Write([]byte(workspace))
	h.Write([]byte{'|'})
	h.Write([]byte(ev.ExternalMessageID()))
	h.Write([]byte{'|'})
	h.Write([]byte(ev.MemberID))
	return l.lanes[h.Sum32()%uint32(len(l.lanes))]
}

// Dispatch queues a live event onto its tuple's lane. Blocks when the lane
// is full, which applies backpressure to the supervisor's read loop.
func (l *Lanes) Dispatch(ctx context.Context, workspace string, ev slack.Event) {
	select {
	case <-ctx.Done():
	case l.laneFor(workspace, ev) <- laneItem{workspace: workspace, event: ev}:
	}
}

// DispatchWait queues an event and waits for its outcome. The syncer uses
// this so replayed events share the lane ordering with live ones.
func (l *Lanes) DispatchWait(ctx context.Context, workspace string, ev slack.Event) (Outcome, error) {
	done := make(chan Outcome, 1)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l.laneFor(workspace, ev) <- laneItem{workspace: workspace, event: ev, done: done}:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case outcome := <-done:
		return outcome, nil
	}
}

// Wait blocks until every worker has exited after cancellation.
func (l *Lanes) Wait() {
	l.wg.Wait()
}
