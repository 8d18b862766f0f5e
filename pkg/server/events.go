package server

import (
	"encoding/json"
	"sync"

	"github.com/decred/slog"

	"github.com/vctt94/heistparty/pkg/heist"
)

// EventProcessor drains the rooms' outbound event queue and fans each event
// out to the notification, persistence, replay and chat handlers. Rooms
// publish into the queue without blocking after their in-memory state has
// advanced, so a slow or failing handler can never stall a game.
type EventProcessor struct {
	server  *Server
	log     slog.Logger
	queue   chan heist.RoomEvent
	workers int

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewEventProcessor creates an event processor. One worker preserves
// per-room event order; more workers trade ordering for throughput.
func NewEventProcessor(server *Server, queueSize, workerCount int) *EventProcessor {
	return &EventProcessor{
		server:   server,
		log:      server.log,
		queue:    make(chan heist.RoomEvent, queueSize),
		workers:  workerCount,
		stopChan: make(chan struct{}),
	}
}

// Queue returns the inbound side handed to rooms.
func (ep *EventProcessor) Queue() chan<- heist.RoomEvent {
	return ep.queue
}

// Start begins processing events.
func (ep *EventProcessor) Start() {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.started {
		return
	}
	ep.started = true
	ep.log.Infof("Starting event processor with %d workers", ep.workers)

	for i := 0; i < ep.workers; i++ {
		ep.wg.Add(1)
		go ep.run(i)
	}
}

// Stop gracefully stops the event processor.
func (ep *EventProcessor) Stop() {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if !ep.started {
		return
	}
	close(ep.stopChan)
	ep.wg.Wait()
	ep.started = false
	ep.log.Infof("Event processor stopped")
}

// run executes one worker loop.
func (ep *EventProcessor) run(id int) {
	defer ep.wg.Done()
	ep.log.Debugf("Event worker %d started", id)

	for {
		select {
		case <-ep.stopChan:
			ep.log.Debugf("Event worker %d stopping", id)
			return
		case event := <-ep.queue:
			ep.processEvent(event)
		}
	}
}

// processEvent runs a single event through all handlers.
func (ep *EventProcessor) processEvent(event heist.RoomEvent) {
	ep.log.Debugf("Processing event %s for room %s", event.Type, event.RoomID)

	ep.server.broadcastEvent(event)
	ep.processPersistence(event)
	ep.processReplay(event)
	ep.processChat(event)
}

// processPersistence maps events onto the persistence port. Failures are
// logged; the room stays authoritative in memory.
func (ep *EventProcessor) processPersistence(event heist.RoomEvent) {
	s := ep.server
	if s.db == nil {
		return
	}

	switch event.Type {
	case heist.RoomEventGameStarted, heist.RoomEventHeistStarted:
		gameID := s.gameIDForRoom(event.RoomID, event.Type == heist.RoomEventGameStarted)
		if event.Type == heist.RoomEventGameStarted {
			room := s.getRoom(event.RoomID)
			mode := ""
			if room != nil {
				if snap := room.Snapshot(""); snap != nil {
					mode = snap.Mode
				}
			}
			if err := s.db.CreateGame(gameID, event.RoomID, mode); err != nil {
				ep.log.Errorf("persist: create game %s: %v", gameID, err)
			}
		}

	case heist.RoomEventRoundAdvanced:
		payload, ok := event.Payload.(*heist.RoundPayload)
		if !ok {
			return
		}
		gameID := s.gameIDForRoom(event.RoomID, false)
		cards, err := json.Marshal(payload.CommunityCards)
		if err != nil {
			ep.log.Errorf("persist: marshal community cards: %v", err)
			return
		}
		if err := s.db.CreateGameRound(gameID, payload.Round, payload.Phase, cards); err != nil {
			ep.log.Errorf("persist: create round for %s: %v", event.RoomID, err)
		}

	case heist.RoomEventPlayerAction:
		payload, ok := event.Payload.(*heist.ActionPayload)
		if !ok {
			return
		}
		gameID := s.gameIDForRoom(event.RoomID, false)
		detail, err := json.Marshal(payload)
		if err != nil {
			ep.log.Errorf("persist: marshal action: %v", err)
			return
		}
		if err := s.db.RecordPlayerAction(gameID, event.PlayerID, payload.Round, payload.Action, detail); err != nil {
			ep.log.Errorf("persist: record action for %s: %v", event.RoomID, err)
		}

	case heist.RoomEventShowdown:
		gameID := s.gameIDForRoom(event.RoomID, false)
		snapshot, err := json.Marshal(event.Payload)
		if err != nil {
			ep.log.Errorf("persist: marshal showdown: %v", err)
			return
		}
		if err := s.db.SaveGameState(gameID, "in_progress", snapshot); err != nil {
			ep.log.Errorf("persist: save state for %s: %v", event.RoomID, err)
		}

	case heist.RoomEventGameEnded:
		gameID := s.gameIDForRoom(event.RoomID, false)
		status := "failed"
		if payload, ok := event.Payload.(*heist.GameEndedPayload); ok && payload.Won {
			status = "completed"
		}
		snapshot, _ := json.Marshal(event.Payload)
		if err := s.db.SaveGameState(gameID, status, snapshot); err != nil {
			ep.log.Errorf("persist: finalize game for %s: %v", event.RoomID, err)
		}
		s.clearGameID(event.RoomID)
	}
}

// processReplay appends the event to the replay sink.
func (ep *EventProcessor) processReplay(event heist.RoomEvent) {
	if ep.server.replay == nil {
		return
	}
	if err := ep.server.replay.Append(event); err != nil {
		ep.log.Errorf("replay: append %s for %s: %v", event.Type, event.RoomID, err)
	}
}

// processChat pushes the event's announcement, if any, to the chat port.
func (ep *EventProcessor) processChat(event heist.RoomEvent) {
	if ep.server.announcer == nil {
		return
	}
	if msg := announcementFor(event); msg != "" {
		ep.server.announcer.Announce(event.RoomID, msg)
	}
}
