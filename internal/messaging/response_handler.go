// Package messaging provides chat transports and the inbound event dispatcher.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
	"github.com/BTreeMap/SleepAdvisor/internal/store"
)

// errorMessage is sent when handling an event fails unexpectedly.
const errorMessage = "⚠️ We encountered an issue processing your message. Please try again."

// Conversation is the engine surface driven by the dispatcher.
type Conversation interface {
	Welcome(ctx context.Context, userID string) error
	Begin(ctx context.Context, userID string) error
	Help(ctx context.Context, userID string) error
	HandleText(ctx context.Context, userID, text string) error
	HandleChoice(ctx context.Context, userID, data, callbackID string) error
}

// CommandAction handles a bot command for a user.
type CommandAction func(ctx context.Context, userID string) error

// lane holds the pending events of one user. A lane exists only while it has work.
type lane struct {
	pending []models.Event
}

// ResponseHandler routes inbound events to the conversation engine.
// Events of one user are handled strictly in arrival order; different users
// are handled concurrently.
type ResponseHandler struct {
	conv       Conversation
	msgService Service
	dedup      store.DedupRepo

	commandsMu sync.RWMutex
	commands   map[string]CommandAction

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
}

// ResponseHandlerOption configures a ResponseHandler.
type ResponseHandlerOption func(*ResponseHandler)

// WithDedup drops events whose provider message id was already seen.
func WithDedup(repo store.DedupRepo) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.dedup = repo }
}

// NewResponseHandler creates a dispatcher with the /start, /check and /help commands registered.
func NewResponseHandler(conv Conversation, msgService Service, opts ...ResponseHandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		conv:       conv,
		msgService: msgService,
		commands:   make(map[string]CommandAction),
		lanes:      make(map[string]*lane),
	}
	for _, opt := range opts {
		opt(rh)
	}
	rh.RegisterCommand(models.CommandStart, conv.Welcome)
	rh.RegisterCommand(models.CommandCheck, conv.Begin)
	rh.RegisterCommand(models.CommandHelp, conv.Help)
	return rh
}

// RegisterCommand binds a command name (without slash) to an action.
func (rh *ResponseHandler) RegisterCommand(name string, action CommandAction) {
	rh.commandsMu.Lock()
	defer rh.commandsMu.Unlock()
	rh.commands[strings.ToLower(name)] = action
	slog.Debug("ResponseHandler command registered", "command", name)
}

// ParseCommand recognizes "/check", "/check@SomeBot" and a bare "check", case-insensitively.
func (rh *ResponseHandler) ParseCommand(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", false
	}
	slashed := strings.HasPrefix(t, "/")
	t = strings.TrimPrefix(t, "/")
	if slashed {
		if fields := strings.Fields(t); len(fields) > 0 {
			t = fields[0]
		}
		t, _, _ = strings.Cut(t, "@")
	}
	name := strings.ToLower(t)

	rh.commandsMu.RLock()
	defer rh.commandsMu.RUnlock()
	_, ok := rh.commands[name]
	return name, ok
}

// ProcessEvent validates, deduplicates and enqueues one inbound event.
func (rh *ResponseHandler) ProcessEvent(ctx context.Context, evt models.Event) error {
	userID, err := rh.msgService.ValidateAndCanonicalizeRecipient(evt.UserID)
	if err != nil {
		slog.Error("ResponseHandler ProcessEvent validation failed", "error", err, "user_id", evt.UserID)
		return fmt.Errorf("invalid sender: %w", err)
	}
	evt.UserID = userID

	if rh.dedup != nil && evt.MessageID != "" {
		first, err := rh.dedup.RecordInbound(evt.MessageID, userID)
		if err != nil {
			slog.Warn("ResponseHandler dedup check failed, processing anyway", "error", err, "message_id", evt.MessageID)
		} else if !first {
			slog.Debug("ResponseHandler dropping duplicate event", "message_id", evt.MessageID, "user_id", userID)
			return nil
		}
	}

	if evt.Kind == models.EventText {
		if name, ok := rh.ParseCommand(evt.Text); ok {
			evt.Kind = models.EventCommand
			evt.Text = name
		}
	}

	rh.enqueue(ctx, evt)
	return nil
}

func (rh *ResponseHandler) enqueue(ctx context.Context, evt models.Event) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	l, ok := rh.lanes[evt.UserID]
	if !ok {
		l = &lane{}
		rh.lanes[evt.UserID] = l
		rh.wg.Add(1)
		go rh.runLane(ctx, evt.UserID, l)
	}
	l.pending = append(l.pending, evt)
}

// runLane drains a user's queue and removes the lane once it is empty.
func (rh *ResponseHandler) runLane(ctx context.Context, userID string, l *lane) {
	defer rh.wg.Done()
	for {
		rh.mu.Lock()
		if len(l.pending) == 0 {
			delete(rh.lanes, userID)
			rh.mu.Unlock()
			return
		}
		evt := l.pending[0]
		l.pending = l.pending[1:]
		rh.mu.Unlock()

		rh.handle(ctx, evt)
	}
}

func (rh *ResponseHandler) handle(ctx context.Context, evt models.Event) {
	var err error
	switch evt.Kind {
	case models.EventCommand:
		rh.commandsMu.RLock()
		action, ok := rh.commands[evt.Text]
		rh.commandsMu.RUnlock()
		if !ok {
			err = rh.conv.HandleText(ctx, evt.UserID, evt.Text)
			break
		}
		slog.Info("ResponseHandler command received", "command", evt.Text, "user_id", evt.UserID)
		err = action(ctx, evt.UserID)
	case models.EventChoice:
		err = rh.conv.HandleChoice(ctx, evt.UserID, evt.Data, evt.CallbackID)
	default:
		err = rh.conv.HandleText(ctx, evt.UserID, evt.Text)
	}
	if err == nil {
		return
	}

	slog.Error("ResponseHandler event handling failed", "error", err, "user_id", evt.UserID, "kind", evt.Kind)
	if ctx.Err() != nil {
		return
	}
	if _, sendErr := rh.msgService.SendMessage(ctx, evt.UserID, errorMessage); sendErr != nil {
		slog.Error("ResponseHandler failed to send error message", "error", sendErr, "user_id", evt.UserID)
	}
}

// ActiveLanes returns the number of users with events in flight.
func (rh *ResponseHandler) ActiveLanes() int {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return len(rh.lanes)
}

// Wait blocks until every in-flight event has been handled.
func (rh *ResponseHandler) Wait() {
	rh.wg.Wait()
}

// Start consumes the service's event channel until it closes or ctx is done.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting event processing")

	go func() {
		defer slog.Info("ResponseHandler stopped event processing")
		for {
			select {
			case evt, ok := <-rh.msgService.Events():
				if !ok {
					slog.Debug("ResponseHandler events channel closed")
					return
				}
				if err := rh.ProcessEvent(ctx, evt); err != nil {
					slog.Error("ResponseHandler failed to process event", "error", err, "user_id", evt.UserID)
				}
			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}
