package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
	"github.com/BTreeMap/SleepAdvisor/internal/store"
)

// recordingConversation records calls in order and can block a user to test ordering.
type recordingConversation struct {
	mu    sync.Mutex
	calls []string
	delay map[string]time.Duration
	err   error
}

func (c *recordingConversation) record(userID, call string) error {
	c.mu.Lock()
	d := c.delay[userID]
	c.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, userID+":"+call)
	return c.err
}

func (c *recordingConversation) Welcome(_ context.Context, u string) error { return c.record(u, "welcome") }
func (c *recordingConversation) Begin(_ context.Context, u string) error   { return c.record(u, "begin") }
func (c *recordingConversation) Help(_ context.Context, u string) error    { return c.record(u, "help") }
func (c *recordingConversation) HandleText(_ context.Context, u, text string) error {
	return c.record(u, "text="+text)
}
func (c *recordingConversation) HandleChoice(_ context.Context, u, data, cb string) error {
	return c.record(u, "choice="+data+"/"+cb)
}

func (c *recordingConversation) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func TestParseCommand(t *testing.T) {
	rh := NewResponseHandler(&recordingConversation{}, NewMockService())
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/check", "check", true},
		{"/CHECK", "check", true},
		{"/check@SleepAdvisorBot", "check", true},
		{"/help please", "help", true},
		{" start ", "start", true},
		{"Help", "help", true},
		{"/unknown", "unknown", false},
		{"30", "30", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := rh.ParseCommand(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseCommand(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestProcessEvent_RoutesByKind(t *testing.T) {
	conv := &recordingConversation{}
	rh := NewResponseHandler(conv, NewMockService())
	ctx := context.Background()

	events := []models.Event{
		{Kind: models.EventText, UserID: "+1 555 000 0001", Text: "/start"},
		{Kind: models.EventText, UserID: "15550000001", Text: "/check"},
		{Kind: models.EventText, UserID: "15550000001", Text: "30"},
		{Kind: models.EventChoice, UserID: "15550000001", Data: "Gender:1", CallbackID: "cb1"},
		{Kind: models.EventText, UserID: "15550000001", Text: "help"},
	}
	for _, evt := range events {
		if err := rh.ProcessEvent(ctx, evt); err != nil {
			t.Fatalf("ProcessEvent failed: %v", err)
		}
	}
	rh.Wait()

	want := []string{
		"15550000001:welcome",
		"15550000001:begin",
		"15550000001:text=30",
		"15550000001:choice=Gender:1/cb1",
		"15550000001:help",
	}
	got := conv.snapshot()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("unexpected calls:\n got %v\nwant %v", got, want)
	}
	if rh.ActiveLanes() != 0 {
		t.Errorf("expected lanes to be released, got %d", rh.ActiveLanes())
	}
}

func TestProcessEvent_InvalidSender(t *testing.T) {
	rh := NewResponseHandler(&recordingConversation{}, NewMockService())
	if err := rh.ProcessEvent(context.Background(), models.Event{UserID: "abc", Text: "hi"}); err == nil {
		t.Error("expected error for invalid sender")
	}
}

func TestProcessEvent_PerUserOrderingAndParallelism(t *testing.T) {
	conv := &recordingConversation{delay: map[string]time.Duration{"15550000001": 50 * time.Millisecond}}
	rh := NewResponseHandler(conv, NewMockService())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rh.ProcessEvent(ctx, models.Event{Kind: models.EventText, UserID: "15550000001", Text: fmt.Sprint(i)})
	}
	rh.ProcessEvent(ctx, models.Event{Kind: models.EventText, UserID: "15550000002", Text: "fast"})
	rh.Wait()

	calls := conv.snapshot()
	if len(calls) != 4 {
		t.Fatalf("expected 4 calls, got %v", calls)
	}
	if calls[0] != "15550000002:text=fast" {
		t.Errorf("expected the other user not to wait behind the slow one, got %v", calls)
	}
	var slow []string
	for _, c := range calls {
		if c != "15550000002:text=fast" {
			slow = append(slow, c)
		}
	}
	want := []string{"15550000001:text=0", "15550000001:text=1", "15550000001:text=2"}
	if fmt.Sprint(slow) != fmt.Sprint(want) {
		t.Errorf("expected arrival order for one user, got %v", slow)
	}
}

func TestProcessEvent_Dedup(t *testing.T) {
	conv := &recordingConversation{}
	repo, err := store.NewInMemoryStore()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	rh := NewResponseHandler(conv, NewMockService(), WithDedup(repo))
	ctx := context.Background()

	evt := models.Event{Kind: models.EventText, UserID: "15550000001", MessageID: "SM1", Text: "30"}
	rh.ProcessEvent(ctx, evt)
	rh.ProcessEvent(ctx, evt)
	rh.ProcessEvent(ctx, models.Event{Kind: models.EventText, UserID: "15550000001", Text: "31"})
	rh.ProcessEvent(ctx, models.Event{Kind: models.EventText, UserID: "15550000001", Text: "31"})
	rh.Wait()

	if got := conv.snapshot(); len(got) != 3 {
		t.Errorf("expected duplicate with id dropped and id-less events kept, got %v", got)
	}
}

func TestProcessEvent_ErrorNotifiesUser(t *testing.T) {
	conv := &recordingConversation{err: errors.New("send failed")}
	svc := NewMockService()
	rh := NewResponseHandler(conv, svc)
	rh.ProcessEvent(context.Background(), models.Event{Kind: models.EventText, UserID: "15550000001", Text: "30"})
	rh.Wait()

	sent := svc.SentTo("15550000001")
	if len(sent) != 1 || sent[0] != errorMessage {
		t.Errorf("expected error notice, got %v", sent)
	}
}

func TestResponseHandler_StartConsumesEvents(t *testing.T) {
	conv := &recordingConversation{}
	svc := NewMockService()
	rh := NewResponseHandler(conv, svc)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rh.Start(ctx)

	svc.Emit(models.Event{Kind: models.EventText, UserID: "15550000001", Text: "/check"})

	deadline := time.Now().Add(2 * time.Second)
	for len(conv.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	svc.Stop()
	rh.Wait()
	if got := conv.snapshot(); len(got) != 1 || got[0] != "15550000001:begin" {
		t.Errorf("unexpected calls %v", got)
	}
}

func TestRegisterCommand(t *testing.T) {
	conv := &recordingConversation{}
	rh := NewResponseHandler(conv, NewMockService())
	called := make(chan string, 1)
	rh.RegisterCommand("Ping", func(ctx context.Context, userID string) error {
		called <- userID
		return nil
	})
	rh.ProcessEvent(context.Background(), models.Event{Kind: models.EventText, UserID: "15550000001", Text: "/ping"})
	rh.Wait()
	select {
	case u := <-called:
		if u != "15550000001" {
			t.Errorf("unexpected user %q", u)
		}
	default:
		t.Error("custom command was not invoked")
	}
}
