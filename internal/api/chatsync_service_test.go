package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	gosync "sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/facilitydesk/chatsync/internal/bus"
	"github.com/facilitydesk/chatsync/internal/conn"
	"github.com/facilitydesk/chatsync/internal/index"
	"github.com/facilitydesk/chatsync/internal/outbox"
	"github.com/facilitydesk/chatsync/internal/status"
	"github.com/facilitydesk/chatsync/internal/store"
	intsync "github.com/facilitydesk/chatsync/internal/sync"
)

type fakeEngine struct {
	mu       gosync.Mutex
	state    status.Snapshot
	convs    []index.Conversation
	msgs     map[string][]store.Message
	sent     []SendRequest
	sendErr  error
	visible  bool
	active   string
	typed    []string
	retried  []string
	refresh  intsync.HistoryResult
	reconns  int
	markRead int
}

func (f *fakeEngine) Self() string                        { return "42" }
func (f *fakeEngine) ConnectionState() status.Snapshot    { return f.state }
func (f *fakeEngine) Conversations() []index.Conversation { return f.convs }
func (f *fakeEngine) Messages(id string) []store.Message  { return f.msgs[id] }
func (f *fakeEngine) Typing(id string) bool               { return id == "7" }
func (f *fakeEngine) MarkConversationRead(string) int     { return f.markRead }
func (f *fakeEngine) Discard(string) error                { return outbox.ErrUnknownMessage }

func (f *fakeEngine) Refresh(context.Context) (intsync.HistoryResult, error) {
	return f.refresh, nil
}

func (f *fakeEngine) Keystroke(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, id)
}

func (f *fakeEngine) SetActiveConversation(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = id
}

func (f *fakeEngine) SetVisible(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = v
}

func (f *fakeEngine) View() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible, f.active
}

func (f *fakeEngine) Send(_ context.Context, conv, text string, att *store.Attachment, replyTo string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, SendRequest{ConversationID: conv, Text: text, Attachment: att, ReplyToID: replyTo})
	id := fmt.Sprintf("tmp-%d", len(f.sent))
	if f.sendErr != nil {
		return id, f.sendErr
	}
	return id, nil
}

func (f *fakeEngine) Retry(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, id)
	return nil
}

func (f *fakeEngine) Reconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconns++
	return nil
}

func startServer(t *testing.T, eng Engine, b *bus.Bus) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterChatSyncServer(srv, NewChatSyncService("main", eng, b, zaptest.NewLogger(t)))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(cc)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGetState(t *testing.T) {
	eng := &fakeEngine{
		state:   status.Snapshot{State: status.Connecting, ReconnectAttempts: 2},
		visible: true,
		active:  "7",
		convs: []index.Conversation{
			{CounterpartID: "7", UnreadCount: 2},
			{CounterpartID: "8", UnreadCount: 1},
		},
	}
	c := startServer(t, eng, bus.New())

	st, err := c.GetState(testCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if st.Profile != "main" || st.SelfID != "42" {
		t.Errorf("identity = %q/%q", st.Profile, st.SelfID)
	}
	if st.State != status.Connecting || st.ReconnectAttempts != 2 {
		t.Errorf("state = %s attempts %d", st.State, st.ReconnectAttempts)
	}
	if st.Label != "reconnecting (attempt 2)" {
		t.Errorf("label = %q", st.Label)
	}
	if st.Conversations != 2 || st.Unread != 3 || !st.Visible || st.ActiveID != "7" {
		t.Errorf("state = %+v", st)
	}
}

func TestListConversationsAndMessages(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := store.Message{
		ID: "99", ConversationID: "7", SenderID: "42", ReceiverID: "7",
		Text: "hi", Timestamp: ts, Status: store.StatusDelivered,
		Attachment: &store.Attachment{Name: "a.pdf", Type: "application/pdf", Size: 2048, URL: "https://x/a.pdf"},
	}
	eng := &fakeEngine{
		convs: []index.Conversation{{CounterpartID: "7", DisplayName: "Ana", LastMessage: msg, UnreadCount: 1, MessageCount: 3}},
		msgs:  map[string][]store.Message{"7": {msg}},
	}
	c := startServer(t, eng, bus.New())
	ctx := testCtx(t)

	convs, err := c.ListConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].DisplayName != "Ana" || convs[0].MessageCount != 3 {
		t.Fatalf("conversations = %+v", convs)
	}
	if !convs[0].LastMessage.Timestamp.Equal(ts) {
		t.Errorf("last message time = %v, want %v", convs[0].LastMessage.Timestamp, ts)
	}

	th, err := c.ListMessages(ctx, "7")
	if err != nil {
		t.Fatal(err)
	}
	if !th.Typing || len(th.Messages) != 1 {
		t.Fatalf("thread = %+v", th)
	}
	got := th.Messages[0]
	if got.ID != "99" || got.Status != store.StatusDelivered || got.Attachment == nil || got.Attachment.Size != 2048 {
		t.Errorf("message = %+v", got)
	}

	if _, err := c.ListMessages(ctx, ""); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("empty id code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
}

func TestSendErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
		wantTemp bool
	}{
		{"ok", nil, codes.OK, true},
		{"not ready", fmt.Errorf("%w: %w", intsync.ErrNotReady, conn.ErrNotConnected), codes.FailedPrecondition, true},
		{"empty", intsync.ErrEmptyMessage, codes.InvalidArgument, true},
		{"internal", errors.New("boom"), codes.Internal, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{sendErr: tt.err}
			c := startServer(t, eng, bus.New())

			id, err := c.Send(testCtx(t), SendRequest{ConversationID: "7", Text: "hi", ReplyToID: "3"})
			if got := grpcstatus.Code(err); got != tt.wantCode {
				t.Fatalf("code = %v, want %v (%v)", got, tt.wantCode, err)
			}
			if tt.wantTemp && id != "tmp-1" {
				t.Errorf("temp id = %q, want tmp-1", id)
			}
			if len(eng.sent) != 1 || eng.sent[0].ReplyToID != "3" {
				t.Errorf("engine saw %+v", eng.sent)
			}
		})
	}
}

func TestSendRequiresConversation(t *testing.T) {
	eng := &fakeEngine{}
	c := startServer(t, eng, bus.New())
	if _, err := c.Send(testCtx(t), SendRequest{Text: "hi"}); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
	if len(eng.sent) != 0 {
		t.Error("engine was called")
	}
}

func TestMutations(t *testing.T) {
	eng := &fakeEngine{markRead: 4, refresh: intsync.HistoryResult{MergeResult: store.MergeResult{Inserted: 2, Skipped: 1}, Fetched: 3}}
	c := startServer(t, eng, bus.New())
	ctx := testCtx(t)

	if n, err := c.MarkRead(ctx, "7"); err != nil || n != 4 {
		t.Errorf("MarkRead = %d, %v", n, err)
	}
	if err := c.Retry(ctx, "tmp-9"); err != nil {
		t.Error(err)
	}
	if err := c.Discard(ctx, "nope"); grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("Discard code = %v, want NotFound", grpcstatus.Code(err))
	}
	if err := c.Reconnect(ctx); err != nil {
		t.Error(err)
	}
	if err := c.SetVisible(ctx, true); err != nil {
		t.Error(err)
	}
	if err := c.SetActive(ctx, "8"); err != nil {
		t.Error(err)
	}
	if err := c.Typing(ctx, "8"); err != nil {
		t.Error(err)
	}
	res, err := c.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 3 || res.Inserted != 2 || res.Skipped != 1 {
		t.Errorf("refresh = %+v", res)
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if len(eng.retried) != 1 || eng.retried[0] != "tmp-9" {
		t.Errorf("retried = %v", eng.retried)
	}
	if eng.reconns != 1 || !eng.visible || eng.active != "8" {
		t.Errorf("engine = reconns %d visible %v active %q", eng.reconns, eng.visible, eng.active)
	}
	if len(eng.typed) != 1 || eng.typed[0] != "8" {
		t.Errorf("typed = %v", eng.typed)
	}
}

func TestWatch(t *testing.T) {
	b := bus.New()
	c := startServer(t, &fakeEngine{}, b)
	ctx := testCtx(t)

	stream, err := c.Watch(ctx, "message.")
	if err != nil {
		t.Fatal(err)
	}

	// The subscription is registered once the server handler runs; keep
	// publishing until the first event makes it through.
	got := make(chan Event, 1)
	errc := make(chan error, 1)
	go func() {
		evt, err := stream.Recv()
		if err != nil {
			errc <- err
			return
		}
		got <- evt
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case evt := <-got:
			if evt.Kind != bus.MessageReconciled {
				t.Fatalf("kind = %q", evt.Kind)
			}
			if evt.ID == "" || evt.OccurredAt.IsZero() {
				t.Errorf("envelope = %+v", evt)
			}
			if evt.Payload["id"] != "99" || evt.Payload["temp_id"] != "tmp-1" {
				t.Errorf("payload = %v", evt.Payload)
			}
			return
		case err := <-errc:
			t.Fatal(err)
		case <-ticker.C:
			b.Publish(bus.Event{Kind: bus.ConversationUpdated})
			b.Publish(bus.Event{Kind: bus.MessageReconciled, Payload: bus.MessageRef{ConversationID: "7", ID: "99", TempID: "tmp-1"}})
		case <-ctx.Done():
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestToStructScalars(t *testing.T) {
	s, err := toStruct("history unavailable")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.GetFields()["value"].GetStringValue(); got != "history unavailable" {
		t.Errorf("value = %q", got)
	}
	empty, err := toStruct(nil)
	if err != nil || len(empty.GetFields()) != 0 {
		t.Errorf("toStruct(nil) = %v, %v", empty, err)
	}
}
