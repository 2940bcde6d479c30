package api

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/facilitydesk/chatsync/internal/bus"
	"github.com/facilitydesk/chatsync/internal/index"
	"github.com/facilitydesk/chatsync/internal/status"
	"github.com/facilitydesk/chatsync/internal/store"
	intsync "github.com/facilitydesk/chatsync/internal/sync"
)

// Engine is the part of the sync coordinator the API exposes.
type Engine interface {
	Self() string
	ConnectionState() status.Snapshot
	Conversations() []index.Conversation
	Messages(conversationID string) []store.Message
	Typing(conversationID string) bool
	View() (visible bool, active string)
	Send(ctx context.Context, conversationID, text string, attachment *store.Attachment, replyToID string) (string, error)
	MarkConversationRead(conversationID string) int
	Retry(ctx context.Context, tempID string) error
	Discard(id string) error
	Reconnect() error
	Refresh(ctx context.Context) (intsync.HistoryResult, error)
	SetVisible(visible bool)
	SetActiveConversation(conversationID string)
	Keystroke(conversationID string)
}

// ChatSyncService implements ChatSyncServer over the coordinator.
type ChatSyncService struct {
	profile   string
	startedAt time.Time
	engine    Engine
	bus       *bus.Bus
	logger    *zap.Logger
}

var _ ChatSyncServer = (*ChatSyncService)(nil)

// NewChatSyncService creates the API service for one profile.
func NewChatSyncService(profile string, engine Engine, b *bus.Bus, logger *zap.Logger) *ChatSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatSyncService{
		profile:   profile,
		startedAt: time.Now(),
		engine:    engine,
		bus:       b,
		logger:    logger,
	}
}

func (s *ChatSyncService) GetState(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap := s.engine.ConnectionState()
	visible, active := s.engine.View()
	convs := s.engine.Conversations()
	unread := 0
	for _, c := range convs {
		unread += c.UnreadCount
	}
	return toStruct(State{
		Profile:           s.profile,
		SelfID:            s.engine.Self(),
		State:             snap.State,
		Label:             snap.Label(),
		ReconnectAttempts: snap.ReconnectAttempts,
		UptimeMs:          time.Since(s.startedAt).Milliseconds(),
		Visible:           visible,
		ActiveID:          active,
		Conversations:     len(convs),
		Unread:            unread,
	})
}

func (s *ChatSyncService) ListConversations(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(conversationList{Conversations: s.engine.Conversations()})
}

func (s *ChatSyncService) ListMessages(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := strings.TrimSpace(req.GetValue())
	if id == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation id is required")
	}
	return toStruct(Thread{
		ConversationID: id,
		Messages:       s.engine.Messages(id),
		Typing:         s.engine.Typing(id),
	})
}

func (s *ChatSyncService) Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in SendRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if strings.TrimSpace(in.ConversationID) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation id is required")
	}
	tempID, err := s.engine.Send(ctx, in.ConversationID, in.Text, in.Attachment, in.ReplyToID)
	if err != nil {
		s.logger.Warn("send failed", zap.String("conversation_id", in.ConversationID), zap.Error(err))
		return nil, sendStatus(err, tempID)
	}
	return toStruct(sendResponse{TempID: tempID})
}

func (s *ChatSyncService) MarkRead(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	if req.GetValue() == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation id is required")
	}
	return wrapperspb.Int64(int64(s.engine.MarkConversationRead(req.GetValue()))), nil
}

func (s *ChatSyncService) Retry(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.engine.Retry(ctx, req.GetValue()); err != nil {
		return nil, sendStatus(err, req.GetValue())
	}
	return &emptypb.Empty{}, nil
}

func (s *ChatSyncService) Discard(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.engine.Discard(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ChatSyncService) Reconnect(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.engine.Reconnect(); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ChatSyncService) Refresh(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.engine.Refresh(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "refresh: %v", err)
	}
	return toStruct(RefreshResult{
		Fetched:  res.Fetched,
		Inserted: res.Inserted,
		Updated:  res.Updated,
		Adopted:  res.Adopted,
		Skipped:  res.Skipped,
	})
}

func (s *ChatSyncService) SetVisible(_ context.Context, req *wrapperspb.BoolValue) (*emptypb.Empty, error) {
	s.engine.SetVisible(req.GetValue())
	return &emptypb.Empty{}, nil
}

func (s *ChatSyncService) SetActive(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	s.engine.SetActiveConversation(req.GetValue())
	return &emptypb.Empty{}, nil
}

func (s *ChatSyncService) Typing(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() != "" {
		s.engine.Keystroke(req.GetValue())
	}
	return &emptypb.Empty{}, nil
}

// Watch streams bus events whose kind starts with the requested prefix until
// the client goes away. Raw socket frames stay inside the daemon.
func (s *ChatSyncService) Watch(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ch, unsub := s.bus.Subscribe(req.GetValue(), 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if evt.Kind == bus.ConnInbound {
				continue
			}
			env, err := envelope(evt)
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(env); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func envelope(evt bus.Event) (*structpb.Struct, error) {
	payload, err := toStruct(evt.Payload)
	if err != nil {
		return nil, err
	}
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"event_id":            structpb.NewStringValue(uuid.New().String()),
		"kind":                structpb.NewStringValue(evt.Kind),
		"occurred_at_unix_ms": structpb.NewNumberValue(float64(ts.UnixMilli())),
		"payload":             structpb.NewStructValue(payload),
	}}, nil
}
