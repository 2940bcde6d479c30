package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/facilitydesk/chatsync/internal/index"
)

// Client is the typed front-end of the daemon API.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient("unix://"+socketPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, fullMethod(method), in, out)
}

// GetState returns the daemon snapshot.
func (c *Client) GetState(ctx context.Context) (State, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetState", &emptypb.Empty{}, out); err != nil {
		return State{}, err
	}
	var st State
	err := fromStruct(out, &st)
	return st, err
}

// ListConversations returns the sorted conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]index.Conversation, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "ListConversations", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var list conversationList
	err := fromStruct(out, &list)
	return list.Conversations, err
}

// ListMessages returns one conversation's thread.
func (c *Client) ListMessages(ctx context.Context, conversationID string) (Thread, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "ListMessages", wrapperspb.String(conversationID), out); err != nil {
		return Thread{}, err
	}
	var th Thread
	err := fromStruct(out, &th)
	return th, err
}

// Send queues a message. When the transmit fails the message stays queued as
// failed; TempIDFromError recovers its id from the returned error.
func (c *Client) Send(ctx context.Context, req SendRequest) (string, error) {
	in, err := toStruct(req)
	if err != nil {
		return "", err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Send", in, out); err != nil {
		return TempIDFromError(err), err
	}
	var resp sendResponse
	err = fromStruct(out, &resp)
	return resp.TempID, err
}

// MarkRead marks a conversation read and returns how many messages changed.
func (c *Client) MarkRead(ctx context.Context, conversationID string) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.invoke(ctx, "MarkRead", wrapperspb.String(conversationID), out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

// Retry re-sends a failed message.
func (c *Client) Retry(ctx context.Context, tempID string) error {
	return c.invoke(ctx, "Retry", wrapperspb.String(tempID), new(emptypb.Empty))
}

// Discard drops a failed message.
func (c *Client) Discard(ctx context.Context, id string) error {
	return c.invoke(ctx, "Discard", wrapperspb.String(id), new(emptypb.Empty))
}

// Reconnect resets the backoff and reconnects immediately.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.invoke(ctx, "Reconnect", &emptypb.Empty{}, new(emptypb.Empty))
}

// Refresh runs a history refresh and waits for the merge.
func (c *Client) Refresh(ctx context.Context) (RefreshResult, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Refresh", &emptypb.Empty{}, out); err != nil {
		return RefreshResult{}, err
	}
	var res RefreshResult
	err := fromStruct(out, &res)
	return res, err
}

// SetVisible tells the daemon whether the presentation layer is in the foreground.
func (c *Client) SetVisible(ctx context.Context, visible bool) error {
	return c.invoke(ctx, "SetVisible", wrapperspb.Bool(visible), new(emptypb.Empty))
}

// SetActive tells the daemon which conversation is open.
func (c *Client) SetActive(ctx context.Context, conversationID string) error {
	return c.invoke(ctx, "SetActive", wrapperspb.String(conversationID), new(emptypb.Empty))
}

// Typing reports a composer keystroke.
func (c *Client) Typing(ctx context.Context, conversationID string) error {
	return c.invoke(ctx, "Typing", wrapperspb.String(conversationID), new(emptypb.Empty))
}

// EventStream receives events from Watch.
type EventStream struct {
	stream grpc.ServerStreamingClient[structpb.Struct]
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (Event, error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return Event{}, err
	}
	return eventFromStruct(msg), nil
}

// Watch subscribes to daemon events whose kind starts with prefix. An empty
// prefix receives everything. The stream ends when ctx is cancelled.
func (c *Client) Watch(ctx context.Context, prefix string) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &ChatSyncDesc.Streams[0], fullMethod("Watch"))
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wrapperspb.StringValue, structpb.Struct]{ClientStream: stream}
	if err := x.SendMsg(wrapperspb.String(prefix)); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: x}, nil
}

