package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/facilitydesk/chatsync/internal/conn"
	"github.com/facilitydesk/chatsync/internal/outbox"
	intsync "github.com/facilitydesk/chatsync/internal/sync"
)

// toStatus maps engine errors onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	return grpcstatus.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, intsync.ErrNotReady),
		errors.Is(err, intsync.ErrNotStarted),
		errors.Is(err, conn.ErrNotConnected),
		errors.Is(err, outbox.ErrNotFailed):
		return codes.FailedPrecondition
	case errors.Is(err, intsync.ErrEmptyMessage):
		return codes.InvalidArgument
	case errors.Is(err, outbox.ErrUnknownMessage):
		return codes.NotFound
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// sendStatus is toStatus for a failed send that still queued a message. The
// temporary id rides along as a status detail so the caller can retry it.
func sendStatus(err error, tempID string) error {
	st := grpcstatus.New(codeOf(err), err.Error())
	if tempID == "" {
		return st.Err()
	}
	if withID, derr := st.WithDetails(wrapperspb.String(tempID)); derr == nil {
		return withID.Err()
	}
	return st.Err()
}

// TempIDFromError extracts the temporary id of a queued message from a Send
// error. Returns "" when the send queued nothing.
func TempIDFromError(err error) string {
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if v, ok := d.(*wrapperspb.StringValue); ok {
			return v.GetValue()
		}
	}
	return ""
}

// IsNotReady reports whether err is the daemon's "not connected" refusal.
func IsNotReady(err error) bool {
	return grpcstatus.Code(err) == codes.FailedPrecondition
}
