package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"nhooyr.io/websocket"

	"lendcore/services/comptrollerd/feed"
)

const wsWriteTimeout = 10 * time.Second

// streamEvents upgrades to a websocket and pushes committed events after the
// optional cursor. A client that falls behind is disconnected and resumes
// from the last sequence it saw.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	var cursor uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cursor = parsed
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.stream(ctx, conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			s.logger.Debug("event stream ended", "error", err, "request_id", requestID(r))
			_ = conn.Close(websocket.StatusTryAgainLater, "stream interrupted")
		}
	}
}

func (s *Server) stream(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	updates, cancel := s.events.Subscribe(0)
	defer cancel()

	for _, record := range s.events.After(cursor, 0) {
		if err := writeRecord(ctx, conn, record); err != nil {
			return err
		}
		cursor = record.Sequence
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-updates:
			if !ok {
				return errSubscriberDropped
			}
			if record.Sequence <= cursor {
				continue
			}
			if err := writeRecord(ctx, conn, record); err != nil {
				return err
			}
			cursor = record.Sequence
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, record feed.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
