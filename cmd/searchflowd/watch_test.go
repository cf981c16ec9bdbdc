package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/wayfarer/ampc"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandleAMPCWatchStreamsPublishedEvents(t *testing.T) {
	s := &Server{logger: zap.NewNop(), ampcHub: ampc.NewProgressHub()}

	srv := httptest.NewServer(http.HandlerFunc(s.handleAMPCWatch))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Give the handler's Subscribe a moment to register before publishing.
	time.Sleep(20 * time.Millisecond)
	s.ampcHub.Publish(ampc.RoundEvent{Round: 2, Mapper: "cardinalities"})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var got ampc.RoundEvent
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, ampc.RoundEvent{Round: 2, Mapper: "cardinalities"}, got)
}

func TestHandleAMPCWatchClosesOnClientDisconnect(t *testing.T) {
	s := &Server{logger: zap.NewNop(), ampcHub: ampc.NewProgressHub()}

	srv := httptest.NewServer(http.HandlerFunc(s.handleAMPCWatch))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
}
