package iqoption

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/iqoption-data/internal/connection"
	"github.com/rickgao/iqoption-data/internal/correlation"
)

type serverFrame struct {
	Name      string          `json:"name"`
	RequestID string          `json:"request_id,omitempty"`
	Msg       json.RawMessage `json:"msg,omitempty"`
}

// fakeIQ is a scripted IQ Option server.
type fakeIQ struct {
	history   map[int]int           // active -> candles returned by get-candles
	delay     map[int]time.Duration // active -> reply delay
	timeSync  time.Duration         // timeSync push interval (0 = never)
	requests  chan getCandlesMessage
	subscribe chan serverFrame

	writeMu sync.Mutex
}

func newFakeIQ() *fakeIQ {
	return &fakeIQ{
		history:   make(map[int]int),
		delay:     make(map[int]time.Duration),
		requests:  make(chan getCandlesMessage, 64),
		subscribe: make(chan serverFrame, 64),
	}
}

func (s *fakeIQ) serve(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		defer close(done)
		if s.timeSync > 0 {
			go s.tick(conn, done)
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f serverFrame
			if err := json.Unmarshal(data, &f); err != nil {
				t.Errorf("bad client frame %s: %v", data, err)
				return
			}
			s.handle(t, conn, f)
		}
	}))
}

func (s *fakeIQ) tick(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(s.timeSync)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.write(conn, serverFrame{Name: KindTimeSync, Msg: json.RawMessage(`1705320000000`)})
		}
	}
}

func (s *fakeIQ) handle(t *testing.T, conn *websocket.Conn, f serverFrame) {
	switch f.Name {
	case KindSendMessage:
		var req getCandlesMessage
		if err := json.Unmarshal(f.Msg, &req); err != nil {
			t.Errorf("bad sendMessage body: %v", err)
			return
		}
		s.requests <- req

		// Protocol ack first, then the real reply after the delay.
		s.write(conn, serverFrame{Name: "result", RequestID: f.RequestID, Msg: json.RawMessage(`{"success":true}`)})
		go func() {
			time.Sleep(s.delay[req.Body.ActiveID])
			msg, _ := json.Marshal(map[string]any{
				"candles": historyCandles(req.Body.To, s.history[req.Body.ActiveID]),
			})
			s.write(conn, serverFrame{Name: KindCandles, RequestID: f.RequestID, Msg: msg})
		}()

	case KindSubscribeMessage:
		s.subscribe <- f
		var sub subscribeMessage
		if err := json.Unmarshal(f.Msg, &sub); err != nil {
			t.Errorf("bad subscribeMessage body: %v", err)
			return
		}
		rf := sub.Params.RoutingFilters

		// Pushes for other streams are interleaved with the subscribed one.
		s.write(conn, pushCandle(rf.ActiveID+1, rf.Size, 1705320000, "1.1"))
		s.write(conn, pushCandle(rf.ActiveID, rf.Size*5, 1705320000, "1.1"))
		s.write(conn, pushCandle(rf.ActiveID, rf.Size, 1705320000, "1.11"))
		s.write(conn, pushCandle(rf.ActiveID, rf.Size, 1705320000, "1.12"))

	case KindUnsubscribeMessage:
		s.subscribe <- f
	}
}

func (s *fakeIQ) write(conn *websocket.Conn, f serverFrame) {
	data, _ := json.Marshal(f)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.WriteMessage(websocket.TextMessage, data)
}

func historyCandles(to int64, n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := range n {
		from := to - int64(n-i)*60
		out = append(out, map[string]any{
			"id":     from / 60,
			"from":   from,
			"to":     from + 60,
			"open":   1.1,
			"close":  1.15,
			"min":    1.05,
			"max":    1.2,
			"volume": 0,
		})
	}
	return out
}

func pushCandle(activeID, size int, from int64, closePrice string) serverFrame {
	msg := `{"active_id":` + itoa(activeID) + `,"size":` + itoa(size) +
		`,"id":1,"from":` + itoa(int(from)) + `,"to":` + itoa(int(from)+size) +
		`,"open":1.1,"close":` + closePrice + `,"min":1.0,"max":1.2,"volume":3,"phase":"T"}`
	return serverFrame{Name: KindCandleGenerated, Msg: json.RawMessage(msg)}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newTestClient(t *testing.T, server *httptest.Server) *correlation.Client {
	t.Helper()

	tcfg := connection.DefaultConfig()
	tcfg.URL = "ws" + strings.TrimPrefix(server.URL, "http")

	ccfg := correlation.DefaultConfig()
	ccfg.RequestTimeout = 2 * time.Second

	c := correlation.New(connection.NewWSTransport(tcfg, nil), ccfg)
	if err := c.SubscribeRaw(context.Background()); err != nil {
		t.Fatalf("SubscribeRaw failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
