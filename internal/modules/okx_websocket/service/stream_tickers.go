package service

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trade_guard/internal/models"
)

type tickerFrame struct {
	Event string `json:"event"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

// run keeps one public connection subscribed to the tickers channel,
// reconnecting after any read error until ctx ends.
func (f *Feed) run(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	args := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, map[string]string{"channel": "tickers", "instId": id})
	}

	for {
		f.session(ctx, args)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (f *Feed) session(ctx context.Context, args []map[string]string) {
	conn, _, err := f.wsDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		f.log.Warn("ws dial failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		f.log.Warn("ws subscribe failed", zap.Error(err))
		return
	}
	f.log.Info("ws ticker stream connected", zap.Int("instruments", len(args)))

	// OKX drops idle connections after 30s; ping keeps it open.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(f.ping)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-t.C:
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.log.Warn("ws read failed", zap.Error(err))
			}
			return
		}
		if string(msg) == "pong" {
			continue
		}
		f.handle(msg)
	}
}

func (f *Feed) handle(msg []byte) {
	var frame tickerFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		return
	}
	if frame.Event == "error" {
		f.log.Warn("ws error event", zap.String("msg", frame.Msg))
		return
	}
	if frame.Arg.Channel != "tickers" {
		return
	}
	for _, d := range frame.Data {
		last, err := strconv.ParseFloat(d.Last, 64)
		if err != nil || last <= 0 {
			continue
		}
		ts := f.now()
		if ms, err := strconv.ParseInt(d.Ts, 10, 64); err == nil {
			ts = time.UnixMilli(ms)
		}
		f.store(models.Ticker{Symbol: d.InstID, Last: last, Time: ts.UTC()})
	}
}
