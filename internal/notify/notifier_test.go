package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_guard/internal/models"
	"trade_guard/pkg/logger"
)

type captureSender struct {
	mu    sync.Mutex
	texts []string
	block chan struct{}
}

func (c *captureSender) Send(_ context.Context, text string) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	return nil
}

func (c *captureSender) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func TestNotifierDeliversInOrder(t *testing.T) {
	s := &captureSender{}
	n := New(s, 8, 6000, logger.NewNop())
	n.Start()

	n.Notify(context.Background(), models.EventRisk, "first")
	n.Notify(context.Background(), models.EventAlert, "second")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n.Stop(ctx)

	texts := s.all()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "first")
	assert.Contains(t, texts[1], "second")
}

func TestNotifierNeverBlocks(t *testing.T) {
	s := &captureSender{block: make(chan struct{})}
	n := New(s, 1, 6000, logger.NewNop())
	n.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			n.Notify(context.Background(), models.EventAlert, fmt.Sprint(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a stuck sender")
	}
	assert.GreaterOrEqual(t, n.Dropped(), int64(8))

	close(s.block)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n.Stop(ctx)

	n.Notify(context.Background(), models.EventAlert, "late")
	assert.NotContains(t, strings.Join(s.all(), "|"), "late")
}

func TestNotifierAsAlertSink(t *testing.T) {
	s := &captureSender{}
	n := New(s, 8, 6000, logger.NewNop())
	n.Start()

	n.Alert("error", "PROTECTION GAP", map[string]any{"stop": 98.5, "contracts": 3})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n.Stop(ctx)

	texts := s.all()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "[ERROR] PROTECTION GAP")
	assert.Contains(t, texts[0], "contracts: 3\nstop: 98.5")
}

func TestFormat(t *testing.T) {
	opp := Format(models.EventOpportunity, models.ConfluenceResult{
		Symbol: "BTC-USDT-SWAP", LongScore: 74, ShortScore: 12,
		LongBand: models.BandStrong, ShortBand: models.BandNone,
		ChecklistSide: models.Long,
		Missing:       []models.Timeframe{models.TF15m},
		Checklist:     []models.CheckItem{{Name: "4h trend aligned", Passed: true}, {Name: "1h OBV confirms"}},
	})
	assert.Contains(t, opp, "BTC-USDT-SWAP LONG  score 74 (STRONG)")
	assert.Contains(t, opp, "missing: 15m")
	assert.Contains(t, opp, "checklist 1/2")
	assert.Contains(t, opp, "✅ 4h trend aligned")
	assert.Contains(t, opp, "❌ 1h OBV confirms")

	plan := Format(models.EventPosition, models.PositionPlan{
		Symbol: "X", Side: models.Short, Leverage: 5, Entry: 0.127, Stop: 0.129, Contracts: 36, ContractSize: 1,
		TakeProfits: []models.TakeProfitLevel{{RMultiple: 2.5, Price: 0.122, SizeFraction: 0.5, NetPnL: 0.08}},
		Warnings:    []string{"TP1 reward:risk below minimum"},
	})
	assert.Contains(t, plan, "entry 0.127  stop 0.129")
	assert.Contains(t, plan, "TP1 2.5R @ 0.122  50%")
	assert.Contains(t, plan, "⚠️ TP1 reward:risk below minimum")

	gap := Format(models.EventProtectionGap, models.TrailState{Symbol: "X", Side: models.Long, Contracts: 3, CurrentStop: 98})
	assert.Contains(t, gap, "PROTECTION GAP X LONG")
	assert.Contains(t, gap, "Manual action required")

	closed := Format(models.EventClosed, models.JournalEntry{Symbol: "X", Side: models.Long, PnL: -1, HoldTime: 90 * time.Second})
	assert.Contains(t, closed, "(loss)")
	assert.Contains(t, closed, "held 1m30s")
}

func TestTelegramSender(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"guard","username":"guard_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.NoError(t, r.ParseForm())
			mu.Lock()
			sent = append(sent, r.FormValue("chat_id")+":"+r.FormValue("text"))
			mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	bot, err := tgbot.NewBotAPIWithClient("TOKEN", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	tg := NewTelegram(bot, 42, true)
	require.NoError(t, tg.Send(context.Background(), "stop moved"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"42:stop moved"}, sent)
}
