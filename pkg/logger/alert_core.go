package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// KeyAlert marks an entry that must also reach the operator.
const KeyAlert = "send_alert"

// AlertSink receives alert entries. Implementations must not block.
type AlertSink interface {
	Alert(level, msg string, fields map[string]any)
}

// Alert returns the field that routes an entry to the alert sink.
func Alert() zap.Field { return zap.Bool(KeyAlert, true) }

type alertTarget struct {
	mu   sync.RWMutex
	sink AlertSink
}

func (t *alertTarget) set(s AlertSink) {
	t.mu.Lock()
	t.sink = s
	t.mu.Unlock()
}

func (t *alertTarget) get() AlertSink {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sink
}

// AlertCore tees entries flagged with send_alert to the registered sink.
type AlertCore struct {
	core     zapcore.Core
	target   *alertTarget
	minLevel zapcore.Level
}

func (a *AlertCore) Enabled(lvl zapcore.Level) bool {
	return a.core.Enabled(lvl)
}

func (a *AlertCore) With(fields []zapcore.Field) zapcore.Core {
	return &AlertCore{
		core:     a.core.With(fields),
		target:   a.target,
		minLevel: a.minLevel,
	}
}

func (a *AlertCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if a.Enabled(entry.Level) {
		return checked.AddCore(entry, a)
	}
	return checked
}

func (a *AlertCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	shouldSend := false
	for _, f := range fields {
		if f.Key == KeyAlert && f.Type == zapcore.BoolType && f.Integer == 1 {
			shouldSend = true
			break
		}
	}
	if shouldSend && entry.Level >= a.minLevel {
		if sink := a.target.get(); sink != nil {
			enc := zapcore.NewMapObjectEncoder()
			for _, f := range fields {
				if f.Key == KeyAlert {
					continue
				}
				f.AddTo(enc)
			}
			sink.Alert(entry.Level.CapitalString(), entry.Message, enc.Fields)
		}
	}
	return a.core.Write(entry, fields)
}

func (a *AlertCore) Sync() error {
	return a.core.Sync()
}
