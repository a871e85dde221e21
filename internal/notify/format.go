package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"trade_guard/internal/models"
)

// Format renders an event for a human. Unknown payloads fall back to %v.
func Format(kind models.EventKind, payload any) string {
	switch p := payload.(type) {
	case models.ConfluenceResult:
		return formatOpportunity(p)
	case models.PositionPlan:
		return formatPlan(p)
	case models.TrailState:
		return formatTrail(kind, p)
	case models.JournalEntry:
		return formatClosed(p)
	case string:
		return fmt.Sprintf("%s %s", icon(kind), p)
	default:
		return fmt.Sprintf("%s %s: %v", icon(kind), kind, p)
	}
}

func icon(kind models.EventKind) string {
	switch kind {
	case models.EventOpportunity:
		return "🎯"
	case models.EventPosition:
		return "📌"
	case models.EventRisk:
		return "⚠️"
	case models.EventTrailArmed:
		return "🧲"
	case models.EventStopMoved:
		return "🔒"
	case models.EventClosed:
		return "🏁"
	case models.EventProtectionGap:
		return "🚨"
	default:
		return "ℹ️"
	}
}

func formatOpportunity(r models.ConfluenceResult) string {
	side := r.ChecklistSide
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s  score %.0f (%s)\n", icon(models.EventOpportunity), r.Symbol, side, r.Score(side), r.Band(side))
	fmt.Fprintf(&b, "LONG %.0f / SHORT %.0f\n", r.LongScore, r.ShortScore)
	if len(r.Missing) > 0 {
		missing := make([]string, 0, len(r.Missing))
		for _, tf := range r.Missing {
			missing = append(missing, string(tf))
		}
		fmt.Fprintf(&b, "missing: %s\n", strings.Join(missing, ", "))
	}
	fmt.Fprintf(&b, "checklist %d/%d\n", r.Passed(), len(r.Checklist))
	for _, c := range r.Checklist {
		mark := "❌"
		if c.Passed {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, c.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPlan(p models.PositionPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s x%d\n", icon(models.EventPosition), p.Symbol, p.Side, p.Leverage)
	fmt.Fprintf(&b, "entry %s  stop %s\n", num(p.Entry), num(p.Stop))
	fmt.Fprintf(&b, "contracts %s (size %s)  margin %.2f  risk %.2f\n",
		num(p.Contracts), num(p.ContractSize), p.MarginRequired, p.ActualRisk)
	for i, tp := range p.TakeProfits {
		fmt.Fprintf(&b, "TP%d %.1fR @ %s  %.0f%%  net %.4f\n", i+1, tp.RMultiple, num(tp.Price), tp.SizeFraction*100, tp.NetPnL)
	}
	for _, w := range p.Warnings {
		fmt.Fprintf(&b, "%s %s\n", icon(models.EventRisk), w)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTrail(kind models.EventKind, s models.TrailState) string {
	switch kind {
	case models.EventTrailArmed:
		return fmt.Sprintf("%s %s %s trailing armed at %.2fR, price %s, stop %s",
			icon(kind), s.Symbol, s.Side, s.LastR, num(s.LastPrice), num(s.CurrentStop))
	case models.EventStopMoved:
		return fmt.Sprintf("%s %s %s stop moved to %s (price %s, %.2fR, move #%d)",
			icon(kind), s.Symbol, s.Side, num(s.CurrentStop), num(s.LastPrice), s.LastR, s.Moves)
	case models.EventProtectionGap:
		return fmt.Sprintf("%s PROTECTION GAP %s %s: no confirmed stop for %s contracts, last known stop %s. Manual action required.",
			icon(kind), s.Symbol, s.Side, num(s.Contracts), num(s.CurrentStop))
	default:
		return fmt.Sprintf("%s %s %s %s stop %s", icon(kind), s.Symbol, s.Side, s.Phase, num(s.CurrentStop))
	}
}

func formatClosed(e models.JournalEntry) string {
	result := "win"
	if e.PnL <= 0 {
		result = "loss"
	}
	return fmt.Sprintf("%s %s %s closed (%s)\nentry %s exit %s\nP&L %.4f (%.2f%%) fees %.4f held %s",
		icon(models.EventClosed), e.Symbol, e.Side, result, num(e.Entry), num(e.Exit),
		e.PnL, e.PnLPct, e.Fees, e.HoldTime.Round(time.Second))
}

// FormatAlert renders a log entry flagged for the operator.
func FormatAlert(level, msg string, fields map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", icon(models.EventProtectionGap), strings.ToUpper(level), msg)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, fields[k])
	}
	return b.String()
}

func num(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
}
