package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"trade_guard/internal/models"
	scansvc "trade_guard/internal/modules/scanner/service"
)

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func printScan(w io.Writer, out []scansvc.Opportunity) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tLONG\tSHORT\tBAND\tCHECKS\tSIGNAL\tMISSING")
	for _, o := range out {
		r := o.Result
		signal := "-"
		if o.Tradable {
			signal = string(o.Side)
		}
		missing := make([]string, 0, len(r.Missing))
		for _, tf := range r.Missing {
			missing = append(missing, string(tf))
		}
		fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%s\t%d/%d\t%s\t%s\n",
			r.Symbol, r.LongScore, r.ShortScore, r.Band(r.ChecklistSide),
			r.Passed(), len(r.Checklist), signal, strings.Join(missing, ","))
	}
	return tw.Flush()
}

func printPlan(w io.Writer, p models.PositionPlan) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "symbol\t%s %s x%d\n", p.Symbol, p.Side, p.Leverage)
	fmt.Fprintf(tw, "entry\t%s\n", num(p.Entry))
	fmt.Fprintf(tw, "stop\t%s (%.2f%%)\n", num(p.Stop), 100*p.StopDistance()/p.Entry)
	fmt.Fprintf(tw, "contracts\t%s x %s\n", num(p.Contracts), num(p.ContractSize))
	fmt.Fprintf(tw, "notional\t%.4f\n", p.Notional)
	fmt.Fprintf(tw, "margin\t%.4f\n", p.MarginRequired)
	fmt.Fprintf(tw, "risk\t%.4f (budget %.4f)\n", p.ActualRisk, p.RiskAmount)
	fmt.Fprintf(tw, "fees\t%.4f round trip\n", p.RoundTripFees)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TP\tR\tPRICE\tSIZE\tGROSS\tFEES\tNET")
	for i, tp := range p.TakeProfits {
		fmt.Fprintf(tw, "%d\t%.1f\t%s\t%.0f%%\t%.4f\t%.4f\t%.4f\n",
			i+1, tp.RMultiple, num(tp.Price), tp.SizeFraction*100, tp.GrossPnL, tp.Fees, tp.NetPnL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, warn := range p.Warnings {
		if _, err := fmt.Fprintln(w, "warning:", warn); err != nil {
			return err
		}
	}
	return nil
}

func printStats(w io.Writer, s models.JournalStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "period\t%d days\n", s.PeriodDays)
	fmt.Fprintf(tw, "trades\t%d (%d won, %d lost)\n", s.Trades, s.Winners, s.Losers)
	if s.Trades == 0 {
		return tw.Flush()
	}
	pf := fmt.Sprintf("%.2f", s.ProfitFactor)
	if math.IsInf(s.ProfitFactor, 1) {
		pf = "inf"
	}
	fmt.Fprintf(tw, "win rate\t%.1f%%\n", s.WinRate)
	fmt.Fprintf(tw, "total pnl\t%.4f\n", s.TotalPnL)
	fmt.Fprintf(tw, "avg win / loss\t%.4f / %.4f\n", s.AvgWin, s.AvgLoss)
	fmt.Fprintf(tw, "profit factor\t%s\n", pf)
	if s.Best != nil {
		fmt.Fprintf(tw, "best\t%s %s %.4f\n", s.Best.Symbol, s.Best.Side, s.Best.PnL)
	}
	if s.Worst != nil {
		fmt.Fprintf(tw, "worst\t%s %s %.4f\n", s.Worst.Symbol, s.Worst.Side, s.Worst.PnL)
	}
	if s.AvgScore > 0 {
		fmt.Fprintf(tw, "avg entry score\t%.1f\n", s.AvgScore)
	}
	return tw.Flush()
}
