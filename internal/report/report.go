// Package report renders the operator reports behind the CLI subcommands:
// open orders, price distance, FIFO profits over filled orders, an activity
// timeline and the notifier status message.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/abelprasad/CryptoBear/internal/bot"
	"github.com/abelprasad/CryptoBear/internal/domain"
	"github.com/abelprasad/CryptoBear/internal/grid"
	"github.com/abelprasad/CryptoBear/internal/notify"
)

// Order list filters understood by the broker.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
	StatusAll    = "all"
)

const (
	ordersLimit   = 15
	sellsLimit    = 10
	profitsLimit  = 100
	activityLimit = 50
	timelineLimit = 20
	recentFills   = 10
)

// Source is the read-only broker surface the reports need.
type Source interface {
	GetQuote(ctx context.Context, pair string) (decimal.Decimal, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	ListOrders(ctx context.Context, status string, limit int) ([]domain.BrokerOrder, error)
}

// Notifier sends the status message.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Reporter writes reports for one pair to w.
type Reporter struct {
	src   Source
	pair  string
	w     io.Writer
	title lipgloss.Style
}

// New creates a Reporter. Headings are styled only when w is a terminal.
func New(src Source, pair string, w io.Writer) *Reporter {
	r := lipgloss.NewRenderer(w)
	return &Reporter{
		src:   src,
		pair:  pair,
		w:     w,
		title: r.NewStyle().Bold(true),
	}
}

func (r *Reporter) heading(text string) {
	rule := strings.Repeat("=", 70)
	fmt.Fprintf(r.w, "\n%s\n%s\n%s\n\n", rule, r.title.Render(text), rule)
}

func (r *Reporter) table() *tabwriter.Writer {
	return tabwriter.NewWriter(r.w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

// Orders lists the open orders.
func (r *Reporter) Orders(ctx context.Context) error {
	orders, err := r.src.ListOrders(ctx, StatusOpen, 0)
	if err != nil {
		return fmt.Errorf("report: list open orders: %w", err)
	}

	fmt.Fprintf(r.w, "\nOpen orders: %d\n\n", len(orders))
	tw := r.table()
	for i, o := range orders {
		if i == ordersLimit {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\t@ %s\t(ID: %s...)\t\n",
			strings.ToUpper(string(o.Side)), o.Quantity, bot.USD(o.LimitPrice), shortID(o.ID))
	}
	return tw.Flush()
}

// Price prints the current price and how far each open sell sits above it.
func (r *Reporter) Price(ctx context.Context) error {
	price, err := r.src.GetQuote(ctx, r.pair)
	if err != nil {
		return fmt.Errorf("report: get quote: %w", err)
	}
	orders, err := r.src.ListOrders(ctx, StatusOpen, 0)
	if err != nil {
		return fmt.Errorf("report: list open orders: %w", err)
	}

	sells := filterSide(orders, domain.OrderSideSell)
	sort.Slice(sells, func(i, j int) bool {
		return sells[i].LimitPrice.LessThan(sells[j].LimitPrice)
	})

	fmt.Fprintf(r.w, "\nCurrent %s Price: %s\n\n", r.pair, bot.USD(price))
	fmt.Fprintf(r.w, "Open SELL orders: %d\n%s\n\n", len(sells), strings.Repeat("=", 60))

	tw := r.table()
	for i, o := range sells {
		if i == sellsLimit {
			break
		}
		fmt.Fprintf(tw, "SELL\t%s\t@ %s\t(needs %s%%)\t\n",
			o.Quantity, bot.USD(o.LimitPrice), signedPct(Distance(price, o.LimitPrice)))
	}
	return tw.Flush()
}

// Distance returns (target-price)/price as a percentage.
func Distance(price, target decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return target.Sub(price).Div(price).Mul(decimal.NewFromInt(100))
}

// ProfitCycle is one buy lot matched against a sell in the profit report.
type ProfitCycle struct {
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	Quantity  decimal.Decimal
	Profit    decimal.Decimal
	// Pct is the per-unit return on the buy price.
	Pct decimal.Decimal
}

// ProfitAnalysis is the FIFO replay of filled orders.
type ProfitAnalysis struct {
	Buys   []domain.BrokerOrder
	Sells  []domain.BrokerOrder
	Cycles []ProfitCycle
	Total  decimal.Decimal
	// Unmatched is the sell quantity that found no earlier buy.
	Unmatched decimal.Decimal
}

// AnalyzeProfits replays filled orders in fill-time order through the same
// FIFO matcher the bot uses. Orders that are not filled are ignored.
func AnalyzeProfits(orders []domain.BrokerOrder) ProfitAnalysis {
	a := ProfitAnalysis{Total: decimal.Zero, Unmatched: decimal.Zero}
	for _, o := range filled(orders) {
		if o.Side == domain.OrderSideBuy {
			a.Buys = append(a.Buys, o)
		} else {
			a.Sells = append(a.Sells, o)
		}
	}
	sortByFill(a.Buys)
	sortByFill(a.Sells)

	lots := grid.NewLotQueue()
	for _, b := range a.Buys {
		lots.PushBack(domain.InventoryLot{
			Price:     b.FilledAvgPrice,
			Quantity:  b.FilledQuantity,
			Timestamp: fillTime(b),
		})
	}

	for _, s := range a.Sells {
		if lots.Len() == 0 {
			break
		}
		m := grid.MatchSell(lots, s.FilledAvgPrice, s.FilledQuantity)
		for _, leg := range m.Legs {
			pct := decimal.Zero
			if leg.BuyPrice.IsPositive() {
				pct = s.FilledAvgPrice.Sub(leg.BuyPrice).Div(leg.BuyPrice).Mul(decimal.NewFromInt(100))
			}
			a.Cycles = append(a.Cycles, ProfitCycle{
				BuyPrice:  leg.BuyPrice,
				SellPrice: s.FilledAvgPrice,
				Quantity:  leg.Quantity,
				Profit:    leg.Profit,
				Pct:       pct,
			})
		}
		a.Total = a.Total.Add(m.Profit)
		a.Unmatched = a.Unmatched.Add(m.Unmatched)
	}
	return a
}

// Profits prints recent fills and the FIFO profit analysis over closed
// orders.
func (r *Reporter) Profits(ctx context.Context) error {
	orders, err := r.src.ListOrders(ctx, StatusClosed, profitsLimit)
	if err != nil {
		return fmt.Errorf("report: list closed orders: %w", err)
	}

	fills := filled(orders)
	r.heading("FILLED ORDERS ANALYSIS")
	if len(fills) == 0 {
		fmt.Fprintln(r.w, "No filled orders yet.")
		return nil
	}

	a := AnalyzeProfits(orders)
	fmt.Fprintf(r.w, "Total filled orders: %d\n\n", len(fills))
	fmt.Fprintf(r.w, "Filled BUYs:  %d\nFilled SELLs: %d\n\n", len(a.Buys), len(a.Sells))

	fmt.Fprintf(r.w, "Recent Filled Orders:\n%s\n", strings.Repeat("-", 70))
	tw := r.table()
	for i, o := range fills {
		if i == recentFills {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\t@ %s\t= %s\t[%s]\t\n",
			strings.ToUpper(string(o.Side)), o.FilledQuantity.StringFixed(6),
			bot.USD(o.FilledAvgPrice), bot.USD(o.FilledAvgPrice.Mul(o.FilledQuantity)), stamp(o.FilledAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(a.Buys) == 0 || len(a.Sells) == 0 {
		fmt.Fprintln(r.w, "\nNo completed buy->sell cycles yet.")
		fmt.Fprintln(r.w, "(Waiting for sells to fill to realize profits)")
		return nil
	}

	r.heading("PROFIT ANALYSIS (FIFO Matching)")
	for i, c := range a.Cycles {
		fmt.Fprintf(r.w, "Cycle #%d:\n", i+1)
		fmt.Fprintf(r.w, "  Buy:  %s @ %s\n", c.Quantity.StringFixed(6), bot.USD(c.BuyPrice))
		fmt.Fprintf(r.w, "  Sell: %s @ %s\n", c.Quantity.StringFixed(6), bot.USD(c.SellPrice))
		fmt.Fprintf(r.w, "  Profit: $%s (%s%%)\n\n", c.Profit.StringFixed(2), signedPct(c.Pct))
	}
	fmt.Fprintln(r.w, strings.Repeat("=", 70))
	fmt.Fprintf(r.w, "TOTAL REALIZED PROFIT: $%s\n", a.Total.StringFixed(2))
	fmt.Fprintf(r.w, "Completed Cycles: %d\n", len(a.Cycles))
	fmt.Fprintln(r.w, strings.Repeat("=", 70))
	return nil
}

var statusSymbols = map[domain.OrderStatus]string{
	domain.OrderStatusFilled:     "[X]",
	domain.OrderStatusNew:        "[ ]",
	domain.OrderStatusAccepted:   "[ ]",
	domain.OrderStatusPendingNew: "[~]",
	domain.OrderStatusCanceled:   "[-]",
	domain.OrderStatusRejected:   "[!]",
}

// Activity prints status counts, the recent order timeline and the current
// account state.
func (r *Reporter) Activity(ctx context.Context) error {
	orders, err := r.src.ListOrders(ctx, StatusAll, activityLimit)
	if err != nil {
		return fmt.Errorf("report: list orders: %w", err)
	}

	r.heading("GRID BOT ACTIVITY LOG")
	fmt.Fprintf(r.w, "Total orders created: %d\n\n", len(orders))

	counts := map[domain.OrderStatus]int{}
	for _, o := range orders {
		counts[o.Status]++
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	fmt.Fprintln(r.w, "Order Status Summary:")
	for _, s := range statuses {
		fmt.Fprintf(r.w, "  %-15s: %3d\n", s, counts[domain.OrderStatus(s)])
	}

	fmt.Fprintf(r.w, "\n%s\nORDER TIMELINE (Most Recent Last)\n%s\n\n", strings.Repeat("-", 70), strings.Repeat("-", 70))
	timeline := append([]domain.BrokerOrder(nil), orders...)
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].CreatedAt.Before(timeline[j].CreatedAt)
	})
	if len(timeline) > timelineLimit {
		timeline = timeline[len(timeline)-timelineLimit:]
	}
	for _, o := range timeline {
		sym, ok := statusSymbols[o.Status]
		if !ok {
			sym = "[?]"
		}
		fmt.Fprintf(r.w, "%s [%s] %-4s %10s @ %12s  [%-12s]\n",
			sym, o.CreatedAt.UTC().Format("2006-01-02 15:04"), strings.ToUpper(string(o.Side)),
			o.Quantity, bot.USD(o.LimitPrice), o.Status)
		if o.FilledAt != nil {
			fmt.Fprintf(r.w, "      -> Filled: %s\n", stamp(o.FilledAt))
		}
	}

	price, err := r.src.GetQuote(ctx, r.pair)
	if err != nil {
		return fmt.Errorf("report: get quote: %w", err)
	}
	balance, err := r.src.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("report: get balance: %w", err)
	}

	r.heading("CURRENT STATE")
	fmt.Fprintf(r.w, "Current %s Price: %s\n", r.pair, bot.USD(price))
	fmt.Fprintf(r.w, "Account Balance:   %s\n", bot.USD(balance))

	var open []domain.BrokerOrder
	for _, o := range orders {
		switch o.Status {
		case domain.OrderStatusNew, domain.OrderStatusAccepted, domain.OrderStatusPendingNew:
			open = append(open, o)
		}
	}
	fills := filled(orders)
	fmt.Fprintf(r.w, "\nOpen Orders: %d (%d buys, %d sells)\n", len(open),
		len(filterSide(open, domain.OrderSideBuy)), len(filterSide(open, domain.OrderSideSell)))
	buys := filterSide(fills, domain.OrderSideBuy)
	fmt.Fprintf(r.w, "Filled Orders: %d (%d buys, %d sells)\n", len(fills),
		len(buys), len(filterSide(fills, domain.OrderSideSell)))

	if len(buys) > 0 {
		invested, held := decimal.Zero, decimal.Zero
		for _, o := range buys {
			invested = invested.Add(o.FilledQuantity.Mul(o.FilledAvgPrice))
			held = held.Add(o.FilledQuantity)
		}
		fmt.Fprintf(r.w, "\nAccumulated Position: %s %s (%s invested)\n",
			held.StringFixed(6), r.pair, bot.USD(invested))
	}
	return nil
}

// StatusMessage formats the status report sent through the notifier.
func StatusMessage(pair string, price, balance decimal.Decimal, open int) string {
	return fmt.Sprintf(`CryptoBear Status Report
━━━━━━━━━━━━━━━━━━━━
💰 %s: %s
💵 Balance: %s
📋 Open orders: %d
📊 Exchange: Alpaca Paper
✅ All systems operational`, pair, bot.USD(price), bot.USD(balance), open)
}

// Status fetches price, balance and open orders, prints them and sends the
// status message through n.
func (r *Reporter) Status(ctx context.Context, n Notifier) error {
	price, err := r.src.GetQuote(ctx, r.pair)
	if err != nil {
		return fmt.Errorf("report: get quote: %w", err)
	}
	balance, err := r.src.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("report: get balance: %w", err)
	}
	open, err := r.src.ListOrders(ctx, StatusOpen, 0)
	if err != nil {
		return fmt.Errorf("report: list open orders: %w", err)
	}

	if err := n.Notify(ctx, notify.EventStatus, "", StatusMessage(r.pair, price, balance, len(open))); err != nil {
		fmt.Fprintln(r.w, "[ERROR] Failed to send status report")
		return fmt.Errorf("report: send status: %w", err)
	}
	fmt.Fprintln(r.w, "[OK] Status report sent")
	fmt.Fprintf(r.w, "\n%s Price: %s\n", r.pair, bot.USD(price))
	fmt.Fprintf(r.w, "Account Balance: %s\n", bot.USD(balance))
	return nil
}

// Grid prints the orders placed by a grid initialization.
func Grid(w io.Writer, snap bot.Snapshot, orders []domain.Order) error {
	fmt.Fprintf(w, "Active orders: %d\n", len(orders))
	fmt.Fprintf(w, "Grid center: %s\n", bot.USD(snap.Levels.Center))
	fmt.Fprintf(w, "Buy levels: %d\n", len(snap.Levels.Buy))
	fmt.Fprintf(w, "Sell levels: %d\n\n", len(snap.Levels.Sell))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, o := range orders {
		level := "-"
		if o.HasLevel() {
			level = fmt.Sprintf("%+d", *o.Level)
		}
		fmt.Fprintf(tw, "%s\t@ %s\t(level %s)\t\n", strings.ToUpper(string(o.Side)), bot.USD(o.Price), level)
	}
	return tw.Flush()
}

func filled(orders []domain.BrokerOrder) []domain.BrokerOrder {
	var out []domain.BrokerOrder
	for _, o := range orders {
		if o.Status.IsFilled() {
			out = append(out, o)
		}
	}
	return out
}

func filterSide(orders []domain.BrokerOrder, side domain.OrderSide) []domain.BrokerOrder {
	var out []domain.BrokerOrder
	for _, o := range orders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out
}

func sortByFill(orders []domain.BrokerOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		return fillTime(orders[i]).Before(fillTime(orders[j]))
	})
}

func fillTime(o domain.BrokerOrder) time.Time {
	if o.FilledAt != nil {
		return *o.FilledAt
	}
	return o.CreatedAt
}

func stamp(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func signedPct(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !d.IsNegative() {
		s = "+" + s
	}
	return s
}
