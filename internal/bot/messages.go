package bot

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// Lifecycle messages sent outside the controller by the command layer.
const (
	MsgStarting     = "🚀 Grid bot starting..."
	MsgShuttingDown = "🛑 Grid bot shutting down..."
)

// Crashed formats the fatal startup notification.
func Crashed(err error) string {
	return fmt.Sprintf("💥 Bot crashed: %v", err)
}

// USD renders d with thousands separators and two decimals.
func USD(d decimal.Decimal) string {
	return "$" + humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
}

func gridInitializedMsg(price, balance, qty decimal.Decimal, buys int, pair string) string {
	return fmt.Sprintf(`Grid initialized!
Price: %s
Initial orders: %d BUY orders
Size: %s %s per order
Balance: %s

Sell orders will be placed as buys fill.`,
		USD(price), buys, qty.String(), pair, USD(balance))
}

func orderFailedMsg(side domain.OrderSide, qty, price decimal.Decimal) string {
	return fmt.Sprintf("⚠️ Order failed: %s %s @ $%s", side, qty.String(), price.String())
}

func orderFilledMsg(f domain.Fill, inventory decimal.Decimal, pair string) string {
	icon := "🔴"
	if f.Side == domain.OrderSideBuy {
		icon = "🟢"
	}
	return fmt.Sprintf(`%s Order Filled!
Side: %s
Price: %s
Qty: %s
Total: %s
Inventory: %s %s`,
		icon, strings.ToUpper(string(f.Side)), USD(f.Price), f.Quantity.String(),
		USD(f.Notional()), inventory.StringFixed(6), pair)
}

func profitMsg(c domain.CompletedCycle, cycles int, total decimal.Decimal) string {
	return fmt.Sprintf(`✅ Profit Cycle Complete!
Sell Price: %s
Qty: %s
Profit: $%s

Total Cycles: %d
Total Profit: $%s`,
		USD(c.SellPrice), c.Quantity.StringFixed(6), c.Profit.StringFixed(2),
		cycles, total.StringFixed(2))
}

func botErrorMsg(err error) string {
	return fmt.Sprintf("⚠️ Bot error: %v", err)
}

func orderClosedMsg(o domain.Order, status domain.OrderStatus) string {
	return fmt.Sprintf("⚠️ Order %s: %s %s @ $%s (no longer tracked)",
		status, o.Side, o.Quantity.String(), o.Price.String())
}

func oversoldMsg(sold, unmatched decimal.Decimal, pair string) string {
	return fmt.Sprintf("⚠️ Sold %s %s but only %s was held in lots",
		sold.String(), pair, sold.Sub(unmatched).String())
}
