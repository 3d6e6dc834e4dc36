// Package bot runs the grid strategy: it places the initial buy ladder,
// polls tracked orders for fills, and answers every fill with a
// counter-order on the opposite side.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abelprasad/CryptoBear/internal/domain"
	"github.com/abelprasad/CryptoBear/internal/events"
	"github.com/abelprasad/CryptoBear/internal/grid"
	"github.com/abelprasad/CryptoBear/internal/notify"
	"github.com/abelprasad/CryptoBear/internal/tracker"
)

// State is the controller lifecycle position.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

// shutdownTimeout bounds the work done after the run context is canceled.
const shutdownTimeout = 15 * time.Second

// Config is the controller's immutable parameter set.
type Config struct {
	Pair         string
	PollInterval time.Duration
	// CallTimeout bounds every broker call. Zero disables the bound.
	CallTimeout  time.Duration
	Spread       decimal.Decimal
	Count        int
	RiskPerTrade decimal.Decimal
}

// Notifier delivers user-facing messages.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Option configures optional Controller collaborators.
type Option func(*Controller)

// WithEvents publishes bot activity to sink.
func WithEvents(sink events.Sink) Option {
	return func(c *Controller) { c.sink = sink }
}

// WithPriceCache writes every fetched quote to cache.
func WithPriceCache(cache domain.PriceCache) Option {
	return func(c *Controller) { c.prices = cache }
}

// WithMetrics records activity on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithArchiver uploads a session report when Run stops. settings is a
// secret-free summary of the configuration stored with the report.
func WithArchiver(a domain.SessionArchiver, settings map[string]string) Option {
	return func(c *Controller) {
		c.archiver = a
		c.settings = settings
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	SessionID   string                `json:"session_id"`
	State       string                `json:"state"`
	Pair        string                `json:"pair"`
	StartedAt   time.Time             `json:"started_at"`
	LastPoll    time.Time             `json:"last_poll"`
	Price       decimal.Decimal       `json:"price"`
	Balance     decimal.Decimal       `json:"balance"`
	Quantity    decimal.Decimal       `json:"quantity"`
	Levels      grid.Levels           `json:"levels"`
	Inventory   decimal.Decimal       `json:"inventory"`
	Lots        []domain.InventoryLot `json:"lots"`
	Cycles      int                   `json:"cycles"`
	TotalProfit decimal.Decimal       `json:"total_profit"`
	OpenBuys    int                   `json:"open_buys"`
	OpenSells   int                   `json:"open_sells"`
}

// Controller owns all order and inventory state. Initialize, Run and
// HandleFill must be called from a single goroutine; Snapshot, State,
// Orders and Cycles are safe from any goroutine.
type Controller struct {
	cfg      Config
	broker   domain.Broker
	planner  *grid.Planner
	tracker  *tracker.Tracker
	notifier Notifier
	sink     events.Sink
	prices   domain.PriceCache
	metrics  *Metrics
	archiver domain.SessionArchiver
	settings map[string]string
	now      func() time.Time
	logger   *slog.Logger

	sessionID string

	mu          sync.RWMutex
	state       State
	startedAt   time.Time
	lastPoll    time.Time
	price       decimal.Decimal
	balance     decimal.Decimal
	quantity    decimal.Decimal
	levels      grid.Levels
	inventory   decimal.Decimal
	lots        *grid.LotQueue
	cycles      []domain.CompletedCycle
	totalProfit decimal.Decimal
}

// New creates a Controller in StateUninitialized.
func New(cfg Config, broker domain.Broker, notifier Notifier, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		cfg:         cfg,
		broker:      broker,
		planner:     grid.NewPlanner(cfg.Spread, cfg.Count, cfg.RiskPerTrade),
		tracker:     tracker.New(logger, cfg.CallTimeout),
		notifier:    notifier,
		sink:        events.Nop{},
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With(slog.String("component", "bot"), slog.String("pair", cfg.Pair)),
		sessionID:   uuid.NewString(),
		lots:        grid.NewLotQueue(),
		inventory:   decimal.Zero,
		totalProfit: decimal.Zero,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SessionID identifies this run in events and archives.
func (c *Controller) SessionID() string {
	return c.sessionID
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Initialize fetches the price and balance, computes the grid and places one
// buy order per buy level. A failed placement is reported and skipped. Any
// other failure is fatal and leaves the controller stopped.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("bot: initialize: controller is %s", st)
	}
	c.state = StateInitializing
	c.startedAt = c.now()
	c.mu.Unlock()

	if err := c.initialize(ctx); err != nil {
		c.setState(StateStopped)
		return err
	}

	c.setState(StateRunning)
	return nil
}

func (c *Controller) initialize(ctx context.Context) error {
	price, err := c.quote(ctx)
	if err != nil {
		return err
	}

	balance, err := call(ctx, c.cfg.CallTimeout, c.broker.GetBalance)
	if err != nil {
		return fmt.Errorf("bot: get balance: %w", err)
	}

	levels := c.planner.ComputeLevels(price)
	if len(levels.Buy) == 0 {
		return fmt.Errorf("bot: initialize: %w", domain.ErrNoLevels)
	}

	qty, err := c.planner.PositionSize(balance, price)
	if err != nil {
		return fmt.Errorf("bot: position size: %w", err)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("bot: position size is zero for balance %s at %s: %w",
			balance, price, domain.ErrInvalidOrder)
	}

	c.mu.Lock()
	c.balance = balance
	c.quantity = qty
	c.levels = levels
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "grid computed",
		slog.String("center", price.String()),
		slog.String("balance", balance.String()),
		slog.String("quantity", qty.String()),
		slog.Int("levels_per_side", c.planner.LevelsPerSide()),
	)

	for _, lv := range levels.Buy {
		level := lv.Index
		_, _ = c.placeOrder(ctx, domain.OrderSideBuy, qty, lv.Price, &level)
	}

	buys := c.tracker.Count(domain.OrderSideBuy)
	c.logger.InfoContext(ctx, "grid initialized", slog.Int("buy_orders", buys))
	c.say(ctx, notify.EventGridInitialized, gridInitializedMsg(price, balance, qty, buys, c.cfg.Pair))
	c.publish(ctx, events.Event{
		Kind:     events.KindGridInitialized,
		Price:    price,
		Quantity: qty,
		Message:  fmt.Sprintf("%d buy orders", buys),
	})
	c.metrics.state(decimal.Zero, c.tracker.Len())
	return nil
}

// Run polls until ctx is canceled, then sends the shutdown notification,
// archives the session and returns ctx's error. Cancellation is observed
// between iterations only: an iteration in flight runs to completion on a
// context that keeps ctx's values but not its cancellation.
func (c *Controller) Run(ctx context.Context) error {
	if c.State() != StateRunning {
		return fmt.Errorf("bot: run: %w", domain.ErrNotRunning)
	}

	c.logger.InfoContext(ctx, "starting main loop",
		slog.Duration("poll_interval", c.cfg.PollInterval),
	)

	timer := time.NewTimer(c.cfg.PollInterval)
	defer timer.Stop()

	work := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return c.stop(ctx)
		}

		if err := c.iterate(work); err != nil {
			kind := domain.KindOf(err)
			c.metrics.loopError(kind)
			c.logger.ErrorContext(work, "error in main loop",
				slog.String("kind", kind.String()),
				slog.String("error", err.Error()),
			)
			if !notified(err) {
				c.say(work, notify.EventError, botErrorMsg(err))
			}
		}

		timer.Reset(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return c.stop(ctx)
		case <-timer.C:
		}
	}
}

// iterate runs one poll. A panic inside the iteration is returned as an
// error so a single bad iteration never ends the loop.
func (c *Controller) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bot: iteration panic: %v", r)
		}
	}()
	return c.Poll(ctx)
}

// Poll reconciles every tracked order once and handles the resulting fills.
// The quote refresh runs after fills are handled; its failure is returned
// but does not undo any fill processing.
func (c *Controller) Poll(ctx context.Context) error {
	res := c.tracker.Reconcile(ctx, c.broker)

	for _, cl := range res.Closed {
		c.say(ctx, notify.EventOrderClosed, orderClosedMsg(cl.Order, cl.Status))
		c.publish(ctx, events.Event{
			Kind:     events.KindOrderClosed,
			OrderID:  cl.Order.ID,
			Side:     cl.Order.Side,
			Price:    cl.Order.Price,
			Quantity: cl.Order.Quantity,
			Status:   string(cl.Status),
		})
	}

	var errs []error
	for _, f := range res.Fills {
		if err := c.HandleFill(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	c.lastPoll = c.now()
	c.mu.Unlock()

	if _, err := c.quote(ctx); err != nil {
		errs = append(errs, err)
	}
	c.metrics.state(c.Inventory(), c.tracker.Len())
	return errors.Join(errs...)
}

// HandleFill applies one fill: inventory and lot bookkeeping, profit
// matching for sells, the counter-order, then the fill notification. A
// failed counter-order is reported, returned and not retried; the fill
// itself stays applied.
func (c *Controller) HandleFill(ctx context.Context, f domain.Fill) error {
	if !f.Side.Valid() || !f.Quantity.IsPositive() || !f.Price.IsPositive() {
		return fmt.Errorf("bot: handle fill %s: side %q qty %s price %s: %w",
			f.OrderID, f.Side, f.Quantity, f.Price, domain.ErrInvalidOrder)
	}

	c.logger.InfoContext(ctx, "order filled",
		slog.String("order_id", f.OrderID),
		slog.String("side", string(f.Side)),
		slog.String("price", f.Price.String()),
		slog.String("quantity", f.Quantity.String()),
	)
	c.metrics.filled(f.Side)

	var (
		match  grid.Match
		cycle  *domain.CompletedCycle
		cycles int
		total  decimal.Decimal
	)

	c.mu.Lock()
	if f.Side == domain.OrderSideBuy {
		c.inventory = c.inventory.Add(f.Quantity)
		c.lots.PushBack(domain.InventoryLot{
			Price:     f.Price,
			Quantity:  f.Quantity,
			Timestamp: f.FilledAt,
		})
	} else {
		c.inventory = c.inventory.Sub(f.Quantity)
		match = grid.MatchSell(c.lots, f.Price, f.Quantity)
		if match.Matched.IsPositive() {
			cycle = &domain.CompletedCycle{
				ID:        f.OrderID,
				Pair:      c.cfg.Pair,
				Profit:    match.Profit,
				SellPrice: f.Price,
				Quantity:  match.Matched,
				Timestamp: f.FilledAt,
			}
			c.cycles = append(c.cycles, *cycle)
			c.totalProfit = c.totalProfit.Add(match.Profit)
		}
	}
	inventory := c.inventory
	levels := c.levels
	cycles = len(c.cycles)
	total = c.totalProfit
	c.mu.Unlock()

	for _, leg := range match.Legs {
		c.logger.InfoContext(ctx, "matched lot",
			slog.String("buy_price", leg.BuyPrice.String()),
			slog.String("sell_price", f.Price.String()),
			slog.String("quantity", leg.Quantity.String()),
			slog.String("profit", leg.Profit.StringFixed(2)),
		)
	}

	if match.Oversold() {
		c.logger.WarnContext(ctx, "sell exceeds held lots",
			slog.String("order_id", f.OrderID),
			slog.String("unmatched", match.Unmatched.String()),
			slog.String("error", domain.ErrOversold.Error()),
		)
		c.metrics.loopError(domain.KindOf(domain.ErrOversold))
		c.say(ctx, notify.EventError, oversoldMsg(f.Quantity, match.Unmatched, c.cfg.Pair))
	}

	if cycle != nil {
		c.metrics.cycle(*cycle, total)
		c.publish(ctx, events.Event{
			Kind:     events.KindCycleCompleted,
			OrderID:  f.OrderID,
			Side:     f.Side,
			Price:    f.Price,
			Quantity: cycle.Quantity,
			Cycle:    cycle,
		})
		if cycle.Profit.IsPositive() {
			c.say(ctx, notify.EventCycleCompleted, profitMsg(*cycle, cycles, total))
		} else {
			c.logger.InfoContext(ctx, "cycle closed without profit",
				slog.String("profit", cycle.Profit.StringFixed(2)),
			)
		}
	}

	counterSide := f.Side.Opposite()
	counterPrice := c.planner.CounterPrice(f.Price, f.Side, levels)
	_, counterErr := c.placeOrder(ctx, counterSide, f.Quantity, counterPrice, nil)

	c.say(ctx, notify.EventOrderFilled, orderFilledMsg(f, inventory, c.cfg.Pair))
	c.publish(ctx, events.Event{
		Kind:     events.KindOrderFilled,
		OrderID:  f.OrderID,
		Side:     f.Side,
		Price:    f.Price,
		Quantity: f.Quantity,
		Status:   string(domain.OrderStatusFilled),
	})
	if counterErr != nil {
		return fmt.Errorf("bot: counter order for %s: %w", f.OrderID, counterErr)
	}
	return nil
}

// placeOrder submits a limit order and tracks it. Failures are logged,
// notified and returned; the caller never retries them.
func (c *Controller) placeOrder(ctx context.Context, side domain.OrderSide, qty, price decimal.Decimal, level *int) (domain.Order, error) {
	req := domain.OrderRequest{
		Pair:          c.cfg.Pair,
		Side:          side,
		Quantity:      qty,
		LimitPrice:    price,
		ClientOrderID: uuid.NewString(),
	}

	bo, err := call(ctx, c.cfg.CallTimeout, func(ctx context.Context) (domain.BrokerOrder, error) {
		return c.broker.PlaceOrder(ctx, req)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to place order",
			slog.String("side", string(side)),
			slog.String("price", price.String()),
			slog.String("quantity", qty.String()),
			slog.String("error", err.Error()),
		)
		return domain.Order{}, c.orderFailed(ctx, side, qty, price, fmt.Errorf("bot: place %s order: %w", side, err))
	}

	o := domain.Order{
		ID:            bo.ID,
		ClientOrderID: bo.ClientOrderID,
		Side:          side,
		Price:         price,
		Quantity:      qty,
		Level:         level,
		PlacedAt:      c.now(),
	}
	if err := c.tracker.Register(o); err != nil {
		// The order is live at the broker but its fill will not be seen.
		c.logger.ErrorContext(ctx, "failed to track order",
			slog.String("order_id", o.ID),
			slog.String("side", string(side)),
			slog.String("price", price.String()),
			slog.String("error", err.Error()),
		)
		return domain.Order{}, c.orderFailed(ctx, side, qty, price, fmt.Errorf("bot: track %s order %s: %w", side, o.ID, err))
	}

	attrs := []any{
		slog.String("order_id", o.ID),
		slog.String("side", string(side)),
		slog.String("price", price.String()),
		slog.String("quantity", qty.String()),
	}
	if level != nil {
		attrs = append(attrs, slog.Int("level", *level))
	}
	c.logger.InfoContext(ctx, "placed order", attrs...)
	c.metrics.orderPlaced(side)
	c.publish(ctx, events.Event{
		Kind:     events.KindOrderPlaced,
		OrderID:  o.ID,
		Side:     side,
		Price:    price,
		Quantity: qty,
		Status:   string(bo.Status),
	})
	return o, nil
}

// orderFailed counts, notifies and publishes a failed order and returns err
// marked as already notified.
func (c *Controller) orderFailed(ctx context.Context, side domain.OrderSide, qty, price decimal.Decimal, err error) error {
	c.metrics.orderFailed(side)
	c.say(ctx, notify.EventOrderFailed, orderFailedMsg(side, qty, price))
	c.publish(ctx, events.Event{
		Kind:     events.KindOrderFailed,
		Side:     side,
		Price:    price,
		Quantity: qty,
		Message:  err.Error(),
	})
	return &notifiedError{err: err}
}

// notifiedError is an error the user has already been told about.
type notifiedError struct {
	err error
}

func (e *notifiedError) Error() string { return e.err.Error() }

func (e *notifiedError) Unwrap() error { return e.err }

// notified reports whether every error joined in err has already been sent
// as a notification.
func notified(err error) bool {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			if !notified(e) {
				return false
			}
		}
		return true
	}
	var n *notifiedError
	return errors.As(err, &n)
}

// quote fetches the current price, records it and mirrors it to the price
// cache when one is configured.
func (c *Controller) quote(ctx context.Context) (decimal.Decimal, error) {
	price, err := call(ctx, c.cfg.CallTimeout, func(ctx context.Context) (decimal.Decimal, error) {
		return c.broker.GetQuote(ctx, c.cfg.Pair)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("bot: get quote: %w", err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("bot: get quote: %s: %w", price, domain.ErrInvalidPrice)
	}

	c.mu.Lock()
	c.price = price
	c.mu.Unlock()

	if c.prices != nil {
		if err := c.prices.SetPrice(ctx, c.cfg.Pair, price, c.now()); err != nil {
			c.logger.WarnContext(ctx, "price cache write failed", slog.String("error", err.Error()))
		}
	}
	return price, nil
}

// stop finishes the run: shutdown notification, stop event and session
// archive, all on a context detached from the canceled one.
func (c *Controller) stop(ctx context.Context) error {
	cause := ctx.Err()
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	c.logger.InfoContext(sctx, "received shutdown signal")
	c.say(sctx, notify.EventLifecycle, MsgShuttingDown)
	c.publish(sctx, events.Event{Kind: events.KindBotStopped, Message: cause.Error()})
	c.setState(StateStopped)

	if c.archiver != nil {
		key, err := c.archiver.Archive(sctx, c.Report())
		if err != nil {
			c.logger.ErrorContext(sctx, "session archive failed", slog.String("error", err.Error()))
		} else {
			c.logger.InfoContext(sctx, "session archived", slog.String("key", key))
		}
	}
	return cause
}

// say delivers a notification and reports whether it succeeded. Failures
// are logged and never propagated.
func (c *Controller) say(ctx context.Context, event, text string) bool {
	if c.notifier == nil {
		return false
	}
	if err := c.notifier.Notify(ctx, event, "", text); err != nil {
		c.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func (c *Controller) publish(ctx context.Context, e events.Event) {
	e.Pair = c.cfg.Pair
	if e.Time.IsZero() {
		e.Time = c.now()
	}
	if err := c.sink.Publish(ctx, e); err != nil {
		c.logger.WarnContext(ctx, "event publish failed",
			slog.String("kind", string(e.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

// Inventory returns the base asset held according to observed fills.
func (c *Controller) Inventory() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inventory
}

// Orders returns the tracked orders in placement order.
func (c *Controller) Orders() []domain.Order {
	return c.tracker.Snapshot()
}

// Cycles returns a copy of the completed cycles, oldest first.
func (c *Controller) Cycles() []domain.CompletedCycle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.CompletedCycle, len(c.cycles))
	copy(out, c.cycles)
	return out
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	s := Snapshot{
		SessionID:   c.sessionID,
		State:       c.state.String(),
		Pair:        c.cfg.Pair,
		StartedAt:   c.startedAt,
		LastPoll:    c.lastPoll,
		Price:       c.price,
		Balance:     c.balance,
		Quantity:    c.quantity,
		Levels:      c.levels,
		Inventory:   c.inventory,
		Lots:        c.lots.Lots(),
		Cycles:      len(c.cycles),
		TotalProfit: c.totalProfit,
	}
	c.mu.RUnlock()

	s.OpenBuys = c.tracker.Count(domain.OrderSideBuy)
	s.OpenSells = c.tracker.Count(domain.OrderSideSell)
	return s
}

// Report builds the session report archived at shutdown.
func (c *Controller) Report() domain.SessionReport {
	c.mu.RLock()
	r := domain.SessionReport{
		ID:          c.sessionID,
		Pair:        c.cfg.Pair,
		StartedAt:   c.startedAt,
		StoppedAt:   c.now(),
		Settings:    c.settings,
		Inventory:   c.inventory,
		TotalProfit: c.totalProfit,
		Lots:        c.lots.Lots(),
		Cycles:      append([]domain.CompletedCycle(nil), c.cycles...),
	}
	c.mu.RUnlock()

	r.OpenOrders = c.tracker.Snapshot()
	return r
}

// call runs fn under timeout when it is positive.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
