package orders

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
)

// OrderSummary is the slice of an order the dashboard metrics need.
type OrderSummary struct {
	State     domain.State
	Total     decimal.Decimal
	CreatedAt time.Time
}

// effective orders generate real revenue: paid and not cancelled.
func (s OrderSummary) effective() bool {
	return s.State.PaymentStatus() == domain.PaymentStatusPaid && s.State.Status() != domain.StatusCancelled
}

type ProductCounts struct {
	Total    int `json:"total_products"`
	Active   int `json:"total_active_products"`
	Inactive int `json:"total_inactive_products"`
}

type Metrics struct {
	OrdersToday          int             `json:"orders_today"`
	OrdersPendingToday   int             `json:"orders_pending_today"`
	OrdersCompletedToday int             `json:"orders_completed_today"`
	OrdersCancelledToday int             `json:"orders_cancelled_today"`
	OrdersLateToday      int             `json:"orders_late_today"`
	RevenueToday         decimal.Decimal `json:"revenue_today"`
	RevenuePaidToday     decimal.Decimal `json:"revenue_paid_today"`
	RevenuePendingToday  decimal.Decimal `json:"revenue_pending_today"`
	RevenueCancelToday   decimal.Decimal `json:"revenue_cancelled_today"`

	ProductCounts

	EffectiveSales            int             `json:"total_effective_sales"`
	EffectiveRevenue          decimal.Decimal `json:"total_effective_revenue"`
	EffectiveSalesLast7Days   int             `json:"effective_sales_last_7_days"`
	EffectiveRevenueLast7Days decimal.Decimal `json:"effective_revenue_last_7_days"`
	EffectiveSalesLast30Days  int             `json:"effective_sales_last_30_days"`
	EffectiveRevenueLast30    decimal.Decimal `json:"effective_revenue_last_30_days"`
	LateOrders                int             `json:"late_orders_count"`

	RevenueChart7Days  []decimal.Decimal `json:"effective_revenue_chart_7_days"`
	RevenueChart30Days []decimal.Decimal `json:"effective_revenue_chart_30_days"`
	ChartLabels7Days   []string          `json:"chart_labels_7_days"`
	ChartLabels30Days  []string          `json:"chart_labels_30_days"`
}

// ComputeMetrics derives the dashboard figures. recent must hold every placed
// order created in the last 30 days; effective totals all-time come from
// allTimeSales and allTimeRevenue. Day boundaries use loc.
func ComputeMetrics(recent []OrderSummary, allTimeSales int, allTimeRevenue decimal.Decimal, lateOrders int, products ProductCounts, now time.Time, loc *time.Location) Metrics {
	now = now.In(loc)
	today := startOfDay(now)

	m := Metrics{
		ProductCounts:      products,
		EffectiveSales:     allTimeSales,
		EffectiveRevenue:   allTimeRevenue,
		LateOrders:         lateOrders,
		RevenueChart7Days:  zeroSeries(7),
		RevenueChart30Days: zeroSeries(30),
		ChartLabels7Days:   dateLabels(today, 7),
		ChartLabels30Days:  dateLabels(today, 30),
	}

	sevenDaysAgo := now.AddDate(0, 0, -7)
	thirtyDaysAgo := now.AddDate(0, 0, -30)

	for _, o := range recent {
		created := o.CreatedAt.In(loc)

		if !created.Before(today) {
			m.OrdersToday++
			switch o.State.Status() {
			case domain.StatusPending:
				m.OrdersPendingToday++
			case domain.StatusCompleted:
				m.OrdersCompletedToday++
			case domain.StatusCancelled:
				m.OrdersCancelledToday++
			}
			if o.State.Status() == domain.StatusPending && now.Sub(created) > domain.LateAfter {
				m.OrdersLateToday++
			}

			switch o.State.PaymentStatus() {
			case domain.PaymentStatusPaid:
				m.RevenuePaidToday = m.RevenuePaidToday.Add(o.Total)
			case domain.PaymentStatusPending:
				m.RevenuePendingToday = m.RevenuePendingToday.Add(o.Total)
			case domain.PaymentStatusCancelled:
				m.RevenueCancelToday = m.RevenueCancelToday.Add(o.Total)
			}
		}

		if !o.effective() {
			continue
		}
		if created.After(sevenDaysAgo) {
			m.EffectiveSalesLast7Days++
			m.EffectiveRevenueLast7Days = m.EffectiveRevenueLast7Days.Add(o.Total)
		}
		if created.After(thirtyDaysAgo) {
			m.EffectiveSalesLast30Days++
			m.EffectiveRevenueLast30 = m.EffectiveRevenueLast30.Add(o.Total)
		}

		daysAgo := int(math.Round(today.Sub(startOfDay(created)).Hours() / 24))
		if daysAgo >= 0 && daysAgo < 7 {
			m.RevenueChart7Days[6-daysAgo] = m.RevenueChart7Days[6-daysAgo].Add(o.Total)
		}
		if daysAgo >= 0 && daysAgo < 30 {
			m.RevenueChart30Days[29-daysAgo] = m.RevenueChart30Days[29-daysAgo].Add(o.Total)
		}
	}

	m.RevenueToday = m.RevenuePaidToday.Add(m.RevenuePendingToday).Add(m.RevenueCancelToday)
	return m
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

func zeroSeries(days int) []decimal.Decimal {
	series := make([]decimal.Decimal, days)
	for i := range series {
		series[i] = decimal.Zero
	}
	return series
}

// dateLabels returns dd/mm labels ending today, oldest first.
func dateLabels(today time.Time, days int) []string {
	labels := make([]string, days)
	for i := range labels {
		labels[i] = today.AddDate(0, 0, -(days - 1 - i)).Format("02/01")
	}
	return labels
}

// RecentSummaries returns placed orders created at or after since, with totals
// at current product prices.
func (r *OrderRepository) RecentSummaries(ctx context.Context, since time.Time) ([]OrderSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.status, o.payment_status, o.created_at,
			COALESCE(SUM(oi.quantity * p.price), 0)
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE o.stage = 'placed' AND o.created_at >= $1
		GROUP BY o.id
	`, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var summaries []OrderSummary
	for rows.Next() {
		var (
			s             OrderSummary
			status        string
			paymentStatus string
		)
		if err := rows.Scan(&status, &paymentStatus, &s.CreatedAt, &s.Total); err != nil {
			return nil, err
		}
		s.State, err = domain.NewState(domain.Status(status), domain.PaymentStatus(paymentStatus))
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// EffectiveTotals counts paid, non-cancelled placed orders and their revenue.
func (r *OrderRepository) EffectiveTotals(ctx context.Context) (int, decimal.Decimal, error) {
	var (
		count   int
		revenue decimal.Decimal
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT o.id), COALESCE(SUM(oi.quantity * p.price), 0)
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE o.stage = 'placed' AND o.payment_status = 'paid' AND o.status <> 'cancelled'
	`).Scan(&count, &revenue)
	if err != nil {
		return 0, decimal.Zero, err
	}
	return count, revenue, nil
}

// LateCount counts pending placed orders older than domain.LateAfter.
func (r *OrderRepository) LateCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE stage = 'placed' AND status = 'pending' AND created_at < $1
	`, r.now().Add(-domain.LateAfter)).Scan(&n)
	return n, err
}

func (r *OrderRepository) ProductCounts(ctx context.Context) (ProductCounts, error) {
	var c ProductCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active), COUNT(*) FILTER (WHERE NOT is_active)
		FROM products
	`).Scan(&c.Total, &c.Active, &c.Inactive)
	return c, err
}
