package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"procurement-backend/internal/access"
	"procurement-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stats are the four counters on the dashboard, scoped to the actor.
type Stats struct {
	TotalPOs        int64 `json:"total_pos"`
	PendingPOs      int64 `json:"pending_pos"`
	TotalSupplies   int64 `json:"total_supplies"`
	PendingPayments int64 `json:"pending_payments"`
}

type ChartPoint struct {
	Label     string          `json:"label"` // bucket start date
	Supplied  decimal.Decimal `json:"supplied"`
	Confirmed decimal.Decimal `json:"confirmed"`
	Pending   decimal.Decimal `json:"pending"`
}

type ChartTotals struct {
	Supplied  decimal.Decimal `json:"supplied"`
	Confirmed decimal.Decimal `json:"confirmed"`
	Pending   decimal.Decimal `json:"pending"`
}

type ChartResponse struct {
	Period      string       `json:"period"` // daily | weekly | monthly
	From        string       `json:"from"`
	To          string       `json:"to"`
	Points      []ChartPoint `json:"points"`
	GrandTotals ChartTotals  `json:"grand_totals"`
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) Stats(ctx context.Context, actor access.Actor) (Stats, error) {
	var out Stats
	db := s.db.WithContext(ctx)
	ownPOs := access.Scope(actor, "purchase_orders.user_id")
	ownSupplies := access.Scope(actor, "supplies.user_id")

	if err := db.Model(&models.PurchaseOrder{}).Scopes(ownPOs).Count(&out.TotalPOs).Error; err != nil {
		return Stats{}, fmt.Errorf("count purchase orders: %w", err)
	}
	if err := db.Model(&models.PurchaseOrder{}).Scopes(ownPOs).
		Where("purchase_orders.status = ?", models.OrderPending).
		Count(&out.PendingPOs).Error; err != nil {
		return Stats{}, fmt.Errorf("count pending purchase orders: %w", err)
	}
	if err := db.Model(&models.Supply{}).Scopes(ownSupplies).Count(&out.TotalSupplies).Error; err != nil {
		return Stats{}, fmt.Errorf("count supplies: %w", err)
	}
	if err := db.Model(&models.Payment{}).
		Joins("JOIN supplies ON supplies.id = payments.supply_id").
		Scopes(ownSupplies).
		Where("payments.status = ?", models.PaymentPending).
		Count(&out.PendingPayments).Error; err != nil {
		return Stats{}, fmt.Errorf("count pending payments: %w", err)
	}
	return out, nil
}

// Chart buckets supplied value and payments by supply date. count is the
// number of buckets ending with the current one.
func (s *Service) Chart(ctx context.Context, actor access.Actor, period string, count int) (ChartResponse, error) {
	if count <= 0 {
		switch period {
		case "weekly":
			count = 8
		case "monthly":
			count = 12
		default:
			count = 7
		}
	}

	now := s.now()
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var start, end time.Time
	var bucketOf func(time.Time) time.Time
	switch period {
	case "weekly":
		// weeks start on Monday
		bucketOf = func(t time.Time) time.Time {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
			offset := (int(d.Weekday()) + 6) % 7
			return d.AddDate(0, 0, -offset)
		}
		start = bucketOf(today).AddDate(0, 0, -7*(count-1))
		end = bucketOf(today).AddDate(0, 0, 7)
	case "monthly":
		bucketOf = func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
		}
		start = bucketOf(today).AddDate(0, -(count - 1), 0)
		end = bucketOf(today).AddDate(0, 1, 0)
	default:
		period = "daily"
		bucketOf = func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		}
		start = today.AddDate(0, 0, -(count - 1))
		end = today.AddDate(0, 0, 1)
	}

	var supplies []models.Supply
	err := s.db.WithContext(ctx).
		Scopes(access.Scope(actor, "supplies.user_id")).
		Where("supplies.supply_date >= ? AND supplies.supply_date < ?", start, end).
		Preload("Items.POItem").
		Preload("Payments").
		Find(&supplies).Error
	if err != nil {
		return ChartResponse{}, fmt.Errorf("load supplies for chart: %w", err)
	}

	buckets := make(map[time.Time]*ChartPoint)
	for i := range supplies {
		sup := &supplies[i]
		key := bucketOf(sup.SupplyDate.In(loc))
		p, ok := buckets[key]
		if !ok {
			p = &ChartPoint{Label: key.Format("2006-01-02")}
			buckets[key] = p
		}
		p.Supplied = p.Supplied.Add(sup.TotalAmount())
		for _, pay := range sup.Payments {
			switch pay.Status {
			case models.PaymentConfirmed:
				p.Confirmed = p.Confirmed.Add(pay.Amount)
			case models.PaymentPending:
				p.Pending = p.Pending.Add(pay.Amount)
			}
		}
	}

	keys := make([]time.Time, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	resp := ChartResponse{
		Period: period,
		From:   start.Format("2006-01-02"),
		To:     end.AddDate(0, 0, -1).Format("2006-01-02"),
		Points: make([]ChartPoint, 0, len(keys)),
	}
	for _, k := range keys {
		p := buckets[k]
		resp.Points = append(resp.Points, *p)
		resp.GrandTotals.Supplied = resp.GrandTotals.Supplied.Add(p.Supplied)
		resp.GrandTotals.Confirmed = resp.GrandTotals.Confirmed.Add(p.Confirmed)
		resp.GrandTotals.Pending = resp.GrandTotals.Pending.Add(p.Pending)
	}
	return resp, nil
}
