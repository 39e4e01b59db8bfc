package dashboard

import (
	"context"
	"testing"
	"time"

	"procurement-backend/internal/models"
	"procurement-backend/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsAreScoped(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()
	_, admin := testutil.CreateUser(t, db, "admin", models.RoleAdmin)
	_, a := testutil.CreateUser(t, db, "alice", models.RoleUser)
	_, b := testutil.CreateUser(t, db, "bob", models.RoleUser)

	poA := testutil.CreateOrder(t, db, a, "PO-A", testutil.ItemSpec{Name: "X", Price: "5.00", Quantity: 10})
	testutil.CreateOrder(t, db, a, "PO-A2", testutil.ItemSpec{Name: "X", Price: "5.00", Quantity: 10})
	testutil.CreateOrder(t, db, b, "PO-B", testutil.ItemSpec{Name: "Y", Price: "5.00", Quantity: 10})
	require.NoError(t, db.Model(&models.PurchaseOrder{ID: poA.ID}).UpdateColumn("status", models.OrderPartiallySupplied).Error)
	sup := testutil.CreateSupply(t, db, a, poA, 2)
	require.NoError(t, db.Create(&models.Payment{SupplyID: sup.ID, ChequeNo: "1", Amount: decimal.NewFromInt(10), Status: models.PaymentPending}).Error)

	got, err := svc.Stats(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalPOs: 2, PendingPOs: 1, TotalSupplies: 1, PendingPayments: 1}, got)

	got, err = svc.Stats(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalPOs: 1, PendingPOs: 1}, got)

	got, err = svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalPOs: 3, PendingPOs: 2, TotalSupplies: 1, PendingPayments: 1}, got)
}

func TestDailyChart(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	svc.now = func() time.Time { return time.Date(2024, 3, 7, 15, 0, 0, 0, time.UTC) }
	_, owner := testutil.CreateUser(t, db, "owner", models.RoleUser)

	po := testutil.CreateOrder(t, db, owner, "PO-1", testutil.ItemSpec{Name: "X", Price: "2.50", Quantity: 100})
	sup := testutil.CreateSupply(t, db, owner, po, 4) // supplied on 2024-03-05
	require.NoError(t, db.Create(&models.Payment{SupplyID: sup.ID, ChequeNo: "1", Amount: decimal.NewFromInt(6), Status: models.PaymentConfirmed}).Error)
	require.NoError(t, db.Create(&models.Payment{SupplyID: sup.ID, ChequeNo: "2", Amount: decimal.NewFromInt(4), Status: models.PaymentPending}).Error)

	chart, err := svc.Chart(context.Background(), owner, "daily", 3)
	require.NoError(t, err)
	assert.Equal(t, "daily", chart.Period)
	assert.Equal(t, "2024-03-05", chart.From)
	assert.Equal(t, "2024-03-07", chart.To)
	require.Len(t, chart.Points, 1)
	assert.Equal(t, "2024-03-05", chart.Points[0].Label)
	assert.Equal(t, "10.00", chart.GrandTotals.Supplied.StringFixed(2))
	assert.Equal(t, "6.00", chart.GrandTotals.Confirmed.StringFixed(2))
	assert.Equal(t, "4.00", chart.GrandTotals.Pending.StringFixed(2))

	chart, err = svc.Chart(context.Background(), owner, "daily", 2)
	require.NoError(t, err)
	assert.Empty(t, chart.Points)

	monthly, err := svc.Chart(context.Background(), owner, "monthly", 0)
	require.NoError(t, err)
	assert.Equal(t, "2023-04-01", monthly.From)
	require.Len(t, monthly.Points, 1)
	assert.Equal(t, "2024-03-01", monthly.Points[0].Label)
}
