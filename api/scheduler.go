/*
scheduler.go - Periodic overdue installment check

PURPOSE:
  Periodically scans every sale and reports installments that are past
  due. Overdue is derived at read time and never persisted, so the
  scheduler only logs and keeps the last report for the API.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Cancelled sales and paid installments never count as overdue
  - Day comparison happens in the controller's business time zone

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewOverdueScheduler(controller, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ListOverdue endpoint (on-demand report)
  - sales/calendar.go: IsOverdue rule
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/warp/sales-engine/sales"
)

// OverdueScheduler logs sales with overdue installments on an interval.
type OverdueScheduler struct {
	Sales         *sales.Controller
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	reportMu sync.RWMutex
	last     *OverdueReportDTO

	overdueSales metric.Int64Gauge
}

// NewOverdueScheduler creates a new scheduler.
func NewOverdueScheduler(ctl *sales.Controller, logger *zap.Logger) *OverdueScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	gauge, _ := otel.Meter(instrumentationName).Int64Gauge("sales.overdue",
		metric.WithDescription("Sales with at least one overdue installment at the last check"))
	return &OverdueScheduler{
		Sales:         ctl,
		Logger:        logger.Named("scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
		overdueSales:  gauge,
	}
}

// Start begins the scheduler.
func (sc *OverdueScheduler) Start() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if !sc.Enabled || sc.CheckInterval <= 0 {
		sc.Logger.Info("disabled, not starting")
		return
	}
	if sc.ticker != nil {
		return
	}

	sc.stop = make(chan struct{})
	sc.ticker = time.NewTicker(sc.CheckInterval)
	sc.wg.Add(1)

	go sc.run()

	sc.Logger.Info("started", zap.Duration("interval", sc.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight check.
func (sc *OverdueScheduler) Stop() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.ticker != nil {
		sc.ticker.Stop()
		close(sc.stop)
		sc.wg.Wait()
		sc.ticker = nil
		sc.Logger.Info("stopped")
	}
}

func (sc *OverdueScheduler) run() {
	defer sc.wg.Done()

	// Run immediately on start
	sc.checkAndReport()

	for {
		select {
		case <-sc.ticker.C:
			sc.checkAndReport()
		case <-sc.stop:
			return
		}
	}
}

func (sc *OverdueScheduler) checkAndReport() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report, err := OverdueReport(ctx, sc.Sales)
	if err != nil {
		sc.Logger.Error("overdue check failed", zap.Error(err))
		return
	}

	sc.reportMu.Lock()
	sc.last = report
	sc.reportMu.Unlock()
	sc.overdueSales.Record(ctx, int64(report.Count))

	if report.Count == 0 {
		sc.Logger.Debug("no overdue installments")
		return
	}
	for _, s := range report.Sales {
		sc.Logger.Warn("overdue installments",
			zap.String("sale_id", s.ID),
			zap.String("client", s.Client.Name),
			zap.Ints("installments", s.OverdueInstallments),
		)
	}
	sc.Logger.Info("overdue check completed", zap.Int("sales", report.Count))
}

// RunNow triggers an immediate check (for testing/admin).
func (sc *OverdueScheduler) RunNow() {
	sc.checkAndReport()
}

// LastReport returns the most recent report, or nil before the first check.
func (sc *OverdueScheduler) LastReport() *OverdueReportDTO {
	sc.reportMu.RLock()
	defer sc.reportMu.RUnlock()
	return sc.last
}

// OverdueReport lists the sales that have at least one overdue installment.
func OverdueReport(ctx context.Context, ctl *sales.Controller) (*OverdueReportDTO, error) {
	list, err := ctl.ListSales(ctx)
	if err != nil {
		return nil, err
	}

	now := ctl.Now()
	report := &OverdueReportDTO{CheckedAt: now, Sales: []SaleDTO{}}
	for _, s := range list {
		dto := toSaleDTO(s, now, ctl.Location())
		if dto.HasOverdue {
			report.Sales = append(report.Sales, dto)
		}
	}
	report.Count = len(report.Sales)
	return report, nil
}
