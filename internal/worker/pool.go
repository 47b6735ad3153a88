package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avc/storefront-orders/internal/domain"
	"github.com/avc/storefront-orders/internal/service"
	"go.uber.org/zap"
)

// OrderReconciler сверяет оплату заказа без проверки владельца
type OrderReconciler interface {
	ReconcileOrder(ctx context.Context, orderID int64) (*service.ReconcileResult, error)
}

// OfferSyncer приводит статусы акций в соответствие с периодом действия
type OfferSyncer interface {
	SyncOfferStatuses(ctx context.Context) ([]service.OfferTransition, error)
}

// Config содержит настройки пула
type Config struct {
	Workers           int
	QueueSize         int
	ScanInterval      time.Duration // Интервал поиска неоплаченных онлайн-заказов
	ScanLimit         int
	MinPendingAge     time.Duration // Заказы моложе этого возраста не трогаем, покупатель еще на странице оплаты
	OfferSyncInterval time.Duration
}

// Pool представляет пул воркеров для фоновой сверки платежей
type Pool struct {
	cfg        Config
	queue      chan int64
	orderRepo  domain.OrderRepository
	reconciler OrderReconciler
	offers     OfferSyncer
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.Mutex
	queued map[int64]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool создает новый worker pool. offers может быть nil, тогда планировщик акций не запускается.
func NewPool(
	cfg Config,
	orderRepo domain.OrderRepository,
	reconciler OrderReconciler,
	offers OfferSyncer,
	logger *zap.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Minute
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = cfg.QueueSize
	}
	if cfg.OfferSyncInterval <= 0 {
		cfg.OfferSyncInterval = time.Minute
	}

	return &Pool{
		cfg:        cfg,
		queue:      make(chan int64, cfg.QueueSize),
		orderRepo:  orderRepo,
		reconciler: reconciler,
		offers:     offers,
		logger:     logger,
		now:        time.Now,
		queued:     make(map[int64]struct{}),
	}
}

// Start запускает воркеры, сканер заказов и планировщик акций
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Add(1)
	go p.scanner(ctx)

	if p.offers != nil {
		p.wg.Add(1)
		go p.offerScheduler(ctx)
	}
}

// Stop останавливает пул и ждет завершения всех горутин.
// Необработанные заказы снимаются с очереди, сканер найдет их после перезапуска.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	for {
		select {
		case orderID := <-p.queue:
			p.release(orderID)
		default:
			return
		}
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Info("worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping", zap.Int("worker_id", id))
			return
		case orderID := <-p.queue:
			p.processOrder(ctx, orderID)
			p.release(orderID)
		}
	}
}

func (p *Pool) scanner(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("scanner stopping")
			return
		case <-ticker.C:
			p.scanPendingOrders(ctx)
		}
	}
}

// scanPendingOrders ставит в очередь неоплаченные онлайн-заказы старше MinPendingAge
func (p *Pool) scanPendingOrders(ctx context.Context) {
	createdBefore := p.now().Add(-p.cfg.MinPendingAge)
	orders, err := p.orderRepo.GetPendingOnlineOrders(ctx, createdBefore, p.cfg.ScanLimit)
	if err != nil {
		p.logger.Error("failed to get pending orders", zap.Error(err))
		return
	}

	for _, order := range orders {
		if !p.reserve(order.ID) {
			continue
		}

		select {
		case p.queue <- order.ID:
		case <-ctx.Done():
			p.release(order.ID)
			return
		default:
			// Очередь заполнена, заказ попадет в следующий проход
			p.release(order.ID)
			p.logger.Warn("queue is full, skipping order", zap.Int64("order_id", order.ID))
		}
	}
}

// reserve отмечает заказ как стоящий в очереди. Заказ не ставится повторно, пока его не обработают.
func (p *Pool) reserve(orderID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.queued[orderID]; ok {
		return false
	}
	p.queued[orderID] = struct{}{}
	return true
}

func (p *Pool) release(orderID int64) {
	p.mu.Lock()
	delete(p.queued, orderID)
	p.mu.Unlock()
}

// processOrder сверяет один заказ
func (p *Pool) processOrder(ctx context.Context, orderID int64) {
	p.logger.Debug("reconciling order", zap.Int64("order_id", orderID))

	result, err := p.reconciler.ReconcileOrder(ctx, orderID)
	if err != nil {
		// Обработка rate limiting
		var rateLimitErr *domain.RateLimitError
		if errors.As(err, &rateLimitErr) {
			p.logger.Warn("rate limit exceeded",
				zap.Int64("order_id", orderID),
				zap.Duration("retry_after", rateLimitErr.RetryAfter),
			)
			p.pause(ctx, rateLimitErr.RetryAfter)
			return
		}

		if errors.Is(err, domain.ErrAlreadyReconciled) {
			p.logger.Debug("order already reconciled", zap.Int64("order_id", orderID))
			return
		}

		if domain.IsRetriable(err) {
			p.logger.Warn("order reconciliation will be retried",
				zap.Int64("order_id", orderID),
				zap.Error(err),
			)
			return
		}

		kind := domain.KindOf(err)
		p.logger.Error("failed to reconcile order",
			zap.Int64("order_id", orderID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)

		// Внутренние ошибки повторяются в следующем проходе
		if kind == "" {
			return
		}

		// Повтор даст тот же результат: убираем заказ из сканирования, чтобы он не занимал место в выборке
		if err := p.orderRepo.FlagForAttention(ctx, orderID, string(kind)); err != nil {
			p.logger.Error("failed to flag order for attention",
				zap.Int64("order_id", orderID),
				zap.Error(err),
			)
			return
		}
		p.logger.Warn("order needs attention", zap.Int64("order_id", orderID), zap.String("reason", string(kind)))
		return
	}

	if result.Pending {
		p.logger.Debug("payment still pending", zap.Int64("order_id", orderID))
		return
	}

	if result.Success {
		p.logger.Info("order reconciled by sweep",
			zap.Int64("order_id", orderID),
			zap.String("tracking_id", result.TrackingID.String()),
		)
		return
	}

	p.logger.Info("payment session closed without payment",
		zap.Int64("order_id", orderID),
		zap.String("payment_status", string(result.PaymentStatus)),
	)
}

// pause останавливает воркер на время, запрошенное провайдером, или до отмены контекста
func (p *Pool) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (p *Pool) offerScheduler(ctx context.Context) {
	defer p.wg.Done()

	// Первый проход сразу при старте, чтобы не ждать целый интервал
	p.syncOffers(ctx)

	ticker := time.NewTicker(p.cfg.OfferSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("offer scheduler stopping")
			return
		case <-ticker.C:
			p.syncOffers(ctx)
		}
	}
}

func (p *Pool) syncOffers(ctx context.Context) {
	transitions, err := p.offers.SyncOfferStatuses(ctx)
	for _, tr := range transitions {
		p.logger.Info("offer status changed",
			zap.Int64("offer_id", tr.OfferID),
			zap.Bool("active", tr.Activate),
		)
	}
	if err != nil {
		p.logger.Error("failed to sync offer statuses", zap.Error(err))
	}
}
