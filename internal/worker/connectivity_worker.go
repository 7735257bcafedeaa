package worker

import (
	"context"
	"sync/atomic"
	"taskflow/internal/logger"
	repo "taskflow/internal/repository"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// OnlineSetter получает результат проверки связности (менеджер синхронизации)
type OnlineSetter interface {
	SetOnline(ctx context.Context, online bool) error
}

// ConnectivityWorker периодически проверяет удалённое хранилище и
// сообщает о появлении и пропаже сети
type ConnectivityWorker struct {
	checker  repo.HealthChecker
	target   OnlineSetter
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration
	online   atomic.Bool
}

func NewConnectivityWorker(checker repo.HealthChecker, target OnlineSetter, clock clockwork.Clock, interval *time.Duration, timeout *time.Duration) *ConnectivityWorker {
	var intervalToSet time.Duration
	if interval == nil || *interval <= 0 {
		intervalToSet = 15 * time.Second
	} else {
		intervalToSet = *interval
	}

	var timeoutToSet time.Duration
	if timeout == nil || *timeout <= 0 {
		timeoutToSet = 3 * time.Second
	} else {
		timeoutToSet = *timeout
	}

	w := &ConnectivityWorker{
		checker:  checker,
		target:   target,
		clock:    clock,
		interval: intervalToSet,
		timeout:  timeoutToSet,
	}
	w.online.Store(true)
	return w
}

// Start блокируется до отмены ctx
func (w *ConnectivityWorker) Start(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	logger.Info("Worker: Проверка связности запущена", zap.Duration("interval", w.interval))
	w.Check(ctx)

	for {
		select {
		case <-ticker.Chan():
			w.Check(ctx)
		case <-ctx.Done():
			logger.Info("Worker: Проверка связности останавливается")
			return
		}
	}
}

// Check выполняет одну проверку и возвращает её результат
func (w *ConnectivityWorker) Check(ctx context.Context) bool {
	start := w.clock.Now()

	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.checker.HealthCheck(pctx)
	cancel()

	online := err == nil
	if prev := w.online.Swap(online); prev != online {
		if online {
			logger.Info("Worker: Связь восстановлена")
		} else {
			logger.Warn("Worker: Хранилище недоступно", zap.Error(err))
		}
	}

	if ctx.Err() != nil {
		return online
	}
	if err := w.target.SetOnline(ctx, online); err != nil {
		logger.Warn("Worker: Отправка очереди после восстановления не удалась", zap.Error(err))
	}

	logger.Debug("Worker: Завершение проверки связности",
		zap.Bool("online", online), zap.Duration("ms", w.clock.Since(start)))
	return online
}

func (w *ConnectivityWorker) Online() bool {
	return w.online.Load()
}
