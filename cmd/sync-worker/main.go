// Package main 历史同步消费者入口：收到任务事件后把任务目录同步回历史记录
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"redink-api/internal/application/history"
	"redink-api/internal/config"
	"redink-api/internal/infrastructure/messaging"
	"redink-api/internal/wire"
	apperrors "redink-api/pkg/errors"
	"redink-api/pkg/logger"
	"redink-api/pkg/tracer"
)

const (
	// dlqAlertThreshold 死信队列告警阈值
	dlqAlertThreshold = 100
	shutdownTimeout   = 10 * time.Second
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "sync-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	sync := syncHandler(worker.History)
	worker.Consumer.RegisterHandler(messaging.MessageTypeTaskFinished, sync)
	worker.Consumer.RegisterHandler(messaging.MessageTypeTaskEdited, sync)

	if err := worker.Consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go worker.Consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	log := logger.FromContext(ctx)
	log.Info("sync-worker started", "stream", string(messaging.StreamTaskEvents))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("sync-worker shutting down")
	worker.Consumer.Stop()
	// 等待正在处理的消息结束，最多等一个读取周期
	select {
	case <-worker.Consumer.Done():
	case <-time.After(shutdownTimeout):
		log.Warn("consumer did not stop in time")
	}
	cancel()
}

// syncHandler 同步失败返回错误，由消费者重试并最终进入死信队列
func syncHandler(svc *history.Service) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		evt, err := msg.TaskEvent()
		if err != nil {
			return err
		}
		if evt.TaskID == "" {
			logger.Warn(ctx, "task event without task_id dropped", "message_id", msg.ID)
			return nil
		}
		ctx = logger.WithContext(ctx, logger.TaskIDKey, evt.TaskID)
		res, err := svc.ScanTask(ctx, evt.TaskID)
		if apperrors.IsNotFound(err) {
			// 任务目录已删除，重试没有意义
			logger.Warn(ctx, "task directory gone, event dropped", "type", msg.Type)
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info(ctx, "task synced", "type", msg.Type, "status", res.Status)
		return nil
	}
}
