//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"redink-api/internal/application/content"
	"redink-api/internal/config"
	"redink-api/internal/interfaces/http/router"
	"redink-api/internal/workflow/prompt"
)

// InitializeApp 初始化 API 服务
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		DataSet,
		ServiceSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化历史同步消费者，Redis 为必需依赖
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		ProvideDatabase,
		ProvideRedis,
		ProvideStores,
		ProvideHistoryRepository,
		ProvideHistoryService,
		ProvideConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// DataSet 存储与缓存
var DataSet = wire.NewSet(
	ProvideDatabase,
	ProvideRedisOptional,
	ProvideStores,
	ProvideHistoryRepository,
	ProvideTaskStore,
	ProvidePublisher,
	ProvideRateLimiter,
)

// ServiceSet 应用服务
var ServiceSet = wire.NewSet(
	ProvideTextClient,
	ProvideImageProvider,
	ProvideLinkParser,
	prompt.NewRegistry,
	ProvideBrandService,
	ProvideGenerationService,
	ProvideHistoryService,
	ProvideOutlineService,
	content.NewService,
)

// RouterSet 处理器与路由
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideHandlers,
	router.New,
)
