package wire

import (
	"context"
	"fmt"
	"os"

	"redink-api/internal/application/brand"
	"redink-api/internal/application/content"
	"redink-api/internal/application/generation"
	"redink-api/internal/application/history"
	"redink-api/internal/application/outline"
	"redink-api/internal/config"
	"redink-api/internal/domain/repository"
	"redink-api/internal/infrastructure/linkparser"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/infrastructure/messaging"
	"redink-api/internal/infrastructure/persistence/memory"
	"redink-api/internal/infrastructure/persistence/redis"
	"redink-api/internal/infrastructure/persistence/sqlstore"
	"redink-api/internal/infrastructure/storage"
	"redink-api/internal/interfaces/http/handler"
	"redink-api/internal/interfaces/http/middleware"
	"redink-api/internal/interfaces/http/router"
	"redink-api/internal/workflow/prompt"
	"redink-api/pkg/logger"
)

// Stores 图片与品牌资源的本地目录
type Stores struct {
	Images *storage.LocalStore
	Brands *storage.LocalStore
}

// App API 服务依赖容器
type App struct {
	Config  *config.Config
	Router  *router.Router
	History *history.Service
}

// Worker 同步消费者依赖容器
type Worker struct {
	Config   *config.Config
	Redis    *redis.Client
	History  *history.Service
	Consumer *messaging.Consumer
}

// ProvideDatabase 提供数据库客户端，auto_migrate 时建表
func ProvideDatabase(cfg *config.Config) (*sqlstore.Client, func(), error) {
	client, err := sqlstore.NewClient(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisOptional 提供 Redis 客户端；未启用或不可达时返回 nil，相关功能降级为进程内实现
func ProvideRedisOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, falling back to in-process stores", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedis 提供 Redis 客户端，连接失败时返回错误
func ProvideRedis(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideStores 提供本地存储目录
func ProvideStores(cfg *config.Config) (*Stores, error) {
	images, err := storage.NewLocalStore(cfg.Storage.Local.BaseDir)
	if err != nil {
		return nil, err
	}
	brands, err := storage.NewLocalStore(cfg.Storage.Local.BrandDir)
	if err != nil {
		return nil, err
	}
	return &Stores{Images: images, Brands: brands}, nil
}

// ProvideHistoryRepository 有 Redis 时在数据库仓储外包一层读缓存
func ProvideHistoryRepository(db *sqlstore.Client, rc *redis.Client, cfg *config.Config) repository.HistoryRepository {
	repo := sqlstore.NewHistoryRepository(db)
	if rc == nil {
		return repo
	}
	return redis.NewCachedHistoryRepository(repo, redis.NewCache(rc), cfg.Cache.RecordTTL)
}

// ProvideTaskStore 生成任务状态存储
func ProvideTaskStore(rc *redis.Client, cfg *config.Config) repository.TaskStore {
	if rc == nil {
		return memory.NewTaskStore(cfg.Cache.TaskTTL)
	}
	return redis.NewTaskStore(rc, cfg.Cache.TaskTTL)
}

// ProvidePublisher 任务事件发布者，未启用 Redis Stream 时不发布
func ProvidePublisher(rc *redis.Client, cfg *config.Config) generation.Publisher {
	if rc == nil || !cfg.Messaging.RedisStream.Enabled {
		return nil
	}
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(rc.Redis(), int64(maxLen))
}

// ProvideRateLimiter 没有 Redis 时不限流
func ProvideRateLimiter(rc *redis.Client) middleware.RateLimiter {
	if rc == nil {
		return nil
	}
	return redis.NewRateLimiter(rc)
}

// ProvideTextClient 文本模型客户端
func ProvideTextClient(cfg *config.Config) *llm.TextClient {
	return llm.NewTextClient(llm.NewEinoFactory(&cfg.LLM), "")
}

// ProvideImageProvider 图片生成后端
func ProvideImageProvider(cfg *config.Config) (llm.ImageProvider, error) {
	return llm.NewImageProvider(&cfg.Image)
}

// ProvideBrandService 品牌风格库
func ProvideBrandService(db *sqlstore.Client, stores *Stores, text *llm.TextClient, prompts *prompt.Registry, links *linkparser.Parser) *brand.Service {
	return brand.NewService(brand.Deps{
		Repo:    sqlstore.NewBrandRepository(db),
		Store:   stores.Brands,
		Text:    text,
		Prompts: prompts,
		Fetcher: links,
	})
}

// ProvideGenerationService 图片生成服务，品牌服务同时提供风格与 logo
func ProvideGenerationService(cfg *config.Config, provider llm.ImageProvider, stores *Stores, tasks repository.TaskStore, prompts *prompt.Registry, brands *brand.Service, publisher generation.Publisher) *generation.Service {
	return generation.NewService(generation.Deps{
		Provider:  provider,
		Store:     stores.Images,
		Tasks:     tasks,
		Prompts:   prompts,
		Styles:    brands,
		Logos:     brands,
		Publisher: publisher,
	}, generation.Options{
		MaxConcurrency:   cfg.Image.MaxConcurrency,
		ThumbnailMaxEdge: cfg.Image.ThumbnailMaxEdge,
		ShortPrompt:      cfg.Features.ShortPrompt,
		Size:             cfg.Image.DefaultSize,
		Quality:          cfg.Image.Quality,
	})
}

// ProvideHistoryService 历史记录服务
func ProvideHistoryService(repo repository.HistoryRepository, stores *Stores) *history.Service {
	return history.NewService(repo, stores.Images)
}

// ProvideOutlineService 大纲服务，链接主题走改写模式
func ProvideOutlineService(text *llm.TextClient, prompts *prompt.Registry, links *linkparser.Parser) *outline.Service {
	return outline.NewService(text, prompts, links)
}

// ProvideHealthHandler nil 的 Redis 不能作为接口直接传入
func ProvideHealthHandler(db *sqlstore.Client, rc *redis.Client) *handler.HealthHandler {
	if rc == nil {
		return handler.NewHealthHandler(db, nil)
	}
	return handler.NewHealthHandler(db, rc)
}

// ProvideHandlers 组装路由处理器
func ProvideHandlers(
	health *handler.HealthHandler,
	outlines *outline.Service,
	contents *content.Service,
	links *linkparser.Parser,
	gen *generation.Service,
	hist *history.Service,
	brands *brand.Service,
) router.Handlers {
	return router.Handlers{
		Health:     health,
		Creation:   handler.NewCreationHandler(outlines, contents, links),
		Generation: handler.NewGenerationHandler(gen),
		History:    handler.NewHistoryHandler(hist),
		Brand:      handler.NewBrandHandler(brands),
	}
}

// ProvideConsumer 历史同步消费者
func ProvideConsumer(rc *redis.Client, cfg *config.Config) *messaging.Consumer {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "sync-worker"
	}
	rs := cfg.Messaging.RedisStream
	return messaging.NewConsumer(rc.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.StreamTaskEvents,
		Group:        messaging.ConsumerGroupHistorySync,
		ConsumerName: fmt.Sprintf("%s-%d", host, os.Getpid()),
		BlockTimeout: rs.BlockTimeout,
		RetryLimit:   rs.RetryLimit,
		Backoff: messaging.Backoff{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}

// ProvideLinkParser 链接解析器
func ProvideLinkParser() *linkparser.Parser {
	return linkparser.New()
}
