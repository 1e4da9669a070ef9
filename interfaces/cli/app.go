package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"echotree/infrastructure/adapters"
	"echotree/infrastructure/cache"
	"echotree/infrastructure/configuration"
	"echotree/infrastructure/crypto"
	"echotree/infrastructure/lock"
	"echotree/infrastructure/logger"
	"echotree/infrastructure/persistence"
	"echotree/infrastructure/pubsub"
	"echotree/infrastructure/realtime"
	"echotree/infrastructure/servicebus"
	httpHandler "echotree/interfaces/http"
	"echotree/server"
	"echotree/usecase"

	"github.com/gin-gonic/gin"
)

// App holds the wired object graph shared by every command.
type App struct {
	Config   configuration.Config
	DB       *sql.DB
	Publish  *usecase.PublishUsecase
	Schedule *usecase.ScheduleUsecase
	Accounts *usecase.AccountUsecase
	Articles *usecase.ArticleUsecase
	Hub      *realtime.Hub
	Registry *adapters.Registry

	closers []func()
}

// Bootstrap opens the store and wires repositories, sinks and usecases from cfg.
func Bootstrap(ctx context.Context, cfg configuration.Config) (*App, error) {
	codec, err := crypto.NewCodec(cfg.Crypto.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("ECHOTREE_SECRET_KEY: %w", err)
	}
	db, err := persistence.NewDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app := &App{Config: cfg, DB: db}
	app.closers = append(app.closers, func() { _ = db.Close() })

	posts := persistence.NewPostRepository(db)
	accounts := persistence.NewAccountRepository(db)
	articles := persistence.NewArticleRepository(db)

	app.Accounts = usecase.NewAccountUsecase(accounts, codec)
	app.Articles = usecase.NewArticleUsecase(articles)
	app.Registry = adapters.NewRegistry(adapters.Config{
		Timeout:             cfg.AdapterTimeout(),
		TwitterBaseURL:      cfg.Platforms.Twitter.BaseURL,
		TwitterAPIKey:       cfg.Platforms.Twitter.APIKey,
		TwitterAPISecret:    cfg.Platforms.Twitter.APISecret,
		MastodonBaseURL:     cfg.Platforms.Mastodon.BaseURL,
		BlueskyPDS:          cfg.Platforms.Bluesky.PDS,
		BlueskyEmbedTimeout: time.Duration(cfg.Platforms.Bluesky.EmbedTimeoutSeconds) * time.Second,
		LinkedInBaseURL:     cfg.Platforms.LinkedIn.BaseURL,
		LinkedInAuthorURN:   cfg.Platforms.LinkedIn.AuthorURN,
	}, app.Accounts)

	limiter := usecase.NewRateLimiter(posts, cfg.RateLimitWindow())
	app.Hub = realtime.NewDeliveryHub()
	app.Publish = usecase.NewPublishUsecase(posts, lock.NewFileLock(cfg.Publish.LockPath), limiter, codec, app.Registry).
		WithEventSink(app.Hub)
	app.wireEventSinks(ctx, cfg)

	tokens, err := app.submitTokenStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Schedule = usecase.NewScheduleUsecase(posts, accounts, articles, tokens, app.Publish, limiter)
	return app, nil
}

func (a *App) submitTokenStore(ctx context.Context, cfg configuration.Config) (cache.ISubmitToken, error) {
	if cfg.SubmitToken.Store != "redis" {
		return cache.NewMemorySubmitToken(cfg.SubmitTokenTTL()), nil
	}
	client, err := cache.NewCache(ctx,
		fmt.Sprintf("%s:%s", cfg.RedisClient.Host, cfg.RedisClient.Port),
		cfg.RedisClient.Username,
		cfg.RedisClient.Password,
	)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	logger.GetLogger().Info("Redis client initialized successfully.")
	return cache.NewRedisSubmitToken(client, cfg.SubmitTokenTTL()), nil
}

// wireEventSinks attaches the optional cloud publishers; an unavailable broker is logged and skipped.
func (a *App) wireEventSinks(ctx context.Context, cfg configuration.Config) {
	if cfg.Pubsub.ProjectID != "" {
		client, err := pubsub.NewPubSub(ctx, cfg.Pubsub.ProjectID, cfg.Pubsub.CredentialsFile)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Pub/Sub not available - continuing without delivery events on Pub/Sub")
		} else {
			p := pubsub.NewDeliveryPublisher(client, cfg.Pubsub.Topic)
			a.Publish.WithEventSink(p)
			a.closers = append(a.closers, func() { p.Stop(); _ = client.Close() })
		}
	}
	if cfg.ServiceBus.Namespace != "" {
		client, err := servicebus.NewServiceBus(cfg.ServiceBus.Namespace)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Azure Service Bus not available - continuing without Service Bus events")
			return
		}
		sender, err := servicebus.NewDeliverySender(client, cfg.ServiceBus.Queue)
		if err != nil {
			_ = client.Close(ctx)
			return
		}
		a.Publish.WithEventSink(sender)
		a.closers = append(a.closers, func() {
			sender.Close(context.Background())
			_ = client.Close(context.Background())
		})
	}
}

// Router builds the HTTP API over the wired usecases.
func (a *App) Router() *gin.Engine {
	return server.InitiateRouter(server.Handlers{
		Post:    httpHandler.NewPostHandler(a.Schedule, a.Publish),
		Account: httpHandler.NewAccountHandler(a.Accounts, a.Registry.Platforms()),
		Article: httpHandler.NewArticleHandler(a.Articles),
		Health:  httpHandler.NewHealthHandler(a.DB),
		Hub:     a.Hub,
	}, a.Config.App.SecretKey, a.Config.App.CorsOrigins)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
