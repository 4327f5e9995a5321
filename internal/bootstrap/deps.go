package bootstrap

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	httpadapter "ideabox/adapter/in/http"
	"ideabox/adapter/out/cache"
	"ideabox/adapter/out/mongodb"
	"ideabox/adapter/out/persistence"
	"ideabox/adapter/out/provider/imap"
	"ideabox/adapter/out/provider/smtp"
	"ideabox/adapter/out/realtime"
	"ideabox/config"
	"ideabox/core/agent/llm"
	"ideabox/core/port/out"
	"ideabox/core/service/classification"
	"ideabox/core/service/intake"
	"ideabox/core/service/reward"
	"ideabox/core/service/submission"
	"ideabox/infra/database"
	"ideabox/pkg/httputil"
	"ideabox/pkg/logger"
)

type Dependencies struct {
	Config  *config.Config
	ZLog    zerolog.Logger
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Persistence
	Snapshot out.SnapshotStore // nil for the memory backend
	Store    *submission.Store

	// Providers
	Mailbox *imap.Mailbox
	Mailer  *smtp.Mailer

	// Realtime
	SSEHub *realtime.Hub

	// Agent
	LLMClient  *llm.Client // nil without an API key
	Classifier *classification.Adapter

	// Services
	SubmissionService *submission.Service
	Pipeline          *intake.Pipeline
	Notifier          *reward.Notifier

	// Readiness checks by name; nil entries report "not configured".
	Checks map[string]httpadapter.HealthChecker
}

// NewZerolog builds the component logger used by the worker, scheduler and SSE hub.
func NewZerolog(cfg *config.Config) zerolog.Logger {
	var zlog zerolog.Logger
	if cfg.IsDevelopment() {
		zlog = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		zlog = zerolog.New(os.Stdout)
	}
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		if parsed, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			level = parsed
		}
	}
	return zlog.Level(level).With().Timestamp().Str("worker_id", cfg.WorkerID).Logger()
}

// NewDependencies connects the configured backends and builds the services.
// Optional backends that fail to connect degrade instead of aborting startup;
// only the selected persistence backend is mandatory, and this process must be
// its only writer.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{
		Config: cfg,
		ZLog:   NewZerolog(cfg),
		Checks: map[string]httpadapter.HealthChecker{},
	}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Persistence
	switch cfg.PersistBackend {
	case config.BackendFile:
		snap := persistence.NewFileSnapshot(cfg.PersistFile)
		deps.Snapshot = snap
		deps.Checks["snapshot"] = snap

	case config.BackendPostgres:
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.DB = db
		deps.SQLDB = database.NewSQLX(db)
		cleanups = append(cleanups, func() {
			deps.SQLDB.Close()
			db.Close()
		})

		snap := persistence.NewPostgresSnapshot(deps.SQLDB)
		if err := snap.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Snapshot = snap
		deps.Checks["postgres"] = httpadapter.HealthCheckFunc(db.Ping)
		logger.Info("Postgres snapshot backend connected")

	case config.BackendMongo:
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.MongoDB = client
		cleanups = append(cleanups, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(disconnectCtx)
		})

		snap := mongodb.NewSnapshotAdapter(client.Database(cfg.MongoDBName))
		if err := snap.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to ensure MongoDB indexes")
		}
		deps.Snapshot = snap
		deps.Checks["mongodb"] = httpadapter.HealthCheckFunc(func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		})
		logger.Info("MongoDB snapshot backend connected")

	case config.BackendMemory:
		logger.Warn("Memory backend selected, submissions are lost on restart")
	}

	deps.Store = submission.NewStore(deps.Snapshot)
	if err := deps.Store.Claim(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, deps.Store.Release)
	if err := deps.Store.Load(ctx); err != nil {
		logger.WithError(err).Warn("Failed to load persisted submissions, starting empty")
	}

	// Redis (optional): cycle lock with a TTL
	var lock out.CycleLock = cache.NewLocalCycleLock()
	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, using in-process cycle lock")
			deps.Checks["redis"] = nil
		} else {
			deps.Redis = client
			cleanups = append(cleanups, func() { client.Close() })
			lock = cache.NewRedisCycleLock(client)
			deps.Checks["redis"] = httpadapter.HealthCheckFunc(func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
		}
	}

	// Realtime
	deps.SSEHub = realtime.NewHub(deps.ZLog)

	// Agent
	var completer out.JSONCompleter
	if cfg.OpenAIAPIKey != "" {
		deps.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			HTTPClient:  httputil.NewClient(httputil.LLMClientConfig(cfg.ClassifierTimeout)),
		})
		completer = deps.LLMClient
		logger.Info("LLM classifier configured (model: %s)", deps.LLMClient.Model())
	} else {
		logger.Warn("OPENAI_API_KEY not set, submissions will be stored unscored")
	}
	deps.Classifier = classification.NewAdapter(completer, classification.Config{Timeout: cfg.ClassifierTimeout})

	// Providers
	deps.Mailbox = imap.NewMailbox(imap.Config{
		Host:     cfg.MailboxHost,
		Port:     cfg.MailboxPort,
		Address:  cfg.MailboxAddress,
		Password: cfg.MailboxPassword,
		Folder:   cfg.MailboxFolder,
		Timeout:  cfg.MailboxTimeout,
	})
	if !deps.Mailbox.Configured() {
		logger.Warn("Mailbox credentials not set, intake cycles will fail until configured")
	}

	deps.Mailer = smtp.NewMailer(smtp.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.SMTPTimeout,
	})
	if !deps.Mailer.Configured() {
		logger.Warn("SMTP relay not set, reward notifications will fail")
	}

	// Services
	policy, err := out.ParseFetchPolicy(cfg.MailboxFetchPolicy)
	if err != nil {
		logger.WithError(err).Warn("Falling back to unseen fetch policy")
		policy = out.FetchUnseen
	}

	deps.SubmissionService = submission.NewService(deps.Store, deps.SSEHub)
	deps.Pipeline = intake.NewPipeline(intake.PipelineDeps{
		Mailbox:    deps.Mailbox,
		Classifier: deps.Classifier,
		Store:      deps.Store,
		Events:     deps.SSEHub,
		Lock:       lock,
	}, intake.PipelineConfig{
		Fetch: out.FetchRequest{Policy: policy, Limit: cfg.MailboxFetchLimit},
	})
	deps.Notifier = reward.NewNotifier(deps.Store, deps.Mailer, deps.SSEHub, reward.Config{
		FallbackAddress: cfg.RewardFallbackAddress,
		Currency:        cfg.RewardCurrency,
	})

	return deps, cleanup, nil
}
