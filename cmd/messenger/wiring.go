package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/dto"
	convapp "learnhub/internal/app/handlers/conversations"
	msgapp "learnhub/internal/app/handlers/messages"
	"learnhub/internal/app/middleware"
	appoutbox "learnhub/internal/app/outbox"
	"learnhub/internal/app/policies"
	"learnhub/internal/app/queries"
	"learnhub/internal/app/services/auth"
	"learnhub/internal/app/services/readtracking"
	"learnhub/internal/app/services/registry"
	domainmessaging "learnhub/internal/domain/messaging"
	domainuser "learnhub/internal/domain/user"
	"learnhub/internal/infra/broker/kafka"
	"learnhub/internal/infra/cache"
	"learnhub/internal/infra/config"
	mongostore "learnhub/internal/infra/db/mongo"
	ginserver "learnhub/internal/infra/http/gin"
	"learnhub/internal/infra/inbox"
	"learnhub/internal/infra/obs"
	outboxinfra "learnhub/internal/infra/outbox"
	"learnhub/internal/infra/resilience"
	"learnhub/internal/infra/security"
	"learnhub/internal/infra/storage/memory"
	"learnhub/internal/infra/storage/s3"
)

const eventSource = "app://learnhub/messenger"

type directory interface {
	domainuser.Directory
	Put(ctx context.Context, p domainuser.Profile) error
}

type application struct {
	server     *http.Server
	profiles   directory
	background map[string]func(context.Context) error
	closers    []func(context.Context) error
}

// backends groups the storage adapters selected by STORAGE_BACKEND.
type backends struct {
	conversations domainmessaging.ConversationRepository
	states        domainmessaging.ParticipantStateRepository
	messages      domainmessaging.MessageRepository
	profiles      directory
	idempotency   middleware.IdempotencyStore
	outbox        appoutbox.Outbox
	claimer       outboxinfra.Claimer
	inbox         kafka.Deduper
	mongo         *mongostore.Client
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{background: map[string]func(context.Context) error{}}
	checks := map[string]obs.Check{}

	store, err := openBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if store.mongo != nil {
		client := store.mongo
		app.closers = append(app.closers, client.Close)
		checks["mongo"] = client.Ping
	}
	app.profiles = store.profiles

	var dir domainuser.Directory = store.profiles
	var invalidator policies.ProfileInvalidator
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error { return rdb.Close() })
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		cached := &cache.Directory{Upstream: store.profiles, Client: redis.UniversalClient(rdb), TTL: cfg.ProfileCacheTTL, Logger: logger}
		dir = cached
		invalidator = cached
	}

	attachments, err := openAttachments(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	publisher := appoutbox.Publisher{
		Box:     store.outbox,
		Encoder: appoutbox.JSONEventEncoder{Headers: map[string]string{"source": eventSource}},
		Logger:  logger,
	}
	now := func() time.Time { return time.Now().UTC() }
	reg := &registry.Service{
		Conversations: store.conversations,
		States:        store.states,
		Directory:     dir,
		Events:        publisher,
		IDs:           uuid.NewString,
		Now:           now,
		Logger:        logger,
	}
	reads := &readtracking.Coordinator{
		Messages: store.messages,
		States:   store.states,
		Events:   publisher,
		Now:      now,
		Logger:   logger,
	}
	update := &convapp.UpdateConversationHandler{Registry: reg, Messages: store.messages, Now: now, Logger: logger}

	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler[convapp.CreateConversationCommand, dto.Conversation](commandBus, &convapp.CreateConversationHandler{Registry: reg, Messages: store.messages, Logger: logger})
	commands.RegisterHandler[convapp.UpdateConversationCommand, dto.Conversation](commandBus, update)
	commands.RegisterHandler[convapp.DeleteConversationCommand, dto.Conversation](commandBus, &convapp.DeleteConversationHandler{Update: update})
	commands.RegisterHandler[msgapp.SendMessageCommand, dto.Message](commandBus, &msgapp.SendMessageHandler{
		Registry:    reg,
		Messages:    store.messages,
		Attachments: attachments,
		Events:      publisher,
		IDs:         uuid.NewString,
		Now:         now,
		Logger:      logger,
	})
	commands.RegisterHandler[msgapp.MarkMessageReadCommand, dto.Message](commandBus, &msgapp.MarkMessageReadHandler{Reads: reads, Directory: dir})
	commands.RegisterHandler[msgapp.DeleteMessageCommand, dto.DeletedMessage](commandBus, &msgapp.DeleteMessageHandler{
		Messages:    store.messages,
		States:      store.states,
		Attachments: attachments,
		Events:      publisher,
		Now:         now,
		Logger:      logger,
	})
	commands.RegisterHandler[msgapp.ToggleReactionCommand, dto.Message](commandBus, &msgapp.ToggleReactionHandler{Messages: store.messages, Directory: dir})

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler[convapp.ListConversationsQuery, dto.ConversationList](queryBus, &convapp.ListConversationsHandler{
		Conversations: store.conversations,
		States:        store.states,
		Messages:      store.messages,
		Directory:     dir,
	})
	queries.RegisterHandler[convapp.GetConversationQuery, dto.Conversation](queryBus, &convapp.GetConversationHandler{Registry: reg, Reads: reads, Messages: store.messages})
	queries.RegisterHandler[convapp.SearchUsersQuery, []dto.ProfileSummary](queryBus, &convapp.SearchUsersHandler{Directory: dir})
	queries.RegisterHandler[msgapp.FetchMessagesQuery, dto.MessageList](queryBus, &msgapp.FetchMessagesHandler{Registry: reg, Reads: reads, Messages: store.messages})
	queries.RegisterHandler[msgapp.SearchMessagesQuery, dto.MessageList](queryBus, &msgapp.SearchMessagesHandler{
		Conversations: store.conversations,
		States:        store.states,
		Messages:      store.messages,
		Directory:     dir,
	})

	metrics := obs.NewMetrics()
	commandsWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Instrument(metrics),
		middleware.Authorization(middleware.ActorRequired{}),
		middleware.Validation(middleware.MessageValidator{}),
		middleware.Idempotency(store.idempotency, nil),
		middleware.OutboxFlush(store.outbox, logger),
	)
	queriesWithMiddleware := middleware.ChainQueries(
		queryBus,
		middleware.QueryInstrument(metrics),
		middleware.QueryAuthorization(middleware.ActorRequired{}),
		middleware.QueryValidation(middleware.MessageValidator{}),
		middleware.QueryOutboxFlush(store.outbox, logger),
	)

	authService := &auth.Service{
		Tokens:    tokenVerifier(cfg),
		Directory: dir,
		Logger:    logger,
	}
	limiter := ginserver.NewUserRateLimiter(cfg.SendRatePerMinute, cfg.SendBurst, logger)
	app.background["rate-limiter-eviction"] = func(ctx context.Context) error {
		limiter.Run(ctx)
		return nil
	}

	if err := wireBroker(cfg, store, invalidator, app, logger); err != nil {
		return nil, err
	}

	app.server = ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: checks}, ginserver.Handlers{
		Conversations:  ginserver.ConversationHandler{Commands: commandsWithMiddleware, Queries: queriesWithMiddleware, Logger: logger},
		Messages:       ginserver.MessageHandler{Commands: commandsWithMiddleware, Queries: queriesWithMiddleware, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
		SendLimiter:    limiter.Handler(),
		Metrics:        metrics,
	})
	return app, nil
}

func tokenVerifier(cfg config.Config) *security.HMACVerifier {
	if cfg.JWTSecret == "" && cfg.AuthInsecureDev {
		return security.NewInsecureVerifier()
	}
	return security.NewHMACVerifier(cfg.JWTSecret, cfg.JWTIssuer)
}

func openBackends(ctx context.Context, cfg config.Config) (backends, error) {
	if cfg.StorageBackend != config.BackendMongo {
		return backends{
			conversations: memory.NewConversationRepository(),
			states:        memory.NewParticipantStateRepository(),
			messages:      memory.NewMessageRepository(),
			profiles:      memory.NewDirectory(),
			idempotency:   memory.NewIdempotencyStore(cfg.IdempotencyTTL),
			outbox:        memory.NewOutbox(),
			inbox:         memory.NewInbox(),
		}, nil
	}
	client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return backends{}, fmt.Errorf("mongo connect: %w", err)
	}
	db := client.DB
	conversations := mongostore.NewConversationRepository(db)
	states := mongostore.NewParticipantStateRepository(db)
	messages := mongostore.NewMessageRepository(db)
	profiles := mongostore.NewUserDirectory(db)
	idempotency := mongostore.NewIdempotencyStore(db, cfg.IdempotencyTTL)
	outboxStore := outboxinfra.NewStore(db)
	inboxStore := inbox.NewStore(db, cfg.ProfileConsumerGroup, 7*24*time.Hour)

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := mongostore.EnsureIndexes(indexCtx, conversations, states, messages, profiles, idempotency, outboxStore, inboxStore); err != nil {
		_ = client.Close(context.Background())
		return backends{}, fmt.Errorf("mongo indexes: %w", err)
	}
	return backends{
		conversations: conversations,
		states:        states,
		messages:      messages,
		profiles:      profiles,
		idempotency:   idempotency,
		outbox:        outboxStore,
		claimer:       outboxStore,
		inbox:         inboxStore,
		mongo:         client,
	}, nil
}

func openAttachments(cfg config.Config, store backends, logger *slog.Logger) (policies.AttachmentStore, error) {
	var base policies.AttachmentStore
	switch cfg.AttachmentBackend {
	case config.BackendS3:
		s3Store, err := s3.NewAttachmentStore(s3.Options{
			Endpoint:      cfg.S3Endpoint,
			UseSSL:        cfg.S3UseSSL,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicEndpoint,
			MaxBytes:      cfg.AttachmentMaxBytes,
		}, logger)
		if err != nil {
			return nil, err
		}
		base = s3Store
	case config.BackendGridFS:
		gridStore, err := mongostore.NewAttachmentStore(store.mongo.DB, cfg.AttachmentMaxBytes)
		if err != nil {
			return nil, err
		}
		base = gridStore
	default:
		base = memory.NewAttachmentStore(cfg.AttachmentMaxBytes)
	}
	return resilience.NewAttachmentStore(base, resilience.BreakerSettings{
		Name:        "attachments-" + cfg.AttachmentBackend,
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     cfg.BreakerTimeout,
	}, logger), nil
}

// wireBroker starts the outbox relay and the profile-update consumer when Kafka is configured.
func wireBroker(cfg config.Config, store backends, invalidator policies.ProfileInvalidator, app *application, logger *slog.Logger) error {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("KAFKA_BROKERS not set, events stay in the outbox")
		return nil
	}
	if store.claimer != nil {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID, nil)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
		worker := &outboxinfra.Worker{
			Store:       store.claimer,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Source:      eventSource,
			Backoff:     cfg.RetryBackoff,
			Logger:      logger,
		}
		app.background["outbox-relay"] = worker.Run
	}

	handler := &kafka.ProfileUpdateHandler{Inbox: store.inbox, Invalidator: invalidator, Sink: store.profiles, Logger: logger}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.ProfileConsumerGroup, nil, handler, logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	app.closers = append(app.closers, func(context.Context) error { return consumer.Close() })
	topic := cfg.KafkaTopicPrefix + kafka.ProfileUpdatesTopic
	app.background["profile-updates"] = func(ctx context.Context) error {
		return consumer.Run(ctx, []string{topic})
	}
	return nil
}

// close releases resources in reverse order of acquisition. It is safe to call twice.
func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}
