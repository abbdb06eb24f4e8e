package container

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/weftlabs/weft/cmd/orchestrator/approval"
	"github.com/weftlabs/weft/cmd/orchestrator/compensation"
	"github.com/weftlabs/weft/cmd/orchestrator/condition"
	"github.com/weftlabs/weft/cmd/orchestrator/executor"
	"github.com/weftlabs/weft/cmd/orchestrator/llm"
	"github.com/weftlabs/weft/cmd/orchestrator/operators"
	"github.com/weftlabs/weft/cmd/orchestrator/resolver"
	"github.com/weftlabs/weft/cmd/orchestrator/security"
	"github.com/weftlabs/weft/cmd/orchestrator/service"
	"github.com/weftlabs/weft/cmd/orchestrator/tools"
	"github.com/weftlabs/weft/cmd/orchestrator/webhook"
	"github.com/weftlabs/weft/cmd/orchestrator/worker"
	"github.com/weftlabs/weft/common/bootstrap"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/ratelimit"
	rediscommon "github.com/weftlabs/weft/common/redis"
	"github.com/weftlabs/weft/common/repository"
	"github.com/weftlabs/weft/common/sdk"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Redis      *rediscommon.Client
	RedisRaw   *redis.Client
	Limiter    *ratelimit.RateLimiter

	// Repositories
	WorkflowRepo *repository.WorkflowRepository
	RunRepo      *repository.RunRepository
	StepRepo     *repository.StepRepository

	// Engine
	Tools     *tools.Registry
	Approvals *approval.Coordinator
	Engine    *executor.Engine
	Events    *rediscommon.EventPublisher

	// Services
	WorkflowService *service.WorkflowService
	RunService      *service.RunService
}

// NewContainer initializes all services and repositories once
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger
	clock := sdk.SystemClock{}

	// Redis backs run events and rate limiting
	redisRaw := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisClient := rediscommon.NewClient(redisRaw, log)
	components.AddProbe("redis", func(ctx context.Context) error {
		return redisRaw.Ping(ctx).Err()
	})

	// Initialize repositories
	workflowRepo := repository.NewWorkflowRepository(components.DB)
	runRepo := repository.NewRunRepository(components.DB)
	stepRepo := repository.NewStepRepository(components.DB)

	// Initialize the node handler stack (bottom-up: shared pieces first)
	res := resolver.NewResolver(log)
	evaluator := condition.NewEvaluator(res)

	registry := tools.NewRegistry(log)
	screener := security.NewURLValidator(cfg.Engine.WebhookAllowPrivate)
	webhookClient := webhook.NewClient(cfg.Engine.WebhookTimeout, screener, log)
	if err := tools.RegisterBuiltins(registry, clock, webhookClient); err != nil {
		return nil, fmt.Errorf("failed to register builtin tools: %w", err)
	}

	gateway := llm.NewGateway(cfg.Model, log)
	coordinator := approval.NewCoordinator(clock, log)
	compensator := compensation.NewEngine(log)

	handlers := []worker.Handler{
		worker.NewInputHandler(),
		worker.NewOutputHandler(res),
		worker.NewToolHandler(registry, res, log),
		worker.NewAIHandler(gateway, res, log),
		worker.NewDelayHandler(clock, log),
		worker.NewWebhookHandler(webhookClient, res, log),
		worker.NewApprovalHandler(worker.ApprovalHandlerOpts{
			Coordinator:    coordinator,
			Resolver:       res,
			Clock:          clock,
			DefaultTimeout: cfg.Engine.ApprovalTimeout,
			Logger:         log,
		}),
		operators.NewConditionHandler(evaluator, log),
		operators.NewLoopHandler(evaluator, res, log),
		operators.NewParallelHandler(log),
	}

	engine := executor.New(executor.Opts{
		Handlers:    handlers,
		Runs:        runRepo,
		Steps:       stepRepo,
		Approvals:   coordinator,
		Compensator: compensator,
		Tools:       registry,
		Bus:         components.Queue,
		Clock:       clock,
		Logger:      log,
		Config:      cfg.Engine,
	})

	// Run events flow engine -> in-process bus -> Redis stream + channel
	var events *rediscommon.EventPublisher
	if cfg.Features.EnableEvents && components.Queue != nil {
		events = rediscommon.NewEventPublisher(redisClient, cfg.Engine.EventStream, cfg.Engine.EventChannel, log)
		if err := events.Bridge(ctx, components.Queue, models.TopicRunEvents); err != nil {
			return nil, fmt.Errorf("failed to start event bridge: %w", err)
		}
	}

	// One limiter serves both the HTTP middleware and the run throttle
	var limiter *ratelimit.RateLimiter
	var throttle service.Throttle
	if cfg.Features.EnableRateLimit {
		limiter = ratelimit.NewRateLimiter(redisRaw, log)
		throttle = limiter
	}

	var plans *service.PlanCache
	if components.Cache != nil {
		plans = service.NewPlanCache(components.Cache, cfg.Cache.DefaultTTL, log)
	}

	// Initialize services (bottom-up: dependencies first)
	workflowService := service.NewWorkflowService(service.WorkflowServiceOpts{
		Store:  workflowRepo,
		Clock:  clock,
		Logger: log,
	})

	runService := service.NewRunService(service.RunServiceOpts{
		Definitions: workflowRepo,
		Runs:        runRepo,
		Steps:       stepRepo,
		Runner:      engine,
		Approvals:   coordinator,
		Throttle:    throttle,
		Plans:       plans,
		Clock:       clock,
		Logger:      log,
	})

	return &Container{
		Components:      components,
		Redis:           redisClient,
		RedisRaw:        redisRaw,
		Limiter:         limiter,
		WorkflowRepo:    workflowRepo,
		RunRepo:         runRepo,
		StepRepo:        stepRepo,
		Tools:           registry,
		Approvals:       coordinator,
		Engine:          engine,
		Events:          events,
		WorkflowService: workflowService,
		RunService:      runService,
	}, nil
}

// Close releases connections the container owns
func (c *Container) Close() error {
	if c.RedisRaw != nil {
		return c.RedisRaw.Close()
	}
	return nil
}
