package container

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HuongNV13/moodle/cmd/moodlenet/repository"
	"github.com/HuongNV13/moodle/cmd/moodlenet/service"
	"github.com/HuongNV13/moodle/common/bootstrap"
	"github.com/HuongNV13/moodle/common/clients"
	"github.com/HuongNV13/moodle/common/events"
	"github.com/HuongNV13/moodle/common/oauth"
	"github.com/HuongNV13/moodle/common/ratelimit"
	rediscommon "github.com/HuongNV13/moodle/common/redis"
	"github.com/HuongNV13/moodle/common/worker"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Redis      *rediscommon.Client
	RedisRaw   *redis.Client

	// Repositories
	IssuerRepo        *repository.IssuerRepository
	CourseRepo        *repository.CourseRepository
	ShareProgressRepo *repository.ShareProgressRepository

	// Clients and stores
	HTTPClient      *clients.HTTPClient
	MoodleNetClient *clients.MoodleNetClient
	Sessions        oauth.SessionStore
	Emitter         *events.Emitter
	RateLimiter     *ratelimit.RateLimiter

	// Services
	Packager    *service.Packager
	Policy      *service.PolicyService
	TokenSource *service.OAuthTokenSource
	Pool        *worker.Pool
	Sender      *service.Sender
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	// Redis backs OAuth sessions and the audit event stream
	redisRaw := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisClient := rediscommon.NewClient(redisRaw, components.Logger)

	// Repositories
	issuerRepo := repository.NewIssuerRepository(components.DB)
	courseRepo := repository.NewCourseRepository(components.DB)
	shareProgressRepo := repository.NewShareProgressRepository(components.DB)

	// Outbound HTTP. Uploads of near-limit archives can be slow, so the
	// shared client carries no timeout; callers bound requests via context.
	httpClient := clients.NewHTTPClient(&http.Client{}, components.Logger)
	moodlenetClient := clients.NewMoodleNetClient(httpClient, components.Logger)

	sessions := oauth.NewRedisStore(redisClient, 30*24*time.Hour)
	emitter := events.NewEmitter(redisClient, components.Logger)
	rateLimiter := ratelimit.NewRateLimiter(redisRaw, components.Logger)

	// Services (bottom-up: dependencies first)
	packager := service.NewPackager(courseRepo, cfg.Storage.TempDir, components.Logger)
	policy := service.NewPolicyService(cfg, courseRepo, components.Cache, components.Logger)
	tokenSource := service.NewOAuthTokenSource(sessions, httpClient, components.Logger)
	pool := worker.NewPool(cfg.MoodleNet.ShareWorkers, components.Logger)

	sender := service.NewSender(
		cfg,
		issuerRepo,
		courseRepo,
		shareProgressRepo,
		packager,
		policy,
		moodlenetClient,
		tokenSource,
		emitter,
		pool,
		components.Logger,
	)

	return &Container{
		Components:        components,
		Redis:             redisClient,
		RedisRaw:          redisRaw,
		IssuerRepo:        issuerRepo,
		CourseRepo:        courseRepo,
		ShareProgressRepo: shareProgressRepo,
		HTTPClient:        httpClient,
		MoodleNetClient:   moodlenetClient,
		Sessions:          sessions,
		Emitter:           emitter,
		RateLimiter:       rateLimiter,
		Packager:          packager,
		Policy:            policy,
		TokenSource:       tokenSource,
		Pool:              pool,
		Sender:            sender,
	}, nil
}

// Close releases resources owned by the container
func (c *Container) Close() error {
	if err := c.Pool.Close(); err != nil {
		return err
	}
	return c.RedisRaw.Close()
}
