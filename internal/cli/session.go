package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"

	"github.com/ryandotelliott/dead-internet/internal/app"
	"github.com/ryandotelliott/dead-internet/internal/config"
	"github.com/ryandotelliott/dead-internet/internal/memstore"
	"github.com/ryandotelliott/dead-internet/internal/profile"
	"github.com/ryandotelliott/dead-internet/internal/taskqueue"
)

// session is one command's view of the service graph.
type session struct {
	cfg    *config.Config
	svc    *app.Services
	logger *slog.Logger
	// local is set when tasks run in-process.
	local   *taskqueue.MemoryQueue
	closeFn func() error
}

func (r *runner) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := r.v.GetString("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if t := r.v.GetString("table"); t != "" {
		cfg.TableName = t
	}
	if q := r.v.GetString("queue"); q != "" {
		cfg.Queue.Backend = strings.ToLower(q)
	}
	if u := r.v.GetString("redis-url"); u != "" {
		cfg.Queue.RedisURL = u
	}

	if r.memoryStore() {
		// Tasks must run in the same process as the data they refer to.
		cfg.Queue.Backend = config.QueueBackendMemory
		return cfg, nil
	}
	return cfg, cfg.Validate()
}

func (r *runner) memoryStore() bool {
	return strings.EqualFold(r.v.GetString("store"), storeMemory)
}

func (r *runner) open(ctx context.Context) (*session, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := r.logger()

	var awsCfg aws.Config
	if r.model == nil || !r.memoryStore() {
		if awsCfg, err = awsconfig.LoadDefaultConfig(ctx); err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
	}

	var stores app.Stores
	if r.memoryStore() {
		if r.memory == nil {
			r.memory = memstore.New()
		}
		stores = app.MemoryStores(r.memory)
	} else {
		stores = app.DynamoDBStores(dbclient.NewClient(awsCfg), cfg.TableName)
	}

	s := &session{cfg: cfg, logger: logger, closeFn: func() error { return nil }}
	var tasks taskqueue.Publisher
	if cfg.Queue.Backend == config.QueueBackendMemory {
		s.local = taskqueue.NewMemoryQueue()
		tasks = s.local
	} else if tasks, s.closeFn, err = app.NewPublisher(ctx, cfg, awsCfg); err != nil {
		return nil, err
	}

	model := r.model
	if model == nil {
		model = app.NewModel(cfg, awsCfg)
	}
	s.svc = app.New(cfg, stores, model, tasks, logger)
	return s, nil
}

// settle runs in-process tasks until none are left. Remote queues are left
// to their workers.
func (s *session) settle(ctx context.Context) {
	if s.local == nil {
		return
	}
	s.local.Drain(ctx, s.svc.Dispatcher.Handle, func(task taskqueue.Task, err error) {
		s.logger.ErrorContext(ctx, "Local task failed",
			slog.String("type", string(task.Type)),
			slog.String("key", task.IdempotencyKey()),
			slog.String("error", err.Error()),
		)
	})
}

func (s *session) close() error {
	return s.closeFn()
}

// human returns the human profile for address. When name is set, a missing
// profile is created under a CLI-local auth identity.
func (s *session) human(ctx context.Context, address, name string) (*profile.Profile, error) {
	p, err := s.svc.Stores.Profiles.GetByEmail(ctx, profile.NormalizeEmail(address))
	if errors.Is(err, profile.ErrProfileNotFound) && name != "" {
		return s.svc.Directory.EnsureHumanProfile(ctx, "cli:"+profile.NormalizeEmail(address), name, address)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", address, err)
	}
	if p.IsPersona() {
		return nil, fmt.Errorf("%s is a persona", address)
	}
	return p, nil
}

// persona returns the persona profile for address.
func (s *session) persona(ctx context.Context, address string) (*profile.Profile, error) {
	p, err := s.svc.Stores.Profiles.GetByEmail(ctx, profile.NormalizeEmail(address))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", address, err)
	}
	if !p.IsPersona() {
		return nil, fmt.Errorf("%s is not a persona", address)
	}
	return p, nil
}
