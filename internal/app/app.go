// Package app assembles the mail services from configuration. Lambda
// handlers, the task worker and the deadnet CLI all build their graph here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"

	"github.com/ryandotelliott/dead-internet/internal/agentthread"
	"github.com/ryandotelliott/dead-internet/internal/compose"
	"github.com/ryandotelliott/dead-internet/internal/config"
	"github.com/ryandotelliott/dead-internet/internal/conversation"
	"github.com/ryandotelliott/dead-internet/internal/email"
	"github.com/ryandotelliott/dead-internet/internal/mailbox"
	"github.com/ryandotelliott/dead-internet/internal/memstore"
	"github.com/ryandotelliott/dead-internet/internal/orchestrator"
	"github.com/ryandotelliott/dead-internet/internal/persona"
	"github.com/ryandotelliott/dead-internet/internal/profile"
	"github.com/ryandotelliott/dead-internet/internal/taskqueue"
	"github.com/ryandotelliott/dead-internet/internal/thread"
)

// ConversationStore holds conversation records and their turns.
type ConversationStore interface {
	conversation.TurnStore
	agentthread.ConversationCreator
}

// Stores are the persistence backends of the services.
type Stores struct {
	Profiles      profile.Store
	Messages      email.Store
	Links         agentthread.Store
	Conversations ConversationStore
}

// DynamoDBStores returns stores backed by one DynamoDB table.
func DynamoDBStores(client dbclient.DynamoDBClient, tableName string) Stores {
	return Stores{
		Profiles:      profile.NewRepository(client, tableName),
		Messages:      email.NewRepository(client, tableName),
		Links:         agentthread.NewRepository(client, tableName),
		Conversations: conversation.NewRepository(client, tableName),
	}
}

// MemoryStores returns stores backed by st.
func MemoryStores(st *memstore.Store) Stores {
	return Stores{Profiles: st, Messages: st, Links: st, Conversations: st}
}

// Services is the assembled service graph.
type Services struct {
	Stores       Stores
	Directory    *profile.Directory
	Mailbox      *mailbox.Service
	Threads      *thread.Builder
	Composer     *compose.Composer
	Personas     *persona.Generator
	Orchestrator *orchestrator.Orchestrator
	Dispatcher   *taskqueue.Dispatcher
}

// New wires the services over stores. model answers persona and reply
// drafts; tasks receives follow-up work.
func New(cfg *config.Config, stores Stores, model conversation.ObjectGenerator, tasks taskqueue.Publisher, logger *slog.Logger) *Services {
	dir := profile.NewDirectory(stores.Profiles, tasks, logger)
	mb := mailbox.NewService(stores.Messages, stores.Profiles, logger)
	threads := thread.NewBuilder(stores.Messages, stores.Profiles, logger)
	personas := persona.NewGenerator(stores.Profiles, model, cfg.Model.Timeout, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Messages: stores.Messages,
		Profiles: stores.Profiles,
		Linker:   agentthread.NewLinker(stores.Links, stores.Conversations, logger),
		Threads:  threads,
		Drafter:  conversation.NewAgent(stores.Conversations, model),
		Mailer:   mb,
		Tasks:    tasks,
		Logger:   logger,
	}, orchestrator.Config{
		MaxRepliesPerMessage: cfg.Orchestrator.MaxRepliesPerMessage,
		MaxThreadMessages:    cfg.Orchestrator.MaxThreadMessages,
		TranscriptLimit:      cfg.Orchestrator.TranscriptLimit,
		ModelTimeout:         cfg.Model.Timeout,
	})

	return &Services{
		Stores:       stores,
		Directory:    dir,
		Mailbox:      mb,
		Threads:      threads,
		Composer:     compose.New(dir, mb, tasks, logger),
		Personas:     personas,
		Orchestrator: orch,
		Dispatcher:   orchestrator.NewDispatcher(orch, personas),
	}
}

// NewModel returns the Bedrock-backed model generator.
func NewModel(cfg *config.Config, awsCfg aws.Config) *conversation.Generator {
	return conversation.NewGenerator(conversation.NewBedrockClient(awsCfg), conversation.Config{
		ModelID:   cfg.Model.ID,
		MaxTokens: cfg.Model.MaxTokens,
	})
}

// NewPublisher returns the publisher for the configured queue backend. The
// returned close function releases its connection.
func NewPublisher(_ context.Context, cfg *config.Config, awsCfg aws.Config) (taskqueue.Publisher, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Queue.Backend {
	case config.QueueBackendSQS:
		return taskqueue.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.Queue.URL), noop, nil
	case config.QueueBackendAsynq:
		client, err := taskqueue.NewAsynqClient(cfg.Queue.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return taskqueue.NewAsynqPublisher(client), client.Close, nil
	case config.QueueBackendMemory:
		return taskqueue.NewMemoryQueue(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}
