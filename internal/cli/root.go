// Package cli implements the deadnet command line: seeding personas,
// sending mail as a human, reading folders and threads, persona outreach and
// the asynq task worker.
package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ryandotelliott/dead-internet/internal/conversation"
	"github.com/ryandotelliott/dead-internet/internal/memstore"
)

// Store backends selectable with --store.
const (
	storeDynamoDB = "dynamodb"
	storeMemory   = "memory"
)

// Option customizes the command tree.
type Option func(*runner)

// WithModel replaces the Bedrock model.
func WithModel(m conversation.ObjectGenerator) Option {
	return func(r *runner) { r.model = m }
}

// WithMemoryStore sets the store used by --store memory.
func WithMemoryStore(st *memstore.Store) Option {
	return func(r *runner) { r.memory = st }
}

// runner carries state shared by all commands.
type runner struct {
	v      *viper.Viper
	model  conversation.ObjectGenerator
	memory *memstore.Store
}

func (r *runner) logger() *slog.Logger {
	opts := []logging.Option{logging.WithOutput(os.Stderr)}
	if r.v.GetBool("verbose") {
		opts = append(opts, logging.WithLevel(slog.LevelDebug))
	}
	return logging.New(opts...)
}

// Execute runs the deadnet command.
func Execute() error {
	return NewRoot().Execute()
}

// NewRoot builds the command tree.
func NewRoot(opts ...Option) *cobra.Command {
	r := &runner{v: viper.New()}
	for _, opt := range opts {
		opt(r)
	}

	root := &cobra.Command{
		Use:           "deadnet",
		Short:         "Simulated corporate email where unknown addresses answer back",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("store", storeDynamoDB, "storage backend: dynamodb or memory")
	flags.String("table", "", "DynamoDB table name")
	flags.String("queue", "", "task queue backend: sqs, asynq or memory")
	flags.String("redis-url", "", "Redis URL for the asynq backend")
	flags.Bool("verbose", false, "debug logging")

	r.v.SetEnvPrefix("DEADNET")
	r.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	r.v.AutomaticEnv()
	_ = r.v.BindPFlags(flags)

	root.AddCommand(
		r.seedCmd(),
		r.sendCmd(),
		r.inboxCmd(),
		r.threadCmd(),
		r.outreachCmd(),
		r.simulateCmd(),
		r.workerCmd(),
	)
	return root
}
