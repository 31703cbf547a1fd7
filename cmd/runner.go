package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/repositories"
	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
	"github.com/desertthunder/qsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// StoreOpener opens the queue store described by the database section.
type StoreOpener func(ctx context.Context, cfg shared.DatabaseConfig) (repositories.QueueStore, error)

// ServiceFactory wires a [tasks.QueueService] over an open store.
type ServiceFactory func(store repositories.QueueStore, cfg *shared.Config, logger *log.Logger, updates chan<- tasks.HeartbeatUpdate) (*tasks.QueueService, error)

// Subscription is the receiving end of a side channel.
type Subscription interface {
	Subscribe(ctx context.Context, channel string) (<-chan models.QueueChange, error)
	Close() error
}

// SubscriberFactory opens a [Subscription] from the side channel section.
type SubscriberFactory func(cfg shared.SideChannelConfig, logger *log.Logger) Subscription

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config        *shared.Config
	configPath    string
	logger        *log.Logger
	output        io.Writer
	openStore     StoreOpener
	newService    ServiceFactory
	newSubscriber SubscriberFactory
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config        *shared.Config
	ConfigPath    string
	Logger        *log.Logger
	Output        io.Writer
	OpenStore     StoreOpener
	NewService    ServiceFactory
	NewSubscriber SubscriberFactory
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.OpenStore == nil {
		opts.OpenStore = repositories.Open
	}
	if opts.NewService == nil {
		opts.NewService = tasks.NewQueueServiceFromConfig
	}
	if opts.NewSubscriber == nil {
		opts.NewSubscriber = func(cfg shared.SideChannelConfig, logger *log.Logger) Subscription {
			return services.NewRedisSubscriber(services.RedisOptsFromConfig(cfg), logger)
		}
	}

	return &Runner{
		config:        opts.Config,
		configPath:    opts.ConfigPath,
		logger:        opts.Logger,
		output:        opts.Output,
		openStore:     opts.OpenStore,
		newService:    opts.NewService,
		newSubscriber: opts.NewSubscriber,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, queueCommand, channelCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner's logger, e.g. while a TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig resolves the config for a command: the --config file when it exists, the runner's config otherwise.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	path := cmd.String("config")
	if path == "" {
		path = r.configPath
	}
	if path == "" {
		return r.config, nil
	}

	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using loaded defaults", "path", path)
		return r.config, nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	r.configPath = path
	return config, nil
}

// withService opens the store and wires a service for the duration of fn.
//
// When setup is set the side channel is connected first and shut down afterwards.
func (r *Runner) withService(ctx context.Context, cmd *cli.Command, setup bool, updates chan<- tasks.HeartbeatUpdate, fn func(*shared.Config, *tasks.QueueService) error) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := r.openStore(ctx, config.Database)
	if err != nil {
		return err
	}

	svc, err := r.newService(store, config, r.logger, updates)
	if err != nil {
		store.Close()
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			r.logger.Warn("failed to close queue service", "error", err)
		}
	}()

	if setup {
		if err := svc.Setup(ctx); err != nil {
			return err
		}
	}

	return fn(config, svc)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
