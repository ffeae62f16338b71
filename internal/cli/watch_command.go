package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/ctxtree/internal/metrics"
	"github.com/temirov/ctxtree/internal/output"
	"github.com/temirov/ctxtree/internal/services/filemap"
	"github.com/temirov/ctxtree/internal/services/notifier"
	"github.com/temirov/ctxtree/internal/services/watcher"
	"github.com/temirov/ctxtree/internal/tokenizer"
	"github.com/temirov/ctxtree/internal/types"
	"github.com/temirov/ctxtree/internal/utils"
)

const (
	watchUse              = "watch [root]"
	watchAlias            = "w"
	watchShortDescription = "keep the tree model live and print it on every change (" + watchAlias + ")"
	watchLongDescription  = `Build the tree model of a directory, watch it for changes and print the
updated tree after every quiet period. Runs until interrupted.`
	watchUsageExample = `  # Watch the current directory with a one second quiet period
  ctxtree watch --debounce 1s

  # Serve Prometheus metrics and keep a rotating log file
  ctxtree watch --metrics-address :9090 --log-file /tmp/ctxtree.log ./project`

	debounceFlagName              = "debounce"
	debounceFlagDescription       = "quiet period before the tree is printed"
	batchWindowFlagName           = "batch-window"
	batchWindowFlagDescription    = "window for grouping raw filesystem events into one batch"
	detailWorkersFlagName         = "detail-workers"
	detailWorkersFlagDescription  = "concurrent file classification workers (0 selects the CPU count)"
	logFileFlagName               = "log-file"
	logFileFlagDescription        = "also write JSON logs to this rotating file"
	metricsAddressFlagName        = "metrics-address"
	metricsAddressFlagDescription = "serve Prometheus metrics on this address"

	metricsPath              = "/metrics"
	metricsShutdownTimeout   = 5 * time.Second
	metricsReadHeaderTimeout = 5 * time.Second

	logMessageMetricsServing = "serving metrics"
	logMessageRenderFailed   = "rendering tree failed"
	logMessageWatchStopped   = "watch stopped"
	logFieldAddress          = "address"
)

type watchOptions struct {
	debounce       time.Duration
	batchWindow    time.Duration
	detailWorkers  int
	logFile        string
	metricsAddress string
}

func (options watchOptions) resolve(command *cobra.Command, configured watchOptions) watchOptions {
	resolved := options
	if !command.Flags().Changed(debounceFlagName) && configured.debounce > 0 {
		resolved.debounce = configured.debounce
	}
	if !command.Flags().Changed(batchWindowFlagName) && configured.batchWindow > 0 {
		resolved.batchWindow = configured.batchWindow
	}
	if !command.Flags().Changed(detailWorkersFlagName) && configured.detailWorkers > 0 {
		resolved.detailWorkers = configured.detailWorkers
	}
	if !command.Flags().Changed(logFileFlagName) && configured.logFile != "" {
		resolved.logFile = configured.logFile
	}
	if !command.Flags().Changed(metricsAddressFlagName) && configured.metricsAddress != "" {
		resolved.metricsAddress = configured.metricsAddress
	}
	return resolved
}

// createWatchCommand returns the watch subcommand.
func createWatchCommand(options *globalOptions) *cobra.Command {
	var pathConfiguration pathOptions
	var renderConfiguration renderOptions
	var watchConfiguration watchOptions

	watchCommand := &cobra.Command{
		Use:     watchUse,
		Aliases: []string{watchAlias},
		Short:   watchShortDescription,
		Long:    watchLongDescription,
		Example: watchUsageExample,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			applicationConfiguration, configurationError := options.loadConfiguration()
			if configurationError != nil {
				return configurationError
			}
			configured := applicationConfiguration.Watch
			resolvedRender, renderError := renderConfiguration.resolve(command, configured.Format, configured.Tokens)
			if renderError != nil {
				return renderError
			}
			configuredWatch := watchOptions{
				debounce:       configured.Debounce,
				batchWindow:    configured.BatchWindow,
				logFile:        configured.LogFile,
				metricsAddress: configured.MetricsAddress,
			}
			if configured.DetailWorkers != nil {
				configuredWatch.detailWorkers = *configured.DetailWorkers
			}
			resolvedWatch := watchConfiguration.resolve(command, configuredWatch)
			scanWorkers := 0
			if configured.ScanWorkers != nil {
				scanWorkers = *configured.ScanWorkers
			}

			validatedRoot, rootError := resolveRoot(arguments)
			if rootError != nil {
				return rootError
			}
			root := validatedRoot.AbsolutePath
			logger, loggerError := utils.NewRotatingLogger(resolvedWatch.logFile)
			if loggerError != nil {
				return loggerError
			}
			defer func() { _ = logger.Sync() }()

			counter, resolvedModel, counterError := tokenizer.NewCounter(tokenizer.Config{Model: resolvedRender.model})
			if counterError != nil {
				return counterError
			}

			signalContext, stopSignals := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stopSignals()

			fileWatcher := watcher.NewService(logger, resolvedWatch.batchWindow)
			service := filemap.NewService(filemap.Options{
				Logger:         logger,
				Patterns:       newIgnoreSource(logger, options, root, pathConfiguration.resolve(command, configured.Paths)),
				Counter:        counter,
				Watcher:        fileWatcher,
				DebounceWindow: resolvedWatch.debounce,
				DetailWorkers:  resolvedWatch.detailWorkers,
				ScanWorkers:    scanWorkers,
			})

			var outputMutex sync.Mutex
			outputWriter := command.OutOrStdout()
			service.OnTreeChanged(func(snapshot types.TreeSnapshot) {
				rendered, renderError := output.RenderSnapshot(snapshot, resolvedRender.format, resolvedModel)
				if renderError != nil {
					logger.Warn(logMessageRenderFailed, zap.Error(renderError))
					return
				}
				outputMutex.Lock()
				defer outputMutex.Unlock()
				_ = writeRendered(outputWriter, rendered)
			})

			group, groupContext := errgroup.WithContext(signalContext)
			if resolvedWatch.metricsAddress != "" {
				serveMetrics(groupContext, group, logger, resolvedWatch.metricsAddress)
			}
			group.Go(func() error {
				if _, watchError := service.StartWatching(groupContext, root); watchError != nil {
					return watchError
				}
				<-groupContext.Done()
				return nil
			})

			waitError := group.Wait()
			closeError := service.Close()
			logger.Info(logMessageWatchStopped)
			if waitError != nil {
				return waitError
			}
			return closeError
		},
	}

	addPathFlags(watchCommand, &pathConfiguration)
	addRenderFlags(watchCommand, &renderConfiguration)
	watchCommand.Flags().DurationVar(&watchConfiguration.debounce, debounceFlagName, notifier.DefaultWindow, debounceFlagDescription)
	watchCommand.Flags().DurationVar(&watchConfiguration.batchWindow, batchWindowFlagName, watcher.DefaultBatchWindow, batchWindowFlagDescription)
	watchCommand.Flags().IntVar(&watchConfiguration.detailWorkers, detailWorkersFlagName, 0, detailWorkersFlagDescription)
	watchCommand.Flags().StringVar(&watchConfiguration.logFile, logFileFlagName, "", logFileFlagDescription)
	watchCommand.Flags().StringVar(&watchConfiguration.metricsAddress, metricsAddressFlagName, "", metricsAddressFlagDescription)
	return watchCommand
}

// serveMetrics runs the Prometheus endpoint until ctx is done.
func serveMetrics(ctx context.Context, group *errgroup.Group, logger *zap.Logger, address string) {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, metrics.Handler())
	server := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	group.Go(func() error {
		logger.Info(logMessageMetricsServing, zap.String(logFieldAddress, address))
		if serveError := server.ListenAndServe(); serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			return serveError
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownContext, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownContext)
	})
}
