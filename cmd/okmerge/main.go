package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/okmerge/internal/cfg"
	"github.com/simplesurance/okmerge/internal/eligibility"
	"github.com/simplesurance/okmerge/internal/event"
	"github.com/simplesurance/okmerge/internal/githubclt"
	"github.com/simplesurance/okmerge/internal/logfields"
	"github.com/simplesurance/okmerge/internal/mergeability"
	"github.com/simplesurance/okmerge/internal/orchestrator"
)

const appName = "okmerge"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	EnvFile     *string
	DryRun      *bool
	ShowVersion *bool
}

var args arguments

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			"",
			"path to an optional TOML configuration file, environment variables take precedence",
		),
		EnvFile: pflag.String(
			"env-file",
			"",
			"path to a dotenv file, the variables are set if they are not defined in the environment",
		),
		DryRun: pflag.Bool(
			"dry-run",
			false,
			"simulate merging and updating pull requests",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
	}

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nMerge or update pull requests labeled as ready for merging.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	if *args.EnvFile != "" {
		exitOnErr("could not load env file", cfg.LoadEnvFile(*args.EnvFile))
	}

	config := cfg.Defaults()

	if *args.ConfigFile != "" {
		var err error

		config, err = cfg.LoadFile(*args.ConfigFile)
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	exitOnErr("could not read configuration from environment", config.ApplyEnv())

	if *args.DryRun {
		config.DryRun = true
	}

	exitOnErr("invalid configuration", config.Validate())

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %s\n", err)
		os.Exit(2)
	}

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func isDefaultAPIURL(url string) bool {
	return strings.TrimSuffix(url, "/") == strings.TrimSuffix(cfg.DefaultGithubAPIURL, "/")
}

func mustInitGithubClient(config *cfg.Config) orchestrator.GithubClient {
	var opts []githubclt.Option

	if config.GithubToken == "" {
		logger.Warn(
			"github api token is empty, sending unauthenticated requests",
			logfields.Event("github_api_token_missing"),
		)
	}

	if !isDefaultAPIURL(config.GithubAPIURL) {
		opts = append(opts, githubclt.WithBaseURL(config.GithubAPIURL))
	}

	clt, err := githubclt.New(config.GithubToken, opts...)
	exitOnErr("could not create github client", err)

	if config.DryRun {
		logger.Info(
			"dry run enabled, pull requests are not merged or updated",
			logfields.Event("dry_run_enabled"),
		)

		return orchestrator.NewDryGithubClient(clt, logger)
	}

	return clt
}

func pushMetrics(url string, reg *prometheus.Registry) {
	err := push.New(url, appName).Gatherer(reg).Push()
	if err != nil {
		logger.Warn(
			"pushing metrics failed",
			logfields.Event("pushing_metrics_failed"),
			zap.String("pushgateway_url", url),
			zap.Error(err),
		)

		return
	}

	logger.Debug(
		"metrics pushed",
		logfields.Event("metrics_pushed"),
		zap.String("pushgateway_url", url),
	)
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	pollInterval, err := config.PollIntervalDuration()
	exitOnErr("invalid poll interval", err)

	logger.Info(
		"configuration loaded",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("ok_to_merge_label", config.OkToMergeLabel),
		zap.String("blacklist_labels", config.BlacklistLabels),
		logfields.BaseBranch(config.BaseBranch),
		zap.String("github_repository", config.GithubRepository),
		zap.String("github_api_url", config.GithubAPIURL),
		zap.String("github_token", hide(config.GithubToken)),
		zap.String("event_filter_query", config.EventFilterQuery),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.Bool("dry_run", config.DryRun),
		zap.Duration("poll_interval", pollInterval),
		zap.String("prometheus_pushgateway_url", config.PrometheusPushgatewayURL),
	)

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		if sig != nil {
			logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
		}

		cancelFn()
	})

	ev, err := event.Load(config.GithubEventName, config.GithubEventPath)
	if err != nil {
		logger.Error(
			"loading event failed",
			logfields.Event("event_loading_failed"),
			logfields.EventName(config.GithubEventName),
			zap.Error(err),
		)
		goodbye.Exit(context.Background(), 1)
	}

	metricsReg := prometheus.NewRegistry()

	policy := eligibility.NewPolicy(config.OkToMergeLabel, config.BlacklistLabels)
	logger.Debug(
		"eligibility policy created",
		logfields.Event("eligibility_policy_created"),
		zap.Stringer("policy", policy),
	)

	orch := orchestrator.New(
		mustInitGithubClient(config),
		policy,
		config.BaseBranch,
		orchestrator.WithMetrics(orchestrator.NewMetrics(metricsReg)),
		orchestrator.WithPollerOptions(mergeability.WithInterval(pollInterval)),
	)

	dispatcherOpts := []event.DispatcherOption{}

	if config.GithubRepository != "" {
		owner, repo, err := config.Repository()
		exitOnErr("invalid repository", err)

		dispatcherOpts = append(dispatcherOpts, event.WithDefaultRepository(owner, repo))
	}

	if config.EventFilterQuery != "" {
		filter, err := event.NewFilter(config.EventFilterQuery)
		exitOnErr("invalid event filter query", err)

		dispatcherOpts = append(dispatcherOpts, event.WithFilter(filter))
	}

	status, err := event.NewDispatcher(orch, dispatcherOpts...).Dispatch(ctx, ev)

	if config.PrometheusPushgatewayURL != "" {
		pushMetrics(config.PrometheusPushgatewayURL, metricsReg)
	}

	if err != nil {
		logger.Error(
			"handling event failed",
			append(ev.LogFields, logfields.Event("event_handling_failed"), zap.Error(err))...,
		)
		goodbye.Exit(context.Background(), 1)
	}

	logger.Info(
		"event handled",
		append(ev.LogFields, logfields.Event("event_handled"), zap.Stringer("status", status))...,
	)

	goodbye.Exit(context.Background(), 0)
}
