package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opal-lang/skonfig/internal/cache"
	"github.com/opal-lang/skonfig/internal/codegen"
	"github.com/opal-lang/skonfig/internal/configurator"
	"github.com/opal-lang/skonfig/internal/engine"
	"github.com/opal-lang/skonfig/internal/explorer"
	"github.com/opal-lang/skonfig/internal/manifest"
	"github.com/opal-lang/skonfig/internal/messaging"
	"github.com/opal-lang/skonfig/internal/object"
	"github.com/opal-lang/skonfig/internal/settings"
	"github.com/opal-lang/skonfig/internal/shquote"
	"github.com/opal-lang/skonfig/internal/sshprobe"
	"github.com/opal-lang/skonfig/internal/transport"
	"github.com/opal-lang/skonfig/internal/typeset"
)

// flags holds every CLI-settable knob, mirroring internal/settings.Settings
// one field at a time so Merge can tell "flag given" from "flag absent".
type flags struct {
	jobs             int
	remoteExec       string
	remoteCopy       string
	archive          string
	cachePathPattern string
	confDir          []string
	verbose          int
	dryRun           bool
}

// runDriver builds the cobra root command and executes it against args.
func runDriver(ctx context.Context, args []string) error {
	var f flags

	root := &cobra.Command{
		Use:           "skonfig",
		Short:         "Agentless configuration management engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&f.jobs, "jobs", 0, "parallel workers (0 = settings/default)")
	root.PersistentFlags().StringVar(&f.remoteExec, "remote-exec", "", "command used for remote execution (behaves like ssh)")
	root.PersistentFlags().StringVar(&f.remoteCopy, "remote-copy", "", "command used for remote file transfer (behaves like scp)")
	root.PersistentFlags().StringVar(&f.archive, "archive", "", "archive mode: none, gzip, or zstd")
	root.PersistentFlags().StringVar(&f.cachePathPattern, "cache-path-pattern", "", "cache entry path pattern (%h %N %P + strftime)")
	root.PersistentFlags().StringArrayVar(&f.confDir, "conf-dir", nil, "configuration directory (repeatable, last wins)")
	root.PersistentFlags().BoolVar(&f.dryRun, "dry-run", false, "run gencode but suppress code execution")
	root.PersistentFlags().CountVarP(&f.verbose, "verbose", "v", "increase log verbosity (-v, -vv)")

	root.AddCommand(&cobra.Command{
		Use:   "config HOST",
		Short: "Converge HOST to its declared configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), args[0], f, true)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "install HOST",
		Short: "Converge HOST, including types marked install",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), args[0], f, false)
		},
	})

	root.SetArgs(args)
	ctx, stop := signalContext(ctx)
	defer stop()
	return root.ExecuteContext(ctx)
}

// signalContext cancels its context on SIGINT, SIGTERM or SIGHUP, the
// three signals spec.md §4.7's process-pool design responds to — adapted
// here to a single context cancellation instead of killing a process
// group, since the configurator's workers are goroutines (SPEC_FULL §9).
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}

// logLevel honors -v/-vv first; absent those, $SKONFIG_LOG_LEVEL, then
// fallback (cfg.LogLevel, normally "info" from settings.Default), per
// SPEC_FULL §6's "level set from -v/-vv/$SKONFIG_LOG_LEVEL".
func logLevel(verbose int, fallback string) slog.Level {
	switch {
	case verbose >= 2:
		return slog.LevelDebug
	case verbose == 1:
		return slog.LevelInfo
	}
	if env := os.Getenv("SKONFIG_LOG_LEVEL"); env != "" {
		fallback = env
	}
	switch strings.ToLower(fallback) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// runApply wires every collaborator together and drives one full run
// against host: filesystem layout, explorers, initial manifest, the
// configurator fixed-point loop, cleanup, and cache persistence
// (spec.md §4.7's algorithm, top to bottom).
func runApply(ctx context.Context, host string, f flags, ignoreInstallTypes bool) error {
	start := time.Now()

	cliSettings := settings.Settings{
		Jobs:             f.jobs,
		RemoteExec:       f.remoteExec,
		RemoteCopy:       f.remoteCopy,
		Archive:          f.archive,
		CachePathPattern: f.cachePathPattern,
		ConfDir:          f.confDir,
	}
	fileSettings, err := settings.Load(settings.ConfigPath())
	if err != nil {
		return err
	}
	cfg := settings.Merge(fileSettings, cliSettings)
	if len(cfg.ConfDir) == 0 {
		return &engine.ConfigurationError{Field: "conf-dir", Msg: "at least one --conf-dir is required"}
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(f.verbose, cfg.LogLevel)})).With("host", host)

	archiveMode, err := transport.ValidateArchiveMode(cfg.Archive)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "skonfig-run-")
	if err != nil {
		return err
	}
	log.Debug("working directory", "path", workDir)

	rt := engine.NewRuntime(host, cfg.ObjectMarker, cfg.Jobs)
	defer func() {
		if err := rt.Close(ctx); err != nil {
			log.Warn("cleanup command failed", "error", err)
		}
	}()

	binDir := filepath.Join(workDir, "bin")
	overlayDir := filepath.Join(workDir, "conf")
	globalOutDir := filepath.Join(workDir, "global")
	for _, dir := range []string{binDir, globalOutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	registry, err := typeset.NewRegistry(cfg.ConfDir, overlayDir)
	if err != nil {
		return err
	}
	if err := linkEmulators(registry, binDir); err != nil {
		return err
	}

	remoteExecArgv, err := shquote.Split(cfg.RemoteExec)
	if err != nil {
		return &engine.ConfigurationError{Field: "remote-exec", Msg: err.Error()}
	}
	remoteCopyArgv, err := shquote.Split(cfg.RemoteCopy)
	if err != nil {
		return &engine.ConfigurationError{Field: "remote-copy", Msg: err.Error()}
	}

	local := transport.NewLocal()

	sshBinary := "ssh"
	if len(remoteExecArgv) > 0 {
		sshBinary = remoteExecArgv[0]
	}
	probe := sshprobe.Probe(ctx, sshBinary, workDir, host)
	if probe.Multiplexed {
		remoteExecArgv = append(remoteExecArgv, probe.Options...)
		cleanupArgv := sshprobe.CleanupArgv(sshBinary, host, probe)
		rt.RegisterCleanup(func(ctx context.Context) error {
			_, err := local.Run(ctx, cleanupArgv, nil, transport.RunOpts{})
			return err
		})
	}

	remote := transport.NewExecRemote(host, remoteExecArgv, remoteCopyArgv, transport.ArchiveConfig{
		Enabled: true,
		Mode:    archiveMode,
	}, nil)

	remoteBase := filepath.Join("/var/lib/skonfig", cache.HostHash(host))

	store := object.NewStore(workDir, cfg.ObjectMarker)

	messagesLog, err := messaging.NewLog(filepath.Join(workDir, "messages"))
	if err != nil {
		return err
	}

	explorerSet := explorer.NewSet(remote, overlayDir, remoteBase, explorer.FixedEnv{
		TargetHost:     host,
		TargetHostname: host,
		TargetFQDN:     host,
		GlobalOutPath:  filepath.Join(remoteBase, "global_explorer"),
		FilesPath:      filepath.Join(remoteBase, "files"),
		LogLevel:       cfg.LogLevel,
	})

	globalFacts, err := explorerSet.RunGlobal(ctx)
	if err != nil {
		return err
	}
	for name, value := range globalFacts {
		if err := os.WriteFile(filepath.Join(globalOutDir, name), []byte(value+"\n"), 0o644); err != nil {
			return err
		}
	}

	manifestRunner := manifest.NewRunner(local, manifest.Env{
		EmulatorBinDir: binDir,
		TargetHost:     host,
		TargetHostname: host,
		TargetFQDN:     host,
		GlobalOutDir:   globalOutDir,
		TypeBasePath:   overlayDir,
		FilesPath:      filepath.Join(overlayDir, "files"),
		ObjectMarker:   cfg.ObjectMarker,
		LogLevel:       cfg.LogLevel,
	})
	manifestRunner.Messages = messagesLog

	codegenRunner := &codegen.Runner{
		Local:  local,
		Remote: remote,
		RemoteObjectBase: func(obj *object.Object) string {
			return filepath.Join(remoteBase, "object", obj.TypeName, obj.ID)
		},
		Env: map[string]string{
			"__target_host":         host,
			"__target_hostname":     host,
			"__target_fqdn":         host,
			"__global":              globalOutDir,
			"__cdist_object_marker": cfg.ObjectMarker,
		},
		DryRun:   f.dryRun,
		Messages: messagesLog,
	}

	core := &configurator.Core{
		Store:              store,
		Registry:           registry,
		Explorers:          explorerSet,
		Manifests:          manifestRunner,
		Codegen:            codegenRunner,
		Jobs:               cfg.Jobs,
		IgnoreInstallTypes: ignoreInstallTypes,
		Log:                log,
	}

	initialManifest := filepath.Join(overlayDir, "manifest", "init")
	if err := manifestRunner.RunInitial(ctx, initialManifest, filepath.Join(workDir, "stdout")); err != nil {
		return err
	}

	runErr := core.Run(ctx)
	if runErr != nil {
		return runErr
	}

	anyChanged := false
	for _, o := range store.All() {
		if o.CodeChanged {
			anyChanged = true
			break
		}
	}

	cacheRoot := defaultCacheRoot()
	entry, err := cache.Save(workDir, cacheRoot, cfg.CachePathPattern, host, start, cache.Meta{
		Host:        host,
		StartUnix:   start.Unix(),
		ObjectCount: len(store.All()),
		AnyChanged:  anyChanged,
	})
	if err != nil {
		return err
	}
	log.Info("run complete", "cache_entry", entry)
	return nil
}

// linkEmulators symlinks the running executable under every discovered
// type's name into binDir, the PATH-prepended directory manifests run
// under (spec.md §9's "reentrant binary for the emulator" design note).
func linkEmulators(registry *typeset.Registry, binDir string) error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	for _, t := range registry.All() {
		link := filepath.Join(binDir, t.Name)
		_ = os.Remove(link)
		if err := os.Symlink(self, link); err != nil {
			return err
		}
	}
	return nil
}

// defaultCacheRoot mirrors skonfig's own $XDG_CACHE_HOME/skonfig (falling
// back to ~/.cache/skonfig) default.
func defaultCacheRoot() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "skonfig")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "skonfig-cache")
	}
	return filepath.Join(home, ".cache", "skonfig")
}
