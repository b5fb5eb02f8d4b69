package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/codefionn/shmchat/internal/cli"
	"github.com/codefionn/shmchat/internal/config"
	"github.com/codefionn/shmchat/internal/debugserver"
	"github.com/codefionn/shmchat/internal/ipcerr"
	"github.com/codefionn/shmchat/internal/lockfile"
	"github.com/codefionn/shmchat/internal/logger"
	"github.com/codefionn/shmchat/internal/session"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) (err error) {
	inv, err := parseArgs(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(inv)
	if err != nil {
		return err
	}

	if initErr := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	shmKey, semKey := cfg.Keys()
	logger.Info("shmchat %s starting: shm=%#x sem=%#x namespace=%q", inv.command, shmKey, semKey, cfg.Namespace)

	prof := &debugserver.Profiler{CPUProfile: inv.cpuProfile, HeapProfile: inv.memProfile}
	if err := prof.Start(); err != nil {
		return err
	}
	defer func() {
		if perr := prof.Stop(); perr != nil {
			logger.Warn("profiling: %v", perr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch inv.command {
	case cmdChat:
		err = runChat(ctx, cfg)
	case cmdStatus:
		err = runStatus(ctx, cfg, stdout)
	case cmdDump:
		err = runDump(cfg, inv.dumpPath, inv.dumpFormat, stdout)
	case cmdDestroy:
		err = runDestroy(cfg, inv.force, stdout)
	}

	// an interrupt is a normal way to leave a blocked recv
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func loadConfig(inv *invocation) (*config.Config, error) {
	path := inv.configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	if inv.namespace != "" {
		cfg.Namespace = inv.namespace
	}
	if inv.debugAddr != "" {
		cfg.DebugAddr = inv.debugAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func sessionOptions(cfg *config.Config) (session.Options, error) {
	perm, err := cfg.FileMode()
	if err != nil {
		return session.Options{}, err
	}
	shmKey, semKey := cfg.Keys()
	return session.Options{
		ShmKey:       shmKey,
		SemKey:       semKey,
		Perm:         perm,
		PollInterval: cfg.PollInterval(),
	}, nil
}

func openSession(cfg *config.Config) (*session.Session, error) {
	opts, err := sessionOptions(cfg)
	if err != nil {
		return nil, err
	}
	return session.Open(opts)
}

// runChat runs the interactive loop, with the debug server beside it when
// configured. Whichever ends first stops the other.
func runChat(ctx context.Context, cfg *config.Config) error {
	sess, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Printf("[main] Starting interactive process, pid=%d\n", sess.PID())
	defer fmt.Printf("[main] exiting pid=%d\n", sess.PID())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.DebugAddr != "" {
		srv := debugserver.New(cfg.DebugAddr, sess)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return cli.New(sess, cli.TerminalOptions()).Run(gctx)
	})

	err = g.Wait()
	if ipcerr.IsFatal(err) {
		logger.Error("IPC failure, terminating: %v", err)
	}
	return err
}

func runStatus(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	sess, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	opts := cli.TerminalOptions()
	opts.Out = stdout
	return cli.New(sess, opts).Exec(ctx, "status")
}

func runDump(cfg *config.Config, path, format string, stdout io.Writer) error {
	sess, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	st, err := sess.Status()
	if err != nil {
		return err
	}

	if path == "" || path == "-" {
		return debugserver.Encode(stdout, format, st)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}
	if err := debugserver.Encode(f, format, st); err != nil {
		f.Close()
		return fmt.Errorf("write dump: %w", err)
	}
	return f.Close()
}

// runDestroy removes both IPC objects. The lockfile keeps two operators from
// racing, and a segment that is still mapped is left alone unless forced.
func runDestroy(cfg *config.Config, force bool, stdout io.Writer) error {
	lock := lockfile.New(cfg.LockPath)
	if err := lock.TryAcquire(); err != nil {
		return fmt.Errorf("another destroy is in progress: %w", err)
	}
	defer lock.Release()

	shmKey, semKey := cfg.Keys()
	n, err := session.Attachments(shmKey)
	if err != nil {
		return fmt.Errorf("inspect segment %#x: %w", shmKey, err)
	}
	if n > 0 && !force {
		return fmt.Errorf("segment %#x is still attached by %d process(es); use -force to remove it anyway", shmKey, n)
	}

	if err := session.Remove(shmKey, semKey); err != nil {
		return err
	}
	logger.Info("destroyed shm=%#x sem=%#x (attachments=%d, force=%v)", shmKey, semKey, n, force)
	fmt.Fprintf(stdout, "[ok] removed segment %#x and semaphore set %#x\n", shmKey, semKey)
	return nil
}
