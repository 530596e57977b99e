// Command aund is the file-service daemon entrypoint: it sequences
// configuration loading, component construction, and a signal-driven
// serve loop the way aund.c's main() sequences conf_init -> fs_init ->
// transport setup -> main loop -> signal teardown, replacing the
// reference's getopt/conf_lex.l parser with spf13/cobra and spf13/viper.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nabbar/golib/config"
	"github.com/nabbar/golib/internal/lifecycle"
	"github.com/nabbar/golib/internal/server"
	"github.com/nabbar/golib/internal/transport"
	"github.com/nabbar/golib/internal/transport/aun"
	"github.com/nabbar/golib/internal/typemap"
	"github.com/nabbar/golib/internal/user"
	"github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	spfcbr "github.com/spf13/cobra"
	spfpfl "github.com/spf13/pflag"
)

func main() {
	var cfgFile string

	root := &spfcbr.Command{
		Use:   "aund",
		Short: "Econet file-service daemon",
		RunE: func(cmd *spfcbr.Command, args []string) error {
			return run(cfgFile, cmd.Flags())
		},
	}
	root.Flags().StringVarP(&cfgFile, "config", "c", "", "path to the daemon's config file")
	config.RegisterFlags(root.Flags())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgFile string, flags *spfpfl.FlagSet) error {
	cfg, err := config.Load(cfgFile, flags)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.New(ctx)
	lvl := loglvl.InfoLevel
	if cfg.Debug {
		lvl = loglvl.DebugLevel
	}
	log.SetLevel(lvl)
	logFn := func() logger.Logger { return log }

	tr, err := buildTransport(cfg)
	if err != nil {
		return err
	}

	users, err := buildUsers(cfg)
	if err != nil {
		return err
	}

	types, err := buildTypeMap(cfg)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Transport:  tr,
		Users:      users,
		Types:      types,
		Root:       cfg.Root,
		DiscName:   cfg.DiscName,
		DefaultLib: cfg.DefaultLib,
		Log:        logFn,
	})

	mgr := lifecycle.New()
	mgr.Register(newTransportComponent(tr))
	mgr.Register(newServerComponent(srv))

	if serr := mgr.Start(ctx); serr != nil {
		return serr
	}

	log.Info("aund started", nil, cfg.Root, cfg.Transport)
	lifecycle.WaitNotify(ctx)

	// Cancel before Stop so Serve's receive loop already sees ctx.Done and
	// returns on its own; Stop then only has to wait for that exit and
	// release the socket, never race it.
	cancel()
	mgr.Stop()
	log.Info("aund stopped", nil)
	return nil
}

func buildTransport(cfg config.Config) (transport.Transport, error) {
	switch cfg.Transport {
	case "", "aun":
		return aun.New(), nil
	case "beebem":
		return nil, fmt.Errorf("beebem transport needs a station table, not yet exposed via the flag-driven config loader")
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func buildUsers(cfg config.Config) (user.Provider, error) {
	if cfg.PasswdFile == "" {
		return user.NewNull(cfg.Root, 0), nil
	}
	return user.NewPasswordFile(cfg.PasswdFile)
}

func buildTypeMap(cfg config.Config) (*typemap.Map, error) {
	rules := make([]typemap.Rule, 0, len(cfg.TypeMap))
	for _, r := range cfg.TypeMap {
		cr, err := typemap.CompileRule(r.Pattern, os.FileMode(r.ModeMask), os.FileMode(r.ModeValue), r.Type)
		if err != nil {
			return nil, fmt.Errorf("config: typemap rule %q: %w", r.Pattern, err)
		}
		rules = append(rules, cr)
	}
	return typemap.New(rules), nil
}

// transportComponent owns Setup/Close for the selected transport; the
// server itself no longer binds or releases any socket.
type transportComponent struct {
	tr transport.Transport
}

func newTransportComponent(tr transport.Transport) *transportComponent {
	return &transportComponent{tr: tr}
}

func (c *transportComponent) Name() string                   { return "transport" }
func (c *transportComponent) Start(ctx context.Context) error { return c.tr.Setup() }
func (c *transportComponent) Stop()                           { _ = c.tr.Close() }

// serverComponent runs Serve in the background and reports itself ready
// immediately; Stop waits for Serve to notice ctx is done and return.
type serverComponent struct {
	srv  *server.Server
	done chan struct{}
}

func newServerComponent(srv *server.Server) *serverComponent {
	return &serverComponent{srv: srv, done: make(chan struct{})}
}

func (c *serverComponent) Name() string { return "server" }

func (c *serverComponent) Start(ctx context.Context) error {
	go func() {
		defer close(c.done)
		_ = c.srv.Serve(ctx)
	}()
	return nil
}

func (c *serverComponent) Stop() {
	<-c.done
}
