package cmd

import (
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dayuer/chatgw/internal/bus"
	"github.com/dayuer/chatgw/internal/directory"
	"github.com/dayuer/chatgw/internal/gateway"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and the outbound event consumer",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := a.registry(ctx)
	if err != nil {
		return err
	}
	chats, err := a.contactCenter(ctx)
	if err != nil {
		return err
	}
	store, sqlite, err := a.directoryStore(ctx)
	if err != nil {
		return err
	}
	redactor, err := a.redactor(ctx)
	if err != nil {
		return err
	}
	outSrc, smsSrc, queue, err := a.eventSources(ctx)
	if err != nil {
		return err
	}

	dir := directory.New(store, chats, cfg.Directory.TTL, a.log)
	inbound := gateway.NewInbound(registry, dir, chats, redactor, a.log)
	outbound := gateway.NewOutbound(registry, dir, a.log)

	srv := gateway.NewServer(gateway.ServerOptions{
		Addr:            net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	}, registry, inbound, a.log)
	if queue != nil {
		srv.MountEvents(gateway.NewEventIngress(queue, eventTopics(cfg), cfg.Events.HTTPToken, a.log))
	}

	a.log.Info("starting chatgw",
		zap.String("version", Version),
		zap.Strings("channels", cfg.EnabledChannels()),
		zap.String("directory", cfg.Directory.Backend),
		zap.String("events", cfg.Events.Source))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	g.Go(func() error {
		handle := bus.VisibilityFilter(cfg.Events.Visibility, outbound.Handle, a.log)
		return bus.NewConsumer("outbound", outSrc, handle, cfg.Events.Workers, a.log).
			OrderBy(gateway.ContactKey).
			Run(ctx)
	})
	if smsSrc != nil && cfg.Channels.SMS.Enabled() {
		g.Go(func() error {
			return bus.NewConsumer("sms", smsSrc, inbound.HandleNotification, cfg.Events.Workers, a.log).
				OrderBy(gateway.SenderKey).
				Run(ctx)
		})
	}
	if sqlite != nil {
		g.Go(func() error { return sqlite.RunPurge(ctx, cfg.Directory.PurgeInterval) })
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("chatgw stopped: %w", err)
	}
	a.log.Info("chatgw stopped")
	return nil
}
