package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeusync/statesync/internal/injector"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Address   string
	Transport string
	Shutdown  time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Run the replication server until interrupted",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Address, "addr", "", "listen address, overrides network.address")
	cmd.Flags().StringVar(&opts.Transport, "transport", "", "websocket or quic, overrides network.transport")
	cmd.Flags().DurationVar(&opts.Shutdown, "shutdown-timeout", 5*time.Second, "graceful shutdown timeout")

	return cmd
}

func serve(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.Load()
	if err != nil {
		return err
	}
	if opts.Address != "" {
		cfg.Network.Address = opts.Address
	}
	if opts.Transport != "" {
		cfg.Network.Transport = opts.Transport
	}
	if err = cfg.Validate(); err != nil {
		return err
	}

	srv, cleanup, err := injector.InitializeServer(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer cleanup()
	defer func() { _ = srv.Close() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s (%s)\n", srv.Addr(), cfg.Network.Transport)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.Shutdown)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
