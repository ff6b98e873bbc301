package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/hoststack/internal/config"
	"firestige.xyz/hoststack/internal/link"
	"firestige.xyz/hoststack/internal/link/afpacket"
	"firestige.xyz/hoststack/internal/link/ethernet"
	"firestige.xyz/hoststack/internal/link/pcapfile"
	"firestige.xyz/hoststack/internal/link/sniffer"
	"firestige.xyz/hoststack/internal/log"
	"firestige.xyz/hoststack/internal/metrics"
	"firestige.xyz/hoststack/internal/stack"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stack in foreground",
	Long: `Run the host stack in foreground.

The stack will:
  1. Load configuration from the config file
  2. Initialize logging and metrics
  3. Open the link (pcap replay/record or AF_PACKET)
  4. Process inbound frames until the pcap input is exhausted
  5. Handle SIGINT and SIGTERM for graceful shutdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := log.Init(&cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// frameLink is where frames come from and go to.
type frameLink struct {
	source  link.FrameSource
	sink    link.FrameSink
	closers []io.Closer
}

func (l *frameLink) Close() error {
	var errs []error
	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// discard drops outbound frames when no pcap output is configured.
type discard struct{}

func (discard) WritePacketData([]byte) error { return nil }

func openLink(cfg *config.LinkConfig) (*frameLink, error) {
	switch cfg.Type {
	case config.LinkAFPacket:
		h, err := afpacket.Open(afpacket.Config{
			Device:       cfg.AFPacket.Device,
			SnapLen:      cfg.AFPacket.SnapLen,
			BufferSizeMB: cfg.AFPacket.BufferSizeMB,
			Timeout:      cfg.AFPacket.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return &frameLink{source: h, sink: h, closers: []io.Closer{h}}, nil

	case config.LinkPcap:
		r, err := pcapfile.Open(cfg.Pcap.Input)
		if err != nil {
			return nil, err
		}
		l := &frameLink{source: r, sink: discard{}, closers: []io.Closer{r}}
		if cfg.Pcap.Output != "" {
			w, err := pcapfile.Create(cfg.Pcap.Output)
			if err != nil {
				r.Close()
				return nil, err
			}
			l.sink = w
			l.closers = append(l.closers, w)
		}
		return l, nil
	}
	return nil, fmt.Errorf("unsupported link type %q", cfg.Type)
}

// run builds the stack described by cfg and processes frames until the
// source is exhausted or ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	logger := log.GetLogger()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Warn("metrics server shutdown")
			}
		}()
	}

	fl, err := openLink(&cfg.Link)
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}
	defer func() {
		if err := fl.Close(); err != nil {
			logger.WithError(err).Warn("close link")
		}
	}()

	iface := cfg.LocalInterface()
	eth, err := ethernet.New(fl.sink, ethernet.Options{
		Interface:  iface,
		ARPTimeout: cfg.ARP.Timeout,
		Name:       cfg.Link.Type,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	var ep link.Endpoint = eth
	if logger.IsDebugEnabled() {
		ep = sniffer.New(eth, logger)
	}

	s, err := stack.New(ep, stack.Options{
		Interface:  iface,
		TTL:        cfg.IPv4.TTL,
		AssignIDs:  cfg.IPv4.AssignIDs,
		Reassembly: cfg.Reassembly(),
		LinkName:   cfg.Link.Type,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("build stack: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	err = eth.Serve(ctx, fl.source)
	cancel()
	<-done

	if errors.Is(err, context.Canceled) {
		logger.Info("stack stopped")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("link input exhausted")
	return nil
}
