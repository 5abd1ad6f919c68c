// Command ingestor is the market-data gateway: it binds a UDP
// multicast or unicast socket, filters and decodes SBE frames, and
// publishes them into a shared-memory ring that downstream strategy
// processes attach to read-only. It also runs its own ring consumer
// to keep the OFI/VPIN/Hawkes indicator engine live and to periodically
// stream a stats snapshot to an optional notify socket.
//
// Exit codes: 0 clean shutdown, 2 bind or shared-memory init failure,
// 3 schema registry load failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/Charliesj0129/shijim/internal/config"
	"github.com/Charliesj0129/shijim/internal/indicator"
	"github.com/Charliesj0129/shijim/internal/notify"
	"github.com/Charliesj0129/shijim/internal/sbe"
	"github.com/Charliesj0129/shijim/internal/shm"
	"github.com/Charliesj0129/shijim/internal/transport"
)

// Well-known template ids this demonstration decodes; a deployment with
// a richer schema registers more templates and teaches the consumer
// loop about them the same way.
const (
	templateQuote uint16 = 1
	templateTrade uint16 = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flagSet := flag.NewFlagSet("ingestor", flag.ContinueOnError)

	configPath := flagSet.String("config", "", "path to a TOML config file")
	envPath := flagSet.String("env", "", "path to a .env file (default .env, missing is not an error)")
	bind := flagSet.String("bind", "", "override transport.address, e.g. 239.1.1.1:30101")
	mode := flagSet.String("mode", "", "override transport.mode (normal|testing)")
	iface := flagSet.String("interface", "", "override transport.interface")
	shmName := flagSet.String("shm-name", "", "override shm.name")
	slotSize := flagSet.Int("slot-size", 0, "override shm.slot_size")
	slotCount := flagSet.Int("slot-count", 0, "override shm.slot_count")
	schemaPath := flagSet.String("schema", "", "path to a JSON schema registry description")
	notifySocket := flagSet.String("notify-socket", "", "unix socket path to stream stats to (optional)")
	logLevel := flagSet.String("log-level", "", "override logging.level")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ingestor:", err)
		return 2
	}
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintln(os.Stderr, "ingestor:", err)
		return 2
	}
	cfg.ApplyEnv()
	applyFlagOverrides(&cfg, flagSet, bind, mode, iface, shmName, slotSize, slotCount, logLevel)

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ingestor: logger:", err)
		return 2
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("ingestor starting",
		zap.String("address", cfg.Transport.Address),
		zap.String("mode", cfg.Transport.Mode),
		zap.String("shm_name", cfg.Shm.Name))

	registry := sbe.LoadRegistry(nil)
	if *schemaPath != "" {
		data, err := os.ReadFile(*schemaPath)
		if err != nil {
			logger.Error("schema load failed", zap.Error(err))
			return 3
		}
		registry = sbe.LoadRegistry(data)
		logger.Info("schema registry loaded", zap.Int("templates", registry.Len()))
	}

	region, err := shm.Create(cfg.Shm.Name, shm.CreateOptions{
		SlotSize:  uint16(cfg.Shm.SlotSize),
		SlotCount: uint32(cfg.Shm.SlotCount),
		Force:     true,
	})
	if err != nil {
		logger.Error("shm create failed", zap.Error(err))
		return 2
	}
	defer region.Close()

	policy := shm.PolicyTruncate
	if cfg.Shm.TruncationPolicy == "drop" {
		policy = shm.PolicyDrop
	}
	writer := shm.NewWriter(region, policy)

	recvMode := transport.ModeNormal
	if cfg.Transport.Mode == "testing" {
		recvMode = transport.ModeTesting
	}
	receiver := transport.NewReceiver(transport.Config{
		Address:         cfg.Transport.Address,
		Interface:       cfg.Transport.Interface,
		Mode:            recvMode,
		RecvBufferBytes: cfg.Transport.RecvBufferBytes,
	}, logger)

	filter := sbe.NewFilter(nil)

	ind := newIndicatorSet(cfg.Indicator)

	var publisher *notify.Publisher
	if *notifySocket != "" {
		publisher = notify.NewPublisher(*notifySocket, logger)
		defer publisher.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return receiver.Run(gctx, func(payload []byte, recvNs uint64) {
			h, admit := filter.Admit(payload)
			if !admit {
				return
			}
			if _, err := writer.Publish(payload); err != nil {
				logger.Warn("publish failed", zap.Uint16("template_id", h.TemplateID), zap.Error(err))
			}
		})
	})

	g.Go(func() error {
		runConsumer(gctx, region, registry, ind, logger)
		return nil
	})

	if publisher != nil {
		g.Go(func() error {
			runStatsLoop(gctx, receiver, filter, registry, writer, publisher, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// errgroup cancels gctx the instant any goroutine returns a
		// non-nil error, so gctx.Err() is always set here and can't
		// distinguish a bind failure from a clean shutdown. Key off
		// the sentinel Run wraps its bind error in instead.
		if errors.Is(err, transport.ErrBindFailed) {
			logger.Error("ingestor failed to bind", zap.Error(err))
			return 2
		}
		if !errors.Is(err, context.Canceled) {
			logger.Error("ingestor exited with error", zap.Error(err))
			return 2
		}
	}

	logger.Info("ingestor stopped")
	return 0
}

func applyFlagOverrides(
	cfg *config.Config,
	flagSet *flag.FlagSet,
	bind, mode, iface, shmName *string,
	slotSize, slotCount *int,
	logLevel *string,
) {
	if flagSet.Changed("bind") {
		cfg.Transport.Address = *bind
	}
	if flagSet.Changed("mode") {
		cfg.Transport.Mode = *mode
	}
	if flagSet.Changed("interface") {
		cfg.Transport.Interface = *iface
	}
	if flagSet.Changed("shm-name") {
		cfg.Shm.Name = *shmName
	}
	if flagSet.Changed("slot-size") {
		cfg.Shm.SlotSize = *slotSize
	}
	if flagSet.Changed("slot-count") {
		cfg.Shm.SlotCount = *slotCount
	}
	if flagSet.Changed("log-level") {
		cfg.Logging.Level = *logLevel
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

type indicatorSet struct {
	ofi    *indicator.OFI
	vpin   *indicator.VPIN
	hawkes *indicator.Hawkes
}

func newIndicatorSet(cfg config.IndicatorConfig) *indicatorSet {
	return &indicatorSet{
		ofi:  indicator.NewOFI(),
		vpin: indicator.NewVPIN(indicator.VPINConfig{BucketVolume: cfg.VPINBucketVolume, WindowN: cfg.VPINWindowN}),
		hawkes: indicator.NewHawkes(indicator.HawkesParams{
			Mu:    cfg.HawkesMu,
			Alpha: cfg.HawkesAlpha,
			Beta:  cfg.HawkesBeta,
		}),
	}
}

// runConsumer is the ingestor's own downstream reader: it attaches to
// the ring it just created and keeps the indicator engine live,
// demonstrating the full C1-C7 pipeline in one process. A strategy
// process in production would instead run this against an externally
// attached Region.
func runConsumer(ctx context.Context, region *shm.Region, registry *sbe.Registry, ind *indicatorSet, logger *zap.Logger) {
	reader := shm.NewReader(region, shm.StartLatest)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view, status := reader.Next()
		switch status {
		case shm.StatusOK:
			processFrame(view.Payload, registry, ind, logger)
		case shm.StatusOverrun:
			logger.Warn("consumer overrun", zap.Uint64("gap", view.Gap))
		case shm.StatusEmpty:
		}
	}
}

func processFrame(buf []byte, registry *sbe.Registry, ind *indicatorSet, logger *zap.Logger) {
	d := sbe.NewDecoder(buf)
	h, err := d.Header()
	if err != nil {
		return
	}
	meta, err := registry.Lookup(h)
	if err != nil {
		return
	}
	root, err := d.RootBlock(meta.BlockLength)
	if err != nil {
		return
	}

	switch h.TemplateID {
	case templateQuote:
		bidPrice, err1 := root.Decimal64()
		bidSize, err2 := root.Decimal64()
		askPrice, err3 := root.Decimal64()
		askSize, err4 := root.Decimal64()
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return
		}
		ofi := ind.ofi.Update(indicator.BBO{
			BidPrice: bidPrice.Float64(), BidSize: bidSize.Float64(),
			AskPrice: askPrice.Float64(), AskSize: askSize.Float64(),
		})
		logger.Debug("ofi updated", zap.Float64("ofi", ofi))

	case templateTrade:
		price, err1 := root.Decimal64()
		qty, err2 := root.Decimal64()
		side, err3 := root.Uint8()
		if err1 != nil || err2 != nil || err3 != nil {
			return
		}
		tradeSide := indicator.SideUnknown
		if side == 1 {
			tradeSide = indicator.SideBuy
		} else if side == 2 {
			tradeSide = indicator.SideSell
		}
		ind.vpin.Update(price.Float64(), qty.Float64(), tradeSide)
		lambda := ind.hawkes.Update(float64(time.Now().UnixNano()))
		logger.Debug("trade processed", zap.Float64("vpin", ind.vpin.Value()), zap.Float64("hawkes_lambda", lambda))
	}
}

func runStatsLoop(
	ctx context.Context,
	receiver *transport.Receiver,
	filter *sbe.Filter,
	registry *sbe.Registry,
	writer *shm.Writer,
	publisher *notify.Publisher,
	logger *zap.Logger,
) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := notify.StatsSnapshot{
			TimestampNs: uint64(time.Now().UnixNano()),
			Transport:   receiver.Stats(),
			Filter:      filter.Stats(),
			Registry:    registry.Stats(),
			Writer:      writer.Stats(),
		}
		if err := publisher.PublishStats(snap); err != nil {
			logger.Warn("stats publish failed", zap.Error(err))
		}
	}
}
