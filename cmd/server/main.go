package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"venue/api"
	"venue/config"
	"venue/domain/orderbook"
	"venue/domain/risk"
	"venue/engine"
	"venue/infra/kafka"
	"venue/infra/memory"
	"venue/infra/outbox"
	"venue/infra/sequence"
	"venue/infra/wal"
	"venue/jobs/broadcaster"
	"venue/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := util.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	limits, err := cfg.RiskLimits()
	if err != nil {
		return err
	}

	w, err := wal.Open(wal.Config{
		Dir:         cfg.WALDir,
		SegmentSize: cfg.WALSegmentSize,
		Sync:        cfg.WALSync,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	ob, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		return err
	}
	defer ob.Close()

	pool := memory.NewPool(func() *orderbook.Order { return &orderbook.Order{} })
	manager := engine.NewManager(cfg.Instruments, pool)
	riskEngine := risk.NewEngine(limits, risk.NewLedger())
	seq := sequence.New(0)

	hub := api.NewHub(log)
	publishers := []engine.TickPublisher{hub}
	if cfg.KafkaEnabled() {
		ticks := kafka.NewProducer(cfg.KafkaBrokers, cfg.TickTopic)
		defer ticks.Close()
		publishers = append(publishers, ticks)
	}

	core := engine.NewCore(log, manager, riskEngine, seq, pool, w,
		engine.WithOutbox(ob),
		engine.WithTickPublisher(fanout(publishers)),
	)

	if err := core.Recover(cfg.SnapshotDir, cfg.WALDir); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go core.RunSnapshotJob(ctx, cfg.SnapshotDir, cfg.SnapshotInterval)

	if cfg.KafkaEnabled() {
		bc, err := broadcaster.New(log, ob, cfg.KafkaBrokers, cfg.TradeTopic, cfg.BroadcastInterval)
		if err != nil {
			return err
		}
		defer bc.Close()
		go bc.Run(ctx)
	} else {
		log.Warn("no kafka brokers configured, trade feed disabled")
	}

	srv := api.NewServer(log, core, hub, cfg.HTTPAddr)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

// fanout delivers each tick to every publisher; the first error wins but
// does not stop the others.
type fanout []engine.TickPublisher

func (f fanout) Send(ctx context.Context, key, value []byte) error {
	var first error
	for _, p := range f {
		if err := p.Send(ctx, key, value); err != nil && first == nil {
			first = err
		}
	}
	return first
}
