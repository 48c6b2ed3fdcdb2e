package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	infraeventbus "github.com/amirasaad/topupledger/infra/eventbus"
	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/google/uuid"
)

// RunSmokeTest sends one on-chain confirmation and one payment confirmation
// through the Kafka event bus and waits for both to come back.
func RunSmokeTest() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	brokers := strings.TrimSpace(os.Getenv("BROKERS"))
	if brokers == "" {
		brokers = "localhost:9093,localhost:9092"
	}
	cfg := infraeventbus.DefaultKafkaEventBusConfig()
	if groupID := strings.TrimSpace(os.Getenv("GROUP_ID")); groupID != "" {
		cfg.GroupID = groupID
	}
	// a private prefix keeps smoke traffic away from the saga consumers
	cfg.TopicPrefix = "topupledger.smoketest." + uuid.NewString()[:8]

	bus, err := infraeventbus.NewWithKafka(brokers, logger, cfg)
	if err != nil {
		logger.Error("connect failed", "error", err)
		return err
	}
	defer func() { _ = bus.Close() }()

	received := make(chan events.Event, 2)
	forward := func(_ context.Context, e events.Event) error {
		received <- e
		return nil
	}
	bus.Register(events.EventTypeOnChainConfirmed, forward)
	bus.Register(events.EventTypePaymentConfirmed, forward)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	requestID := uuid.NewString()
	sent := []events.Event{
		events.NewOnChainConfirmed(requestID, "0xsmoke"),
		events.NewPaymentConfirmed(events.WithGatewayTxnID("smoke-" + requestID)),
	}
	for _, e := range sent {
		if err := bus.Emit(ctx, e); err != nil {
			logger.Error("emit failed", "event_type", e.Type(), "error", err)
			return err
		}
		logger.Info("produced", "event_type", e.Type())
	}

	for range sent {
		select {
		case e := <-received:
			logger.Info("consumed", "event_type", e.Type())
		case <-ctx.Done():
			return errors.New("timed out waiting for events")
		}
	}

	logger.Info("kafka smoke test passed")
	return nil
}

// main runs the smoke test and exits non-zero on failure.
func main() {
	if err := RunSmokeTest(); err != nil {
		os.Exit(1)
	}
}
