package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditConsumer appends one line per reservation event to a log file.
type AuditConsumer struct {
	URL     string
	LogPath string
	Log     *slog.Logger

	mu sync.Mutex
}

// StartAuditConsumer runs an AuditConsumer in a goroutine until ctx is
// cancelled.  The returned channel is closed once it has stopped.
func StartAuditConsumer(ctx context.Context, url, logPath string, log *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	a := &AuditConsumer{URL: url, LogPath: logPath, Log: log}
	go func() {
		defer close(done)
		_ = a.Run(ctx)
		log.Info("audit consumer stopped")
	}()
	return done
}

// Run connects to RabbitMQ, declares the durable event queues and consumes
// them until ctx is cancelled.  Broker failures trigger a reconnect with
// exponential backoff capped at 30s; malformed messages are rejected
// without requeue so they cannot loop.
func (a *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(a.URL)
		if err != nil {
			a.Log.Warn("audit consumer: dial failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = a.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.Log.Warn("audit consumer: consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (a *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		a.Log.Warn("audit consumer: set QoS failed", "error", err)
	}

	deliveries := make(chan amqp.Delivery)
	var wg sync.WaitGroup
	for _, q := range Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		wg.Add(1)
		go func(msgs <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range msgs {
				select {
				case deliveries <- d:
				case <-ctx.Done():
					return
				}
			}
		}(msgs)
	}
	closed := make(chan struct{})
	go func() { wg.Wait(); close(closed) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return errors.New("deliveries channel closed")
		case d := <-deliveries:
			if err := a.Handle(d.Body); err != nil {
				a.Log.Error("audit consumer: handle message failed", "error", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one event body and appends its audit line.
func (a *AuditConsumer) Handle(body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.ReservationID == 0 {
		return errors.New("event without type or reservation id")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if dir := filepath.Dir(a.LogPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(a.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatAuditLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatAuditLine renders ev as a single human-friendly line.
func FormatAuditLine(ev ReservationEvent) string {
	return fmt.Sprintf("[%s] %s | reservation_id=%d | ref=%s | holder_id=%d | flight=%s (%d) | route=\"%s -> %s\" | departs=%s | class=%s | seats=%d | total=%d cents\n",
		ev.OccurredAt.Format(time.RFC3339), ev.Type, ev.ReservationID, ev.Reference, ev.HolderID,
		ev.FlightNumber, ev.FlightID, ev.DepartureCity, ev.ArrivalCity, ev.DepartureTime.Format(time.RFC3339),
		ev.SeatClass, ev.SeatCount, ev.TotalAmountCents)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
