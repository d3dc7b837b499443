package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/attendance/pkg/dto"
)

// AttendanceHandler receives decoded attendance notifications.
type AttendanceHandler func(ctx context.Context, ev dto.AttendanceResponse) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeAttendance delivers new attendance events to handler until ctx is
// done. Undecodable messages are acked and dropped; handler errors are retried.
func (c *Consumer) ConsumeAttendance(ctx context.Context, consumerName string, handler AttendanceHandler) error {
	stream, err := c.js.Stream(ctx, AttendanceStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AttendanceStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: AttendanceSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch attendance error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				c.dispatch(ctx, msg, handler)
			}
		}
	}()

	slog.Info("attendance consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, msg jetstream.Msg, handler AttendanceHandler) {
	ev, err := decodeAttendance(msg.Data())
	if err != nil {
		slog.Error("drop attendance message", "subject", msg.Subject(), "error", err)
		_ = msg.Ack()
		return
	}
	if err := handler(ctx, ev); err != nil {
		slog.Error("process attendance error", "event", ev.ID, "error", err)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
