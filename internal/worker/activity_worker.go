package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"pagewise/internal/model"
	"pagewise/internal/platform/rabbitmq"
)

// Toucher applies an activity timestamp to a session.
type Toucher interface {
	Touch(ctx context.Context, sessionID uint, at time.Time) error
}

// ActivityWorker consumes session activity events and applies them.
type ActivityWorker struct {
	conn      *amqp.Connection
	toucher   Toucher
	queueName string
	log       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewActivityWorker(conn *amqp.Connection, toucher Toucher, queueName string, log *zap.Logger) *ActivityWorker {
	return &ActivityWorker{
		conn:      conn,
		toucher:   toucher,
		queueName: queueName,
		log:       log.Named("activity_worker"),
	}
}

func (w *ActivityWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *ActivityWorker) handle(ctx context.Context, d amqp.Delivery) {
	event, err := DecodeActivity(d.Body)
	if err != nil {
		w.log.Warn("decode activity failed", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := w.toucher.Touch(ctx, event.SessionID, event.At); err != nil {
		w.log.Error("apply activity failed", zap.Uint("session_id", event.SessionID), zap.Error(err))
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func (w *ActivityWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// DecodeActivity parses one queued event.
func DecodeActivity(body []byte) (model.SessionActivity, error) {
	var event model.SessionActivity
	if err := json.Unmarshal(body, &event); err != nil {
		return model.SessionActivity{}, fmt.Errorf("unmarshal activity failed: %w", err)
	}
	if event.SessionID == 0 || event.At.IsZero() {
		return model.SessionActivity{}, fmt.Errorf("activity event is incomplete")
	}
	return event, nil
}
