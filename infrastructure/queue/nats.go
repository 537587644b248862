package queue

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/nats-io/nats.go"
)

const (
	subject         = "payments.confirmations"
	streamName      = "Payment-Confirmations"
	duplicateWindow = 2 * time.Minute
)

type ConfirmationQueue struct {
	JetStream  nats.JetStreamContext
	NatsConn   *nats.Conn
	Subject    string
	StreamName string
}

func NewConfirmationQueue(natsURL string) (*ConfirmationQueue, error) {
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	natsConn, err := nats.Connect(natsURL, nats.Name("paygate-vip"))
	if err != nil {
		return nil, err
	}

	js, err := natsConn.JetStream()
	if err != nil {
		natsConn.Close()
		return nil, err
	}

	queue := &ConfirmationQueue{
		NatsConn:   natsConn,
		JetStream:  js,
		Subject:    subject,
		StreamName: streamName,
	}

	if err = queue.createStream(); err != nil {
		natsConn.Close()
		return nil, err
	}
	return queue, nil
}

// Publish stores one confirmation. A non-empty dedupeID collapses repeats inside the
// stream's duplicate window.
func (q *ConfirmationQueue) Publish(data []byte, dedupeID string) error {
	var opts []nats.PubOpt
	if dedupeID != "" {
		opts = append(opts, nats.MsgId(dedupeID))
	}
	_, err := q.JetStream.Publish(q.Subject, data, opts...)
	return err
}

func (q *ConfirmationQueue) Close() {
	if q.NatsConn != nil {
		q.NatsConn.Drain()
	}
}

func (q *ConfirmationQueue) createStream() error {
	streamCfg := nats.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subject},
		Retention:  nats.WorkQueuePolicy,
		Storage:    nats.FileStorage,
		Duplicates: duplicateWindow,
	}

	if _, err := q.JetStream.StreamInfo(streamName); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}

	if _, err := q.JetStream.AddStream(&streamCfg); err != nil {
		return err
	}
	log.Infow("stream created", "stream", streamName, "subject", subject)
	return nil
}
