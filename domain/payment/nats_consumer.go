package payment

import (
	"context"
	"errors"
	"time"

	"paygate-vip/domain/entitlement"
	"paygate-vip/infrastructure/config"
	"paygate-vip/infrastructure/queue"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2/log"
	"github.com/nats-io/nats.go"
)

const (
	consumerQueue = "entitlement-reconciler"

	defaultAckWait = 30 * time.Second
	retryDelay     = 5 * time.Second
	fetchBackoff   = 250 * time.Millisecond
)

type ackAction int

const (
	actionAck ackAction = iota
	actionNak
	actionTerm
)

type IConsumer interface {
	StartProcess() error
	Close()
}

type natsConsumer struct {
	confirmationQueue *queue.ConfirmationQueue
	reconciler        IReconciler
	ctx               context.Context
	cancelCtx         context.CancelFunc
	maxAckPending     int
	maxDeliver        int
}

func NewNatsConsumer(confirmationQueue *queue.ConfirmationQueue, reconciler IReconciler, cfg config.NatsConfig) IConsumer {
	ctx, cancelCtx := context.WithCancel(context.Background())

	return &natsConsumer{
		confirmationQueue: confirmationQueue,
		reconciler:        reconciler,
		ctx:               ctx,
		cancelCtx:         cancelCtx,
		maxAckPending:     cfg.MaxAckPending,
		maxDeliver:        cfg.MaxDeliver,
	}
}

func (c *natsConsumer) StartProcess() error {
	sub, err := c.confirmationQueue.JetStream.QueueSubscribeSync(
		c.confirmationQueue.Subject,
		consumerQueue,
		nats.AckWait(defaultAckWait),
		nats.ManualAck(),
		nats.DeliverAll(),
		nats.ReplayInstant(),
		nats.MaxDeliver(c.maxDeliver),
		nats.MaxAckPending(c.maxAckPending),
	)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	log.Infow("confirmation consumer started", "subject", c.confirmationQueue.Subject, "queue", consumerQueue)
	for {
		select {
		case <-c.ctx.Done():
			return nil
		default:
			msg, err := sub.NextMsgWithContext(c.ctx)
			if err != nil {
				if subscriptionGone(err) {
					log.Errorw("confirmation consumer stopped", "error", err)
					return err
				}
				c.pause()
				continue
			}
			go c.processMessage(msg)
		}
	}
}

func (c *natsConsumer) pause() {
	select {
	case <-c.ctx.Done():
	case <-time.After(fetchBackoff):
	}
}

// subscriptionGone reports fetch errors that no retry can recover from.
func subscriptionGone(err error) bool {
	return errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrBadSubscription) ||
		errors.Is(err, nats.ErrConnectionDraining)
}

func (c *natsConsumer) processMessage(msg *nats.Msg) {
	var err error
	switch c.handle(msg.Data) {
	case actionAck:
		err = msg.Ack()
	case actionTerm:
		err = msg.Term()
	case actionNak:
		err = msg.NakWithDelay(retryDelay)
	}
	if err != nil {
		log.Warnw("confirmation ack failed", "error", err)
	}
}

// handle decides the fate of one delivery. Integrity errors will not change on redelivery,
// so only transient failures are retried.
func (c *natsConsumer) handle(data []byte) ackAction {
	var event entitlement.ConfirmationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Errorw("undecodable confirmation dropped", "error", err)
		return actionTerm
	}

	_, err := c.reconciler.Reconcile(c.ctx, event)
	switch {
	case err == nil:
		return actionAck
	case entitlement.IsIntegrityError(err):
		log.Errorw("confirmation rejected",
			"transactionId", event.TransactionId,
			"entitlementKey", event.EntitlementKey,
			"error", err,
		)
		return actionTerm
	default:
		return actionNak
	}
}

func (c *natsConsumer) Close() {
	c.cancelCtx()
}
