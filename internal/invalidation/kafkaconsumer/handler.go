package kafkaconsumer

import (
	"fmt"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/site-viewer/internal/core/observability"
)

// claimLoop feeds each claimed partition to the consumer in offset order.
// A message is marked only once it was handled; a failure ends the claim so
// the group resumes from the last marked offset.
type claimLoop struct {
	c *Consumer
}

func (l claimLoop) Setup(sess sarama.ConsumerGroupSession) error {
	l.c.logger.Info("invalidation claims assigned",
		"member", sess.MemberID(), "generation", sess.GenerationID(), "claims", sess.Claims())
	return nil
}

func (l claimLoop) Cleanup(sess sarama.ConsumerGroupSession) error {
	sess.Commit()
	return nil
}

func (l claimLoop) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	msgs := claim.Messages()
	for {
		var msg *sarama.ConsumerMessage
		select {
		case <-ctx.Done():
			// rebalance or shutdown
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			msg = m
		}
		if err := l.c.ProcessOne(ctx, msg); err != nil {
			obs.IncKafkaConsumerError("process")
			return fmt.Errorf("invalidation %s[%d]@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}
		sess.MarkMessage(msg, "")
	}
}
