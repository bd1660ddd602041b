package rabbitmq

import amqp "github.com/rabbitmq/amqp091-go"

// DeclareTopology declares queue, queue+".retry" and queue+".dlq".
// Rejected messages go to the dlq; the retry queue dead-letters back to the
// main queue once a message's TTL expires. Publisher and consumer must both
// call this so their queue arguments agree.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	decls := []struct {
		name string
		args amqp.Table
	}{
		{name: dlqQ},
		{name: retryQ, args: amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		}},
		{name: queue, args: amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		}},
	}
	for _, d := range decls {
		// durable, not auto-deleted, not exclusive
		if _, err := ch.QueueDeclare(d.name, true, false, false, false, d.args); err != nil {
			return err
		}
	}
	return nil
}
