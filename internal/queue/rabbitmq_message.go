package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a decoded job together with the AMQP delivery that carried it. Settling is
// done on the consumer channel the delivery arrived on.
type Message struct {
	job      *Job
	delivery amqp.Delivery
}

var _ Delivery = (*Message)(nil)

func newMessage(job *Job, delivery amqp.Delivery) *Message {
	return &Message{job: job, delivery: delivery}
}

// Ack settles the delivery as done
func (m *Message) Ack() error {
	return m.delivery.Ack(false)
}

// Nack rejects the delivery. Without requeue it is dead-lettered.
func (m *Message) Nack(requeue bool) error {
	return m.delivery.Nack(false, requeue)
}

// GetJob returns the decoded job
func (m *Message) GetJob() *Job {
	return m.job
}

// Redelivered reports whether the broker delivered this message before without a settle
func (m *Message) Redelivered() bool {
	return m.delivery.Redelivered
}
