// Copyright (c) 2022 James Tran Dung, All rights reserved.
// Use of this source code is governed by an MIT-style license that can be found in the LICENSE file

package publisher

import (
	"context"

	"github.com/pkg/errors"
	"github.com/twinj/uuid"

	"github.com/jamestrandung/go-batch/batcher"
	"github.com/jamestrandung/go-batch/helper"
	"github.com/jamestrandung/go-batch/promising"
)

// Message is a message to be published to a topic.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// ByteSize returns the number of bytes this message occupies on the wire, excluding
// any framing added by the Sender.
func (m *Message) ByteSize() int64 {
	size := len(m.ID) + len(m.Data)
	for k, v := range m.Attributes {
		size += len(k) + len(v)
	}

	return int64(size)
}

// Sender delivers a batch of messages to a topic in one call. It must be safe to be
// called from multiple goroutines simultaneously.
//
//go:generate mockery --name Sender --case underscore --inpackage
type Sender interface {
	Send(topic string, msgs []*Message) error
}

// Publisher batches messages published to a single topic before handing them to
// a Sender.
type Publisher struct {
	topic     string
	opts      batcher.Options
	processor batcher.Processor[*Message]
}

// New returns a Publisher for the given topic. Messages are grouped under opts and
// the processor is named after the topic unless options say otherwise.
func New(topic string, sender Sender, opts batcher.Options, options ...batcher.ProcessorOption) (*Publisher, error) {
	if topic == "" {
		return nil, errors.Wrap(batcher.ErrInvalidConfiguration, "topic must not be empty")
	}

	if helper.IsNil(sender) {
		return nil, errors.Wrap(batcher.ErrInvalidConfiguration, "sender must not be nil")
	}

	handler := batcher.HandlerFunc[*Message](
		func(msgs []*Message) error {
			return sender.Send(topic, msgs)
		},
	)

	processorOptions := append([]batcher.ProcessorOption{batcher.WithName(topic)}, options...)

	processor, err := batcher.NewProcessor[*Message](opts, handler, processorOptions...)
	if err != nil {
		return nil, err
	}

	return newPublisher(topic, opts, processor), nil
}

func newPublisher(topic string, opts batcher.Options, processor batcher.Processor[*Message]) *Publisher {
	return &Publisher{
		topic:     topic,
		opts:      opts,
		processor: processor,
	}
}

// Topic returns the topic this Publisher publishes to.
func (p *Publisher) Topic() string {
	return p.topic
}

// PublishAsync queues msg and returns an outcome that resolves once the batch it
// belongs to has been sent. A message without an ID is given a random one, which is
// taken back if the message is rejected without being queued.
func (p *Publisher) PublishAsync(msg *Message) *promising.Outcome {
	assigned := assignID(msg)

	outcome := p.processor.SubmitAsync(msg)
	if assigned && isRejected(outcome.Err()) {
		msg.ID = ""
	}

	return outcome
}

// Publish queues msg and blocks until the batch it belongs to has been sent or
// ctx is done. IDs are assigned the same way as in PublishAsync.
func (p *Publisher) Publish(ctx context.Context, msg *Message) error {
	assigned := assignID(msg)

	err := p.processor.Submit(ctx, msg)
	if assigned && isRejected(err) {
		msg.ID = ""
	}

	return err
}

// PublishAll queues every message and waits for all of them, returning the combined
// errors of the ones that could not be sent.
func (p *Publisher) PublishAll(ctx context.Context, msgs []*Message) error {
	outcomes := make([]*promising.Outcome, len(msgs))
	for idx, msg := range msgs {
		outcomes[idx] = p.PublishAsync(msg)
	}

	return promising.WaitAll(ctx, outcomes)
}

// Pending returns the number of messages waiting to be put into a batch.
func (p *Publisher) Pending() int {
	return p.processor.Size()
}

// Plan returns the batch sizes n messages would currently be sent in.
func (p *Publisher) Plan(n int) []int {
	return batcher.Split(n, p.opts)
}

// Close sends every queued message and waits for in-flight batches to finish.
// Messages published afterwards fail immediately.
func (p *Publisher) Close() {
	p.processor.ShutdownAndDrain()
}

func assignID(msg *Message) bool {
	if msg == nil || msg.ID != "" {
		return false
	}

	msg.ID = uuid.NewV4().String()

	return true
}

// isRejected reports whether err was returned for a message that never entered
// the queue. Such errors are only produced before queueing, so nothing else holds
// the message by then.
func isRejected(err error) bool {
	return errors.Is(err, batcher.ErrFailedPrecondition) || errors.Is(err, batcher.ErrInvalidArgument)
}
