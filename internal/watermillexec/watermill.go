// Package watermillexec provides an example SubscriptionExecutor backed by
// a Watermill in-memory pub/sub, standing in for the GraphQL execution
// engine the core handler treats as an external collaborator (spec.md §1).
// Grounded in the teacher's subscription.Manager comment that the manager
// "integrates with the Watermill event bus"
// (internal/graphql/subscription/manager.go).
package watermillexec

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"graphqlws/internal/protocol"
)

// Executor publishes nothing on its own; it subscribes each GraphQL
// subscription to a Watermill topic and republishes every message it
// receives as a GraphQLResponse. Use Publish to feed it from elsewhere in
// the demo server.
type Executor struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// New builds an Executor around a fresh in-memory Watermill pub/sub.
func New() *Executor {
	logger := watermill.NewStdLogger(false, false)
	return &Executor{
		pubsub: gochannel.NewGoChannel(gochannel.Config{}, logger),
		logger: logger,
	}
}

// Publish pushes a value onto topic as JSON; every active subscription on
// that topic receives it as the Data field of a GraphQLResponse.
func (e *Executor) Publish(topic string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return e.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload))
}

// ExecuteSubscription implements executor.Executor. The request's
// OperationName selects the Watermill topic; an empty OperationName falls
// back to a fixed demo topic.
func (e *Executor) ExecuteSubscription(ctx context.Context, req protocol.GraphQLRequest) (<-chan protocol.GraphQLResponse, <-chan error) {
	topic := req.OperationName
	if topic == "" {
		topic = "demo"
	}

	messages, err := e.pubsub.Subscribe(ctx, topic)
	if err != nil {
		errCh := make(chan error, 1)
		errCh <- err
		close(errCh)
		respCh := make(chan protocol.GraphQLResponse)
		close(respCh)
		return respCh, errCh
	}

	respCh := make(chan protocol.GraphQLResponse)
	errCh := make(chan error)

	go func() {
		defer close(respCh)
		defer close(errCh)

		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-messages:
				if !ok {
					return
				}
				var data interface{}
				if err := json.Unmarshal(m.Payload, &data); err != nil {
					m.Ack()
					select {
					case errCh <- err:
					case <-ctx.Done():
					}
					return
				}
				m.Ack()
				select {
				case respCh <- protocol.GraphQLResponse{Data: data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return respCh, errCh
}

// Close releases the underlying pub/sub.
func (e *Executor) Close() error {
	return e.pubsub.Close()
}
