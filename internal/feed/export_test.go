package feed

import "github.com/segmentio/kafka-go"

// MessageWriter is exported for tests.
type MessageWriter interface {
	messageWriter
}

var NewPublisherWithWriter = newPublisher

var _ MessageWriter = (*kafka.Writer)(nil)
