// Package kafka wraps segmentio/kafka-go with the producer and consumer
// shapes the relay and the agents need: keyed publishes, manual offset
// commits, and trace propagation through message headers.
package kafka

import segkafka "github.com/segmentio/kafka-go"

// HeaderCarrier exposes a Kafka header slice as an OpenTelemetry
// propagation.TextMapCarrier.
type HeaderCarrier []segkafka.Header

// Get returns the value of the first header named key, or "".
func (c HeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set writes key/value, dropping any earlier header with the same key.
func (c *HeaderCarrier) Set(key, value string) {
	filtered := (*c)[:0]
	for _, h := range *c {
		if h.Key != key {
			filtered = append(filtered, h)
		}
	}
	*c = append(filtered, segkafka.Header{Key: key, Value: []byte(value)})
}

// Keys lists every header key in the carrier.
func (c HeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = h.Key
	}
	return keys
}
