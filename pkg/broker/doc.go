// Package broker is the managed, auto-reconnecting AMQP client C2
// describes: one durable queue bound to one direct exchange, publisher
// confirms with return-to-sender for unroutable messages, and a
// manual-ack consumer at prefetch 3. The live connection and channel
// are owned by a single goroutine; Start/Send/Consume/Stop talk to it
// over channels so callers never touch amqp091 types directly.
package broker
