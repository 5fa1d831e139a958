package engine

import (
	"venue/infra/outbox"
)

type Option func(*Core)

// WithOutbox stages produced trades in a durable outbox for at-least-once
// publication.
func WithOutbox(ob *outbox.Outbox) Option {
	return func(c *Core) { c.outbox = ob }
}

// WithTickPublisher emits a best-effort market-data tick after each
// processed command.
func WithTickPublisher(p TickPublisher) Option {
	return func(c *Core) { c.ticks = p }
}
