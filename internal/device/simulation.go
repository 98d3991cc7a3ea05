package device

import (
	"context"
	"fmt"
	"sync"
)

// SimulatedChannel is an in-memory stand-in for a physical device: reads
// return the last written value, or the channel's configured default if the
// parameter has never been written; writes store the value and acknowledge
// it back.
type SimulatedChannel struct {
	name     string
	mu       sync.Mutex
	values   map[string]string
	fallback string
}

// NewSimulatedChannel creates a channel named name whose reads of an
// unwritten parameter return fallback.
func NewSimulatedChannel(name, fallback string) *SimulatedChannel {
	return &SimulatedChannel{
		name:     name,
		values:   make(map[string]string),
		fallback: fallback,
	}
}

// Execute implements Channel.
func (c *SimulatedChannel) Execute(_ context.Context, cmd Command) string {
	if cmd.PKey == "" {
		return NAKParseError
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cmd.IsRead {
		value, ok := c.values[cmd.PKey]
		if !ok {
			value = c.fallback
		}
		return fmt.Sprintf("%s=%s", cmd.PKey, value)
	}

	c.values[cmd.PKey] = cmd.Value
	return fmt.Sprintf("ACK_%s=%s", cmd.PKey, cmd.Value)
}

// Name returns the channel's configured name, used in logging.
func (c *SimulatedChannel) Name() string {
	return c.name
}
