package connector

import (
	"context"

	"github.com/polarismesh/polaris-go-sub002/pkg/model"
)

// Register, Deregister and Heartbeat use the same endpoint list as the
// discover stream: each is one unary call against the address the
// discover loop last dialed (the first configured address before any
// dial). A transport error is reported against that endpoint and
// returned to the caller; these calls do not retry and do not move on
// to another address themselves.

func (c *Connector) currentAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.addresses) == 0 {
		return ""
	}
	idx := c.addrIdx
	if idx > 0 {
		idx--
	}
	return c.addresses[idx%len(c.addresses)]
}

func (c *Connector) Register(ctx context.Context, service model.ServiceKey, inst *model.Instance) error {
	addr := c.currentAddr()
	if addr == "" {
		addr = c.nextAddress()
	}
	resp, err := c.transport.Register(ctx, addr, &RegisterRequest{Service: service, Instance: inst})
	if err != nil {
		c.reportEndpointFailure(addr)
		return err
	}
	if !resp.Ok {
		return &providerError{message: resp.Message}
	}
	return nil
}

func (c *Connector) Deregister(ctx context.Context, service model.ServiceKey, inst *model.Instance) error {
	addr := c.currentAddr()
	if addr == "" {
		addr = c.nextAddress()
	}
	resp, err := c.transport.Register(ctx, addr, &RegisterRequest{Service: service, Instance: inst, Dereg: true})
	if err != nil {
		c.reportEndpointFailure(addr)
		return err
	}
	if !resp.Ok {
		return &providerError{message: resp.Message}
	}
	return nil
}

func (c *Connector) Heartbeat(ctx context.Context, service model.ServiceKey, instanceID string) error {
	addr := c.currentAddr()
	if addr == "" {
		addr = c.nextAddress()
	}
	resp, err := c.transport.Heartbeat(ctx, addr, &HeartbeatRequest{Service: service, InstanceID: instanceID})
	if err != nil {
		c.reportEndpointFailure(addr)
		return err
	}
	if !resp.Ok {
		return &providerError{message: "heartbeat rejected"}
	}
	return nil
}

type providerError struct{ message string }

func (e *providerError) Error() string { return e.message }
