package payments

import (
	"context"
	"errors"

	"github.com/appovenbackend/ticketing/internal/circuitbreaker"
)

// BreakerGateway wraps a Gateway with a circuit breaker so a dead
// provider fails order creation fast instead of tying up handlers on
// timeouts.
type BreakerGateway struct {
	inner   Gateway
	breaker *circuitbreaker.Breaker
}

func NewBreakerGateway(inner Gateway, breaker *circuitbreaker.Breaker) *BreakerGateway {
	return &BreakerGateway{inner: inner, breaker: breaker}
}

func (g *BreakerGateway) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	var out *OrderResponse
	err := g.breaker.Do(func() error {
		resp, err := g.inner.CreateOrder(ctx, req)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, errors.New("payment gateway unavailable: " + err.Error())
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
