package middleware

import (
	"io"

	"github.com/aretw0/flowline/pkg/ports"
)

// Middleware allows wrapping a Store to add behavior to run persistence.
// Graphs pass through untouched.
type Middleware func(ports.Store) ports.Store

// Chain applies middlewares so that the first one sees calls first.
func Chain(store ports.Store, mws ...Middleware) ports.Store {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// closeNext closes the wrapped store when it holds resources.
func closeNext(next ports.Store) error {
	if c, ok := next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
