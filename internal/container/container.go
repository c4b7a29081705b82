// Package container is a small explicit dependency registry on top of
// go.uber.org/dig. Values are bound and resolved by their static type; the
// registry does not own any lifecycle.
package container

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/dig"
)

var ErrNotBound = errors.New("no binding for type")

// Controller registers its routes on a router.
type Controller interface {
	Routes(r fiber.Router)
}

type Container struct {
	mu          sync.Mutex
	di          *dig.Container
	controllers []Controller
}

func New() *Container {
	return &Container{di: dig.New()}
}

// Provide binds v as the value of type T. A type can be bound once.
func Provide[T any](c *Container, v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.di.Provide(func() T { return v }); err != nil {
		return fmt.Errorf("provide %T: %w", (*T)(nil), err)
	}
	return nil
}

// Resolve returns the value bound to type T.
func Resolve[T any](c *Container) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out T
	err := c.di.Invoke(func(v T) { out = v })
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w %T: %v", ErrNotBound, (*T)(nil), dig.RootCause(err))
	}
	return out, nil
}

// MustResolve is like Resolve but panics when T is not bound.
func MustResolve[T any](c *Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

// AddController queues ctrl for route registration during bootstrap.
func (c *Container) AddController(ctrl Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controllers = append(c.controllers, ctrl)
}

// Controllers returns the registered controllers in insertion order.
func (c *Container) Controllers() []Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Controller, len(c.controllers))
	copy(out, c.controllers)
	return out
}
