package session

import (
	"fmt"
	"sync/atomic"
)

// Generator produces process-unique session IDs.
type Generator struct {
	counter uint64
}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) Next(prefix string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-sess-%d", prefix, n)
}
