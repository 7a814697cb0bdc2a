package processor

import "sync"

var registry struct {
	sync.RWMutex
	procs []Processor
}

// RegisterProcessor adds p to the processors returned by
// AllRegisteredProcessors.
func RegisterProcessor(p Processor) {
	registry.Lock()
	registry.procs = append(registry.procs, p)
	registry.Unlock()
}

// AllRegisteredProcessors returns the registered processors in registration
// order.
func AllRegisteredProcessors() []Processor {
	registry.RLock()
	defer registry.RUnlock()
	return append([]Processor(nil), registry.procs...)
}
