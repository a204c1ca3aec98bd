package isp

import (
	"sort"
	"sync"
	"time"
)

// Descriptor describes a registered ISP family.
type Descriptor struct {
	// Identifiers are the configuration names resolving to this
	// provider; the first one is canonical, the rest are aliases.
	Identifiers []string

	// Title is the human-readable ISP name.
	Title string

	// ScanInterval is the provider's default polling interval, used
	// when an account does not configure one.
	ScanInterval time.Duration

	// New constructs a fresh connector. Called once per configured
	// account so sessions are never shared.
	New func() Connector
}

var (
	registryMu sync.RWMutex
	registry   []Descriptor
	byAlias    = make(map[string]int)
)

// Register registers an ISP family. Typically called from an init()
// function in each connector package.
func Register(d Descriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if len(d.Identifiers) == 0 {
		panic("isp: Register called with no identifiers")
	}
	if d.New == nil {
		panic("isp: Register(" + d.Identifiers[0] + ") called with nil factory")
	}
	for _, id := range d.Identifiers {
		if _, dup := byAlias[id]; dup {
			panic("isp: Register called twice for identifier " + id)
		}
	}

	registry = append(registry, d)
	for _, id := range d.Identifiers {
		byAlias[id] = len(registry) - 1
	}
}

// Resolve looks a provider up by any of its identifiers.
func Resolve(identifier string) (Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	i, ok := byAlias[identifier]
	if !ok {
		return Descriptor{}, false
	}
	return registry[i], true
}

// Providers returns all registered descriptors sorted by canonical
// identifier.
func Providers() []Descriptor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifiers[0] < out[j].Identifiers[0]
	})
	return out
}
