// Package selector picks the server and port used for a measurement attempt.
package selector

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"speedtest-mqtt/pkg/models"
)

var ErrEmptyPool = errors.New("no server with ports to pick from")

// Selector samples uniformly from a server pool. It keeps no memory of
// earlier picks or failures.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Selector drawing from src. A nil src seeds from the clock.
func New(src rand.Source) *Selector {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Selector{rnd: rand.New(src)}
}

// Pick chooses an endpoint uniformly at random, then one of its ports.
func (s *Selector) Pick(servers []models.ServerEndpoint) (models.ServerEndpoint, int, error) {
	if len(servers) == 0 {
		return models.ServerEndpoint{}, 0, ErrEmptyPool
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	server := servers[s.rnd.Intn(len(servers))]
	if len(server.Ports) == 0 {
		return models.ServerEndpoint{}, 0, ErrEmptyPool
	}
	port := server.Ports[s.rnd.Intn(len(server.Ports))]

	return server, port, nil
}

// PickHost chooses an endpoint uniformly at random and returns its host.
func (s *Selector) PickHost(servers []models.ServerEndpoint) (string, error) {
	if len(servers) == 0 {
		return "", ErrEmptyPool
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return servers[s.rnd.Intn(len(servers))].Host, nil
}
