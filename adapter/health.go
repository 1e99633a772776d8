// Package adapter wires shared memory regions into external operational
// surfaces, starting with HTTP health endpoints for hosts and collectors.
package adapter

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/shmem-region/region"
)

// RegionReadyCheck reports healthy once the hosted region has been marked
// ready. Until then host processes show not-ready, which keeps traffic away
// while the payload is still being filled in.
func RegionReadyCheck(h *region.Host) healthcheck.Check {
	return func() error {
		if !h.Ready() {
			return fmt.Errorf("region %q not ready", h.Name())
		}
		return nil
	}
}

// RegionAttachedCheck reports healthy while the client handle still holds a
// ready mapping.
func RegionAttachedCheck(c *region.Client) healthcheck.Check {
	return func() error {
		if !c.Ready() {
			return fmt.Errorf("region %q closed or not ready", c.Name())
		}
		return nil
	}
}

// NewHostHandler returns a healthcheck handler preloaded with a readiness
// check per hosted region.
func NewHostHandler(hosts ...*region.Host) healthcheck.Handler {
	h := healthcheck.NewHandler()
	for _, host := range hosts {
		h.AddReadinessCheck("region-"+host.Name(), RegionReadyCheck(host))
	}
	return h
}

// NewClientHandler returns a healthcheck handler preloaded with a readiness
// check per attached region.
func NewClientHandler(clients ...*region.Client) healthcheck.Handler {
	h := healthcheck.NewHandler()
	for _, client := range clients {
		h.AddReadinessCheck("region-"+client.Name(), RegionAttachedCheck(client))
	}
	return h
}
