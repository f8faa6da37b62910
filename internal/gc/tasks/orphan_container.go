package tasks

import (
	"context"
	"strings"

	"github.com/shipyard-neo/bay/internal/driver"
	"github.com/shipyard-neo/bay/internal/gc"
	"github.com/shipyard-neo/bay/internal/store"
)

// OrphanContainerGC removes containers on the backend that this
// orchestrator lost track of: created successfully but never recorded
// (a crash between CreateContainer and the session row commit), or
// recorded against a session row that was later deleted out from under it.
// It is the most destructive task in the cycle, so every container it
// considers must satisfy all five conditions in isSafeToReap before being
// removed; any one failing is enough to skip it for this cycle.
type OrphanContainerGC struct {
	drv        driver.Driver
	sessions   *store.SessionStore
	instanceID string
}

func NewOrphanContainerGC(drv driver.Driver, sessions *store.SessionStore, instanceID string) *OrphanContainerGC {
	return &OrphanContainerGC{drv: drv, sessions: sessions, instanceID: instanceID}
}

func (t *OrphanContainerGC) Name() string { return "orphan_container" }

func (t *OrphanContainerGC) Run(ctx context.Context) gc.Result {
	result := gc.Result{TaskName: t.Name()}

	containers, err := t.drv.ListContainers(ctx, nil)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	for _, c := range containers {
		safe, err := t.isSafeToReap(ctx, c)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if !safe {
			continue
		}
		if err := t.drv.StopContainer(ctx, c.ID); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Cleaned++
	}
	return result
}

// isSafeToReap enforces the strict five-condition contract: (1) the
// container's name carries this orchestrator's naming convention, so we
// never touch something we didn't create; (2) it carries all five required
// labels; (3) bay.managed is literally "true"; (4) bay.instance_id matches
// this orchestrator's own configured instance, so a second orchestrator
// instance sharing the same backend never reaps the other's containers;
// (5) no Session row exists for the session id the container's label
// claims, regardless of that row's status — a session row of ANY status
// means some part of this orchestrator still knows about the container.
func (t *OrphanContainerGC) isSafeToReap(ctx context.Context, c *driver.InspectResult) (bool, error) {
	if !strings.HasPrefix(c.Name, driver.ContainerNamePrefix) {
		return false, nil
	}

	required := []string{driver.LabelSessionID, driver.LabelSandboxID, driver.LabelCargoID, driver.LabelInstanceID, driver.LabelManaged}
	for _, key := range required {
		if _, ok := c.Labels[key]; !ok {
			return false, nil
		}
	}

	if c.Labels[driver.LabelManaged] != "true" {
		return false, nil
	}
	if c.Labels[driver.LabelInstanceID] != t.instanceID {
		return false, nil
	}

	sessionID := c.Labels[driver.LabelSessionID]
	exists, err := t.sessions.ExistsWithID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	return true, nil
}
