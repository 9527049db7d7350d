package front

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yousuf/tracebyte/internal/protocol"
)

// maxProcessFetches bounds concurrent per-process worker requests
const maxProcessFetches = 4

// WorkerEntry is one row of ListAllWorkers
type WorkerEntry struct {
	ID   string
	Name string
	URL  string
	// Service workers only
	Scope        string
	Fetch        bool
	Active       bool
	Registration *RegistrationFront
	Worker       *WorkerDescriptorFront
}

// WorkerList groups every known worker by type
type WorkerList struct {
	Service []WorkerEntry
	Shared  []WorkerEntry
	Other   []WorkerEntry
}

// isConnectionClosed matches errors of processes that went away mid-request
func isConnectionClosed(err error) bool {
	return errors.Is(err, protocol.ErrConnectionClosed) ||
		strings.Contains(strings.ToLower(err.Error()), "connection closed")
}

// ListAllWorkers merges service worker registrations with the workers of
// the parent process and of every child process.
//
// Enumeration is best effort: a failing request ends it and whatever was
// fetched before is returned. A child process whose connection closed
// while being asked is skipped.
func (r *RootFront) ListAllWorkers(ctx context.Context) WorkerList {
	registrations, workers, err := r.fetchAllWorkers(ctx)
	if err != nil {
		r.logger.Debug("worker enumeration incomplete", zap.Error(err))
	}

	result := WorkerList{
		Service: []WorkerEntry{},
		Shared:  []WorkerEntry{},
		Other:   []WorkerEntry{},
	}
	for _, reg := range registrations {
		result.Service = append(result.Service, WorkerEntry{
			ID:           reg.ActorID(),
			Name:         reg.URL(),
			URL:          reg.URL(),
			Scope:        reg.Scope(),
			Fetch:        reg.Fetch(),
			Active:       reg.Active(),
			Registration: reg,
		})
	}

	for _, w := range workers {
		entry := WorkerEntry{ID: w.ActorID(), Name: w.URL(), URL: w.URL(), Worker: w}
		switch w.Type() {
		case WorkerTypeService:
			if i := findScope(result.Service, w.Scope()); i >= 0 {
				reg := &result.Service[i]
				// the registration may be reported before its script url is known
				if reg.URL == "" {
					reg.Name = w.URL()
					reg.URL = w.URL()
				}
				reg.Worker = w
				continue
			}
			// registrations of other processes are only forwarded once active
			entry.Fetch = w.Fetch()
			entry.Scope = w.Scope()
			entry.Active = false
			result.Service = append(result.Service, entry)
		case WorkerTypeShared:
			result.Shared = append(result.Shared, entry)
		default:
			result.Other = append(result.Other, entry)
		}
	}
	return result
}

func findScope(entries []WorkerEntry, scope string) int {
	for i, e := range entries {
		if e.Scope == scope {
			return i
		}
	}
	return -1
}

// fetchAllWorkers returns what it collected before the first failure
// together with that failure.
func (r *RootFront) fetchAllWorkers(ctx context.Context) ([]*RegistrationFront, []*WorkerDescriptorFront, error) {
	registrations, err := r.ListServiceWorkerRegistrations(ctx)
	if err != nil {
		return nil, nil, err
	}
	workers, err := r.ListWorkers(ctx)
	if err != nil {
		return registrations, nil, err
	}
	processes, err := r.ListProcesses(ctx)
	if err != nil {
		return registrations, workers, err
	}

	var children []*ProcessDescriptorFront
	for _, p := range processes {
		if !p.IsParent() {
			children = append(children, p)
		}
	}

	perProcess := make([][]*WorkerDescriptorFront, len(children))
	errs := make([]error, len(children))
	var g errgroup.Group
	g.SetLimit(maxProcessFetches)
	for i, p := range children {
		g.Go(func() error {
			target, err := p.GetTarget(ctx)
			if err == nil {
				perProcess[i], err = target.ListWorkers(ctx)
			}
			errs[i] = err
			return err
		})
	}
	_ = g.Wait()

	// results are merged in process order up to the first real failure
	for i := range children {
		if err := errs[i]; err != nil {
			if isConnectionClosed(err) {
				continue
			}
			return registrations, workers, err
		}
		workers = append(workers, perProcess[i]...)
	}
	return registrations, workers, nil
}
