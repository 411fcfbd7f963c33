package scheduler

import "time"

// JobStatus is a read-only snapshot of one job for host inspection.
type JobStatus struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Schedule string     `json:"schedule"`
	RunCount uint32     `json:"run_count"`
	Ran      bool       `json:"ran"`
	Stopped  bool       `json:"stopped"`
	NextTick *time.Time `json:"next_tick,omitempty"`
	LastTick *time.Time `json:"last_tick,omitempty"`
}

// JobStatuses returns status snapshots for all registered jobs. Order is
// unspecified.
func (s *Scheduler) JobStatuses() []JobStatus {
	ids := s.registry.ListIDs()
	statuses := make([]JobStatus, 0, len(ids))
	for _, id := range ids {
		job, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		statuses = append(statuses, JobStatus{
			ID:       job.ID().String(),
			Type:     job.Type().String(),
			Schedule: job.ScheduleText(),
			RunCount: job.RunCount(),
			Ran:      job.Ran(),
			Stopped:  job.Stopped(),
			NextTick: job.NextTick(),
			LastTick: job.LastTick(),
		})
	}
	return statuses
}
