package cron

import (
	"context"
	"strings"
)

// ScheduleOff disables a storefront job, e.g. STOREFRONT_SCHEDULE_CART_ANALYTICS=off.
const ScheduleOff = "off"

// Job is a storefront background task with its own cron schedule.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// Registry collects the jobs a process schedules. Jobs switched off by
// configuration are remembered by name so the worker can report them.
type Registry struct {
	jobs     []Job
	disabled []string
}

func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds job unless it is nil or its schedule is off.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if strings.EqualFold(strings.TrimSpace(job.Schedule()), ScheduleOff) {
		r.disabled = append(r.disabled, job.Name())
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the scheduled jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Disabled returns the names of jobs switched off by configuration.
func (r *Registry) Disabled() []string {
	out := make([]string, len(r.disabled))
	copy(out, r.disabled)
	return out
}
