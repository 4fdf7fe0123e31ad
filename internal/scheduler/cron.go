package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/logger"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var ErrUnknownJob = errors.New("cron job not registered")

// Job is a named calendar task, e.g. the monthly birthday campaign.
type Job func(ctx context.Context) error

type JobInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Cron runs Jobs on standard five-field cron specs. Every run gets its own
// context bounded by the configured timeout.
type Cron struct {
	engine  *cron.Cron
	timeout time.Duration
	log     *logrus.Entry

	mu   sync.Mutex
	jobs map[string]registered
}

type registered struct {
	id   cron.EntryID
	spec string
	job  Job
}

func NewCron(timeout time.Duration, loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	log := logger.Component("cron")
	return &Cron{
		engine: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log))),
		),
		timeout: timeout,
		log:     log,
		jobs:    make(map[string]registered),
	}
}

func (c *Cron) Add(name, spec string, job Job) error {
	if job == nil {
		return fmt.Errorf("cron job %q: nil job", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.jobs[name]; dup {
		return fmt.Errorf("cron job %q already registered", name)
	}

	id, err := c.engine.AddFunc(spec, func() { _ = c.run(name, job) })
	if err != nil {
		return fmt.Errorf("cron job %q: invalid spec %q: %w", name, spec, err)
	}
	c.jobs[name] = registered{id: id, spec: spec, job: job}
	return nil
}

// Run executes a registered job now, outside its schedule.
func (c *Cron) Run(name string) error {
	c.mu.Lock()
	r, ok := c.jobs[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return c.run(name, r.job)
}

func (c *Cron) Jobs() []JobInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]JobInfo, 0, len(c.jobs))
	for name, r := range c.jobs {
		out = append(out, JobInfo{Name: name, Spec: r.spec, Next: c.engine.Entry(r.id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Cron) Start() {
	c.engine.Start()
	c.log.WithField("jobs", len(c.jobs)).Info("cron started")
}

// Stop waits for running jobs to finish.
func (c *Cron) Stop() {
	<-c.engine.Stop().Done()
	c.log.Info("cron stopped")
}

func (c *Cron) run(name string, job Job) (err error) {
	entry := c.log.WithField("job", name)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cron job %q panicked: %v", name, r)
			entry.WithField("panic", r).Error("cron job panic recovered")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	if err = job(ctx); err != nil {
		entry.WithError(err).Error("cron job failed")
		return err
	}
	entry.WithField("duration_ms", time.Since(start).Milliseconds()).Info("cron job completed")
	return nil
}
