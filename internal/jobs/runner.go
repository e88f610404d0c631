package jobs

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

type Job interface {
	ID() string
	Run()
}

type CronJob interface {
	Schedule() string
	Job
}

// TaskExecutor runs cron jobs, skipping a tick while the previous run of the same job is still going.
type TaskExecutor struct {
	cron            *cron.Cron
	cronJobs        []CronJob
	runningCronJobs mapset.Set[string]
	muCronJobs      sync.Mutex
}

func NewTaskExecutor(cronJobs ...CronJob) *TaskExecutor {
	return &TaskExecutor{
		cron:            cron.New(),
		cronJobs:        cronJobs,
		runningCronJobs: mapset.NewThreadUnsafeSet[string](),
	}
}

// Run schedules every job and starts the cron in its own goroutine.
func (t *TaskExecutor) Run() error {
	for _, job := range t.cronJobs {
		err := t.cron.AddFunc(job.Schedule(), func() {
			t.runOnce(job)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", job.ID(), err)
		}

		logrus.Infof("scheduled task %s: %s", job.ID(), job.Schedule())
	}

	t.cron.Start()

	return nil
}

func (t *TaskExecutor) runOnce(job CronJob) {
	t.muCronJobs.Lock()
	if t.runningCronJobs.Contains(job.ID()) {
		t.muCronJobs.Unlock()
		logrus.Warnf("task %s is still running, skipping", job.ID())
		return
	}
	t.runningCronJobs.Add(job.ID())
	t.muCronJobs.Unlock()

	defer func() {
		t.muCronJobs.Lock()
		defer t.muCronJobs.Unlock()
		t.runningCronJobs.Remove(job.ID())
	}()

	job.Run()
}

func (t *TaskExecutor) Stop() {
	logrus.Infof("stopping all tasks")
	t.cron.Stop()
}
