package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// ExecuteFunc launches one execution of a workflow. Wired to the
// engine's runner at startup (deferred to break the init cycle).
type ExecuteFunc func(workflowID string)

// SchedulerService maps workflows carrying a cron expression to
// periodic executions.
type SchedulerService struct {
	scheduler gocron.Scheduler
	workflows *WorkflowService
	execute   ExecuteFunc
	mu        sync.RWMutex
	jobs      map[string]gocron.Job // workflowID -> job
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(workflows *WorkflowService) (*SchedulerService, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &SchedulerService{
		scheduler: scheduler,
		workflows: workflows,
		jobs:      make(map[string]gocron.Job),
	}, nil
}

// SetExecutor sets the workflow execute function (deferred initialization)
func (s *SchedulerService) SetExecutor(execute ExecuteFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execute = execute
}

// Start registers all scheduled workflows and starts the scheduler
func (s *SchedulerService) Start() error {
	log.Println("⏰ Starting scheduler service...")

	scheduled, err := s.workflows.ListScheduled()
	if err != nil {
		log.Printf("⚠️ Failed to load scheduled workflows: %v", err)
	} else {
		for _, wf := range scheduled {
			if err := s.registerJob(wf.ID, wf.Schedule); err != nil {
				log.Printf("⚠️ Failed to register schedule for workflow %s: %v", wf.ID, err)
			}
		}
	}

	s.scheduler.Start()
	log.Printf("✅ Scheduler service started (%d job(s))", len(s.jobs))
	return nil
}

// Stop stops the scheduler
func (s *SchedulerService) Stop() error {
	log.Println("⏹️ Stopping scheduler service...")
	return s.scheduler.Shutdown()
}

// registerJob validates the cron expression and adds the gocron job
func (s *SchedulerService) registerJob(workflowID, expression string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(expression); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	job, err := s.scheduler.NewJob(
		gocron.CronJob(expression, false),
		gocron.NewTask(func() {
			s.mu.RLock()
			execute := s.execute
			s.mu.RUnlock()
			if execute == nil {
				log.Printf("⚠️ [SCHEDULER] No executor wired, skipping workflow %s", workflowID)
				return
			}
			log.Printf("⏰ [SCHEDULER] Triggering scheduled run of workflow %s", workflowID)
			execute(workflowID)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.jobs[workflowID] = job
	return nil
}
