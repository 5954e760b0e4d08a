package crawler

import (
	"time"

	"github.com/go-co-op/gocron"

	"web-research-assistant/internal/logger"
)

// Scheduler re-fetches ingested sources on an interval so the index tracks
// source changes. One tag per source URL keeps refresh jobs unique.
type Scheduler struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Scheduler{scheduler: s}
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// ScheduleRefresh runs refresh for a source at the given interval. Scheduling
// the same URL again replaces its previous job.
func (s *Scheduler) ScheduleRefresh(sourceURL string, interval time.Duration, refresh func() error) error {
	s.scheduler.RemoveByTag(sourceURL)
	_, err := s.scheduler.Every(interval).Tag(sourceURL).Do(func() {
		logger.Info("refreshing source", "url", sourceURL)
		if err := refresh(); err != nil {
			logger.Error("source refresh failed", "url", sourceURL, "error", err)
		}
	})
	return err
}

// CancelRefresh drops the refresh job for a source, if any.
func (s *Scheduler) CancelRefresh(sourceURL string) {
	s.scheduler.RemoveByTag(sourceURL)
}

// Jobs returns the scheduled refresh jobs.
func (s *Scheduler) Jobs() []*gocron.Job {
	return s.scheduler.Jobs()
}
