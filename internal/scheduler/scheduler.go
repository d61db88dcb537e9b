package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/ksolden/weather-market-gateway/internal/bundle"
)

// Resolver re-resolves a city's forecast gridpoint.
type Resolver interface {
	RefreshGridpoint(ctx context.Context, city bundle.City) error
}

// Scheduler periodically re-resolves gridpoint URLs so the request path
// never pays the points-API round trip.
type Scheduler struct {
	scheduler *gocron.Scheduler
	resolver  Resolver
	cities    []bundle.City
	interval  time.Duration
}

// New creates a new Scheduler.
func New(cities []bundle.City, interval time.Duration, resolver Resolver) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		resolver:  resolver,
		cities:    cities,
		interval:  interval,
	}
}

// Start schedules the periodic warm job and starts the underlying scheduler.
// The job also runs once immediately so the cache is warm before the first
// request.
func (s *Scheduler) Start() error {
	if len(s.cities) == 0 {
		log.Println("scheduler: no cities configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 360
	}

	_, err := s.scheduler.Every(minutes).Minutes().StartImmediately().Do(func() {
		log.Println("scheduler: refreshing gridpoint cache")

		var wg sync.WaitGroup
		for _, city := range s.cities {
			city := city
			wg.Add(1)
			go func() {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := s.resolver.RefreshGridpoint(ctx, city); err != nil {
					log.Printf("scheduler: gridpoint refresh failed for %s: %v", city.Code, err)
				}
			}()
		}
		wg.Wait()
		log.Println("scheduler: gridpoint cache refresh complete")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
