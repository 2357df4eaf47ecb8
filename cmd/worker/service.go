package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

const heartbeatInterval = 30 * time.Second

var errConsumerExited = errors.New("consumer exited")

type pinger interface {
	Ping(ctx context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

// Dependency is a named readiness probe checked before any consumer starts.
type Dependency struct {
	Name string
	Ping pinger
}

// Consumer is a named subscription loop.
type Consumer struct {
	Name string
	Run  consumer
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []Dependency
	Consumers    []Consumer
}

// Service runs every domain event consumer once all dependencies answer. The
// first consumer to fail stops the rest.
type Service struct {
	logg         *logger.Logger
	dependencies []Dependency
	consumers    []Consumer
	heartbeat    time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for _, dep := range params.Dependencies {
		if dep.Ping == nil {
			return nil, fmt.Errorf("%s dependency is nil", dep.Name)
		}
	}
	for _, c := range params.Consumers {
		if c.Run == nil {
			return nil, fmt.Errorf("%s consumer is nil", c.Name)
		}
	}
	return &Service{
		logg:         params.Logger,
		dependencies: params.Dependencies,
		consumers:    params.Consumers,
		heartbeat:    heartbeatInterval,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.dependencies {
		if err := dep.Ping.Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", dep.Name), "readiness check failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.Name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		group.Go(func() error {
			consumerCtx := s.logg.WithField(groupCtx, "consumer", c.Name)
			s.logg.Info(consumerCtx, "consumer started")
			err := c.Run.Run(consumerCtx)
			if err == nil {
				return fmt.Errorf("%s: %w", c.Name, errConsumerExited)
			}
			if !errors.Is(err, context.Canceled) {
				s.logg.Error(consumerCtx, "consumer stopped unexpectedly", err)
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			return err
		})
	}
	group.Go(func() error {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case <-ticker.C:
				s.logg.Debug(groupCtx, "worker heartbeat")
			}
		}
	})

	err := group.Wait()
	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	return err
}
