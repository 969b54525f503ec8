package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/homebase-app/homebase-backend/internal/notifications"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

type pinger func(context.Context) error

type ServiceParams struct {
	Logger   *logger.Logger
	Consumer *notifications.Consumer
	// Dependencies are checked in order before the consumer starts.
	Dependencies map[string]pinger
	Order        []string
}

type Service struct {
	logg     *logger.Logger
	consumer *notifications.Consumer
	deps     map[string]pinger
	order    []string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("notification consumer is required")
	}
	return &Service{
		logg:     params.Logger,
		consumer: params.Consumer,
		deps:     params.Dependencies,
		order:    params.Order,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, name := range s.order {
		fn, ok := s.deps[name]
		if !ok || fn == nil {
			continue
		}
		if err := pingDependency(ctx, s.logg, name, fn); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn pinger) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks on the notification subscription until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	err := s.consumer.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		return err
	}
	s.logg.Info(ctx, "worker context canceled")
	return ctx.Err()
}
