package monitor

import (
	"context"

	"netmonitor/internal/analysis"
)

// SamplerService runs a TrafficSampler under supervision.
type SamplerService struct {
	Sampler *analysis.TrafficSampler
}

func (s SamplerService) Serve(ctx context.Context) error {
	if err := s.Sampler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Sampler.Stop()
	return nil
}

func (s SamplerService) String() string { return "traffic sampler" }
