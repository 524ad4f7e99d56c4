package tracing

import (
	"fmt"
	"turtle_bot/pkg/logger"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
)

type Config struct {
	Service string
	Host    string
	Port    int
	// доля семплируемых спанов, 0: трейсинг выключен (noop tracer)
	SampleRate float64
}

// InitTracer ставит глобальный трейсер. При SampleRate == 0 остаётся noop.
func InitTracer(conf Config) (opentracing.Tracer, func(), error) {
	if conf.SampleRate <= 0 || conf.Host == "" {
		t := opentracing.NoopTracer{}
		opentracing.SetGlobalTracer(t)
		return t, func() {}, nil
	}

	sampler := &jCfg.SamplerConfig{Type: "probabilistic", Param: conf.SampleRate}
	if conf.SampleRate >= 1 {
		sampler = &jCfg.SamplerConfig{Type: "const", Param: 1}
	}
	cfg := &jCfg.Configuration{
		ServiceName: conf.Service,
		Sampler:     sampler,
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           false,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	jMetricsFactory := metrics.NullFactory
	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(jMetricsFactory),
	)
	if err != nil {
		return nil, nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, func() {
		if err := closer.Close(); err != nil {
			logger.Error("Error closing Jaeger tracer: %v", err)
		}
	}, nil
}
