package netvolstore

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/runpod/netvolstore/catalog"
	"github.com/runpod/netvolstore/objectstore"
	"github.com/runpod/netvolstore/registry"
)

// Module wires the whole client — Endpoint Registry, Volume Catalog Client,
// Object Store Client factory, logging and observability, and the Facade
// that ties them together — into an fx.App, grounded on the teacher's
// module.go provider/lifecycle shape (that version wired a single generic
// Storage behind gostratum/core's configx.Loader/logx.Logger/
// metricsx.Metrics/tracingx.Tracer; this version wires a concrete
// network-volume client behind *viper.Viper and this module's own
// Logger/Instrumenter, since gostratum/core is not resolvable outside its
// origin monorepo).
func Module() fx.Option {
	return fx.Module("netvolstore",
		fx.Provide(
			NewConfigFromViper,
			registry.New,
			NewZapLoggerFromParams,
			NewInstrumenterFromParams,
			catalog.New,
			objectstore.NewFactory,
			NewFacade,
		),
		fx.Invoke(registerLifecycle),
	)
}

// ZapParams supplies an optional *zap.Logger; when absent a production
// logger is constructed.
type ZapParams struct {
	fx.In

	Zap *zap.Logger `optional:"true"`
}

// NewZapLoggerFromParams adapts a *zap.Logger (supplied by the host
// application, or a fresh production logger if none was supplied) into this
// module's Logger interface.
func NewZapLoggerFromParams(p ZapParams) (Logger, error) {
	z := p.Zap
	if z == nil {
		built, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		z = built
	}
	return NewZapLogger(z.Sugar()), nil
}

// ObservabilityParams supplies optional Prometheus/OpenTelemetry
// dependencies from the host application.
type ObservabilityParams struct {
	fx.In

	Registerer     prometheus.Registerer `optional:"true"`
	TracerProvider trace.TracerProvider  `optional:"true"`
}

// NewInstrumenterFromParams builds the module's Instrumenter from whatever
// Prometheus registerer / OTel tracer provider the host application
// supplies, defaulting to the global registry/provider if neither is
// supplied.
func NewInstrumenterFromParams(p ObservabilityParams) *Instrumenter {
	return NewInstrumenter(p.Registerer, p.TracerProvider)
}

// FacadeParams lets callers observe lifecycle without reaching into the
// Facade's unexported fields.
type FacadeParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Facade    *Facade
	Logger    Logger `optional:"true"`
}

// registerLifecycle logs module start/stop; the Facade itself holds no
// resources that need an explicit OnStop close (its Object Store Clients
// wrap the AWS SDK's own internally-pooled *http.Client, which needs no
// explicit shutdown).
func registerLifecycle(p FacadeParams) {
	logger := p.Logger
	if logger == nil {
		logger = NewNopLogger()
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("netvolstore module started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("netvolstore module stopping")
			return nil
		},
	})
}
