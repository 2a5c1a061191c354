package relay

import (
	"context"

	"github.com/lockrelay/lockd/pkg/connection"
	"github.com/lockrelay/lockd/pkg/log"
)

// Initializer builds a Registry from a fleet config, connecting to every
// device. Devices that fail to connect at startup are not fatal: they
// are retried on a fixed background interval via connection.Retrier
// until every device in the config has an installed session.
type Initializer struct {
	cfg      Config
	registry *Registry
	dial     Dialer
	logger   log.Logger
}

// NewInitializer validates cfg and returns an Initializer ready to
// connect, or a wrapped ErrConfigInvalid if the config itself is
// malformed.
func NewInitializer(cfg Config, dial Dialer, logger log.Logger) (*Initializer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	if dial == nil {
		dial = defaultDialer
	}
	return &Initializer{
		cfg:      cfg,
		registry: NewRegistry(),
		dial:     dial,
		logger:   logger,
	}, nil
}

// Registry returns the registry being populated. It is safe to read and
// hand to the HTTP layer immediately; devices that haven't connected
// yet simply won't resolve until InitializeOnce or Run installs them.
func (i *Initializer) Registry() *Registry {
	return i.registry
}

// InitializeOnce attempts to connect every device not yet installed. It
// returns true once every device in the config has an installed
// session.
func (i *Initializer) InitializeOnce(ctx context.Context) bool {
	complete := true
	for addr, desc := range i.cfg {
		if i.registry.Has(addr) {
			continue
		}
		session := newSessionWithDialer(addr, i.dial, i.logger)
		if err := session.Connect(ctx); err != nil {
			complete = false
			continue
		}
		i.registry.Install(addr, desc, session)
	}
	return complete
}

// Run drives InitializeOnce on a fixed 10-second interval until every
// device is installed or ctx is canceled. Call it from a background
// goroutine right after a first synchronous InitializeOnce at startup.
func (i *Initializer) Run(ctx context.Context, retrier *connection.Retrier) error {
	if retrier == nil {
		retrier = connection.NewRetrier(connection.DefaultRetryInterval)
	}
	return retrier.Run(ctx, i.InitializeOnce)
}
