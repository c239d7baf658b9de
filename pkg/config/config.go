// Package config holds the typed configuration records for the two protocol
// roles. Every publish and subscribe call threads an explicit endpoint set
// taken from these records; there is no process-wide default relay list.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/dvm-project/dvmkit/pkg/inference"
	"github.com/dvm-project/dvmkit/pkg/models"
)

const (
	DefaultSweepInterval       = 3 * time.Second
	DefaultPollBaseBackoff     = 2 * time.Second
	DefaultPollBackoffFactor   = 1.5
	DefaultPollMaxBackoff      = 30 * time.Second
	DefaultPaymentTimeout      = 5 * time.Minute
	DefaultResponseTimeout     = 2 * time.Minute
	DefaultServingWorkers      = 3
	DefaultPublishMaxAttempts  = 3
	DefaultMinPriceUnits       = 1
	DefaultPricePerKBUnits     = 1
	DefaultAutoPayCeilingUnits = 10
)

// ProcessorConfig configures the provider role.
type ProcessorConfig struct {
	// Endpoints is the relay set this processor listens and answers on.
	Endpoints []string
	// SupportedKinds lists the job request kinds this processor serves.
	SupportedKinds []int

	BasePriceUnits  uint64
	PricePerKBUnits uint64
	MinPriceUnits   uint64

	SweepInterval     time.Duration
	PollBaseBackoff   time.Duration
	PollBackoffFactor float64
	PollMaxBackoff    time.Duration
	PaymentTimeout    time.Duration

	// OptimisticThreshold is the number of clean pending polls after which a
	// job is served before settlement confirmation. Zero disables it, and
	// disabled is the default: serving unpaid work is a product decision.
	OptimisticThreshold int

	ServingWorkers     int
	PublishMaxAttempts int

	RunParams inference.RunParams
}

// WithDefaults fills unset fields with defaults and returns the result.
func (c ProcessorConfig) WithDefaults() ProcessorConfig {
	if len(c.SupportedKinds) == 0 {
		c.SupportedKinds = []int{models.KindJobRequestTextGeneration}
	}
	if c.PricePerKBUnits == 0 {
		c.PricePerKBUnits = DefaultPricePerKBUnits
	}
	if c.MinPriceUnits == 0 {
		c.MinPriceUnits = DefaultMinPriceUnits
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.PollBaseBackoff == 0 {
		c.PollBaseBackoff = DefaultPollBaseBackoff
	}
	if c.PollBackoffFactor == 0 {
		c.PollBackoffFactor = DefaultPollBackoffFactor
	}
	if c.PollMaxBackoff == 0 {
		c.PollMaxBackoff = DefaultPollMaxBackoff
	}
	if c.PaymentTimeout == 0 {
		c.PaymentTimeout = DefaultPaymentTimeout
	}
	if c.ServingWorkers == 0 {
		c.ServingWorkers = DefaultServingWorkers
	}
	if c.PublishMaxAttempts == 0 {
		c.PublishMaxAttempts = DefaultPublishMaxAttempts
	}
	return c
}

// SubmitterConfig configures the consumer role.
type SubmitterConfig struct {
	// Endpoints is the relay set requests are published to and watched on.
	Endpoints []string

	// AutoPayCeilingUnits is the largest quote paid without explicit
	// approval. Quotes above it hold the job until Approve is called. This
	// is a trust/UX tradeoff, not protocol: tune it per deployment.
	AutoPayCeilingUnits uint64
	// MaxFeeUnits bounds the routing fee offered when paying.
	MaxFeeUnits uint64

	// ResponseTimeout bounds the wait for a terminal event after publishing
	// the request.
	ResponseTimeout time.Duration

	PublishMaxAttempts int
}

// WithDefaults fills unset fields with defaults and returns the result.
func (c SubmitterConfig) WithDefaults() SubmitterConfig {
	if c.AutoPayCeilingUnits == 0 {
		c.AutoPayCeilingUnits = DefaultAutoPayCeilingUnits
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.PublishMaxAttempts == 0 {
		c.PublishMaxAttempts = DefaultPublishMaxAttempts
	}
	return c
}

// Viper keys shared by the CLI commands.
const (
	KeyEndpoints           = "endpoints"
	KeySupportedKinds      = "processor.kinds"
	KeyMinPrice            = "processor.min-price"
	KeyPricePerKB          = "processor.price-per-kb"
	KeyPaymentTimeout      = "processor.payment-timeout"
	KeySweepInterval       = "processor.sweep-interval"
	KeyOptimisticThreshold = "processor.optimistic-threshold"
	KeyAutoPayCeiling      = "submitter.auto-pay-ceiling"
	KeyResponseTimeout     = "submitter.response-timeout"
)

// SetDefaults registers defaults for the shared viper keys.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyMinPrice, DefaultMinPriceUnits)
	v.SetDefault(KeyPricePerKB, DefaultPricePerKBUnits)
	v.SetDefault(KeyPaymentTimeout, DefaultPaymentTimeout)
	v.SetDefault(KeySweepInterval, DefaultSweepInterval)
	v.SetDefault(KeyOptimisticThreshold, 0)
	v.SetDefault(KeyAutoPayCeiling, DefaultAutoPayCeilingUnits)
	v.SetDefault(KeyResponseTimeout, DefaultResponseTimeout)
}
