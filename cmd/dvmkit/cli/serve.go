package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dvm-project/dvmkit/pkg/config"
	"github.com/dvm-project/dvmkit/pkg/inference"
	"github.com/dvm-project/dvmkit/pkg/processor"
	storeinmemory "github.com/dvm-project/dvmkit/pkg/processor/store/inmemory"
	"github.com/dvm-project/dvmkit/pkg/sealer"
	"github.com/dvm-project/dvmkit/pkg/stamper"
)

var serveMinPrice uint64
var servePricePerKB uint64
var servePaymentTimeout time.Duration
var serveOptimisticThreshold int
var serveMinDifficulty int
var serveLndEndpoint string
var serveLndMacaroon string
var serveOllamaEndpoint string
var serveOllamaModel string

func init() { //nolint:gochecknoinits // Using init in cobra command is idiomatic
	serveCmd.PersistentFlags().Uint64Var(
		&serveMinPrice, "min-price", config.DefaultMinPriceUnits,
		`The minimum price quoted for any job, in payment units.`,
	)
	serveCmd.PersistentFlags().Uint64Var(
		&servePricePerKB, "price-per-kb", config.DefaultPricePerKBUnits,
		`The price per kilobyte of job input, in payment units.`,
	)
	serveCmd.PersistentFlags().DurationVar(
		&servePaymentTimeout, "payment-timeout", config.DefaultPaymentTimeout,
		`How long to hold an unpaid job before abandoning it.`,
	)
	serveCmd.PersistentFlags().IntVar(
		&serveOptimisticThreshold, "optimistic-threshold", 0,
		`Number of clean pending polls after which a job is served before settlement. 0 disables optimistic serving.`,
	)
	serveCmd.PersistentFlags().IntVar(
		&serveMinDifficulty, "min-difficulty", 0,
		`The admission proof-of-work difficulty this node enforces on relayed events.`,
	)
	serveCmd.PersistentFlags().StringVar(
		&serveLndEndpoint, "lnd-endpoint", "",
		`The base URL of the Lightning node REST API. Empty uses an in-memory provider for local development.`,
	)
	serveCmd.PersistentFlags().StringVar(
		&serveLndMacaroon, "lnd-macaroon", "",
		`The hex-encoded macaroon authenticating against the Lightning node.`,
	)
	serveCmd.PersistentFlags().StringVar(
		&serveOllamaEndpoint, "ollama-endpoint", "",
		`The base URL of the ollama API serving inference. Empty uses an echo engine for local development.`,
	)
	serveCmd.PersistentFlags().StringVar(
		&serveOllamaModel, "ollama-model", "",
		`The ollama model name to serve jobs with.`,
	)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a processor node",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		processorKey, err := newIdentity()
		if err != nil {
			return err
		}

		bus, err := setupBus(ctx, serveMinDifficulty)
		if err != nil {
			return err
		}
		defer bus.Close(ctx) //nolint:errcheck

		var engine inference.Engine
		if serveOllamaEndpoint != "" {
			engine = inference.NewOllamaEngine(serveOllamaEndpoint, serveOllamaModel)
		} else {
			engine = inference.NewEchoEngine()
		}

		jobStore := storeinmemory.NewStore()
		defer jobStore.Close(ctx) //nolint:errcheck

		node := processor.NewProcessor(processor.ProcessorParams{
			ProcessorKey: processorKey,
			Bus:          bus,
			Store:        jobStore,
			Payments:     setupPayments(serveLndEndpoint, serveLndMacaroon),
			Engine:       engine,
			Sealer:       sealer.NewPassthrough(),
			Stamper:      stamper.NewMiner(stamper.MinerParams{}),
			Config: config.ProcessorConfig{
				Endpoints:           endpoints,
				MinPriceUnits:       serveMinPrice,
				PricePerKBUnits:     servePricePerKB,
				PaymentTimeout:      servePaymentTimeout,
				OptimisticThreshold: serveOptimisticThreshold,
			},
		})
		if err := node.Start(ctx); err != nil {
			return err
		}

		log.Ctx(ctx).Info().
			Str("processorKey", processorKey).
			Strs("endpoints", endpoints).
			Msg("processor is serving")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			log.Ctx(ctx).Info().Msgf("received %s, shutting down", sig)
		case <-ctx.Done():
		}
		node.Stop(ctx)
		return nil
	},
}
