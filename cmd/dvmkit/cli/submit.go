package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dvm-project/dvmkit/pkg/config"
	"github.com/dvm-project/dvmkit/pkg/sealer"
	"github.com/dvm-project/dvmkit/pkg/stamper"
	"github.com/dvm-project/dvmkit/pkg/submitter"
)

var submitTarget string
var submitAutoPayCeiling uint64
var submitMaxFee uint64
var submitTimeout time.Duration
var submitApproveAll bool
var submitLndEndpoint string
var submitLndMacaroon string

func init() { //nolint:gochecknoinits // Using init in cobra command is idiomatic
	submitCmd.PersistentFlags().StringVar(
		&submitTarget, "to", "",
		`The identity key of the processor to route the job to. Empty broadcasts to any processor.`,
	)
	submitCmd.PersistentFlags().Uint64Var(
		&submitAutoPayCeiling, "auto-pay-ceiling", config.DefaultAutoPayCeilingUnits,
		`The largest quote paid without asking, in payment units.`,
	)
	submitCmd.PersistentFlags().Uint64Var(
		&submitMaxFee, "max-fee", 0,
		`The largest routing fee offered when paying, in payment units.`,
	)
	submitCmd.PersistentFlags().DurationVar(
		&submitTimeout, "timeout", config.DefaultResponseTimeout,
		`How long to wait for a result before giving up.`,
	)
	submitCmd.PersistentFlags().BoolVar(
		&submitApproveAll, "yes", false,
		`Approve quotes above the auto-pay ceiling without asking.`,
	)
	submitCmd.PersistentFlags().StringVar(
		&submitLndEndpoint, "lnd-endpoint", "",
		`The base URL of the Lightning node REST API paying invoices.`,
	)
	submitCmd.PersistentFlags().StringVar(
		&submitLndMacaroon, "lnd-macaroon", "",
		`The hex-encoded macaroon authenticating against the Lightning node.`,
	)
}

var submitCmd = &cobra.Command{
	Use:   "submit [prompt]",
	Short: "Submit an inference job and wait for the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		submitterKey, err := newIdentity()
		if err != nil {
			return err
		}

		bus, err := setupBus(ctx, 0)
		if err != nil {
			return err
		}
		defer bus.Close(ctx) //nolint:errcheck

		sub := submitter.NewSubmitter(submitter.SubmitterParams{
			SubmitterKey: submitterKey,
			Bus:          bus,
			Payments:     setupPayments(submitLndEndpoint, submitLndMacaroon),
			Sealer:       sealer.NewPassthrough(),
			Stamper:      stamper.NewMiner(stamper.MinerParams{}),
			Config: config.SubmitterConfig{
				Endpoints:           endpoints,
				AutoPayCeilingUnits: submitAutoPayCeiling,
				MaxFeeUnits:         submitMaxFee,
				ResponseTimeout:     submitTimeout,
			},
		})

		job, err := sub.Submit(ctx, submitter.SubmitParams{
			Prompt:          args[0],
			TargetProcessor: submitTarget,
		})
		if err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("jobID", job.ID()).Msg("job published, waiting for updates")

		var last submitter.Update
		for update := range job.Updates() {
			last = update
			log.Ctx(ctx).Info().
				Str("state", update.State.String()).
				Str("detail", update.Detail).
				Uint64("amount", update.AmountUnits).
				Msg("job update")
			if update.RequiresApproval {
				if !submitApproveAll {
					return fmt.Errorf("quote of %d units exceeds the auto-pay ceiling of %d, re-run with --yes to approve",
						update.AmountUnits, submitAutoPayCeiling)
				}
				job.Approve()
			}
			if update.State.IsTerminal() {
				break
			}
		}

		printOutcome(job.ID(), last)
		if last.State != submitter.JobStateCompleted {
			return errors.Errorf("job finished in state %s: %s", last.State, last.Detail)
		}
		return nil
	},
}

func printOutcome(jobID string, update submitter.Update) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Job", "State", "Paid", "Detail"})
	t.AppendRow(table.Row{jobID, update.State, update.AmountUnits, update.Detail})
	t.Render()
	if update.Result != nil {
		fmt.Println(update.Result.Output)
	}
}
