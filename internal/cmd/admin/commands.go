package admin

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	serverrun "github.com/rfoltyns/esfailover/internal/cmd/server"
	"github.com/rfoltyns/esfailover/internal/failover"
)

type sequenceView struct {
	SeqID       int64 `json:"seq_id"`
	OwnerID     int64 `json:"owner_id"`
	ReaderIndex int64 `json:"reader_index"`
	WriterIndex int64 `json:"writer_index"`
	ExpireAt    int64 `json:"expire_at"`
	Queued      int64 `json:"queued"`
}

// newInspectCommand constructs the `inspect` subcommand.
func newInspectCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "List registered key sequences and store size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			seqs, err := rt.Sequences()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, s := range seqs {
				if err := enc.Encode(sequenceView{
					SeqID:       s.SeqID(),
					OwnerID:     s.OwnerID(),
					ReaderIndex: s.ReaderIndex(),
					WriterIndex: s.WriterIndex(),
					ExpireAt:    s.ExpireAt(),
					Queued:      s.WriterIndex() - s.ReaderIndex(),
				}); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entries: %d\n", rt.Size())
			return nil
		},
	}
}

// newPurgeCommand constructs the `purge` subcommand.
func newPurgeCommand(g *globalFlags) *cobra.Command {
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove a key sequence config from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seqID, _ := cmd.Flags().GetInt64("seq-id")
			if seqID <= 0 {
				return fmt.Errorf("--seq-id must be positive")
			}
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			ok, err := rt.Purge(seqID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("sequence %d is not registered", seqID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged sequence %d\n", seqID)
			return nil
		},
	}
	purgeCmd.Flags().Int64("seq-id", 0, "Sequence id to purge")
	return purgeCmd
}

// newReplayCommand constructs the `replay` subcommand. It claims the sequence
// and writes every queued item to stdout as a JSON line, consuming it.
func newReplayCommand(g *globalFlags) *cobra.Command {
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Drain queued items of a sequence to stdout as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			seqID, _ := cmd.Flags().GetInt64("seq-id")
			batch, _ := cmd.Flags().GetInt("batch-size")

			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if seqID <= 0 {
				seqID = cfg.Failover.SeqID
			}
			if batch > 0 {
				cfg.Failover.BatchSize = batch
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := openRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := rt.OpenPolicy(ctx, seqID)
			if err != nil {
				return err
			}
			defer func() {
				if stopErr := p.Stop(5*time.Second, false); stopErr != nil {
					err = multierror.Append(err, stopErr).ErrorOrNil()
				}
			}()

			p.AddListener(failover.NewJSONLinesListener(cmd.OutOrStdout()))

			total := 0
			for ctx.Err() == nil && p.Stats().Available > 0 {
				n, err := p.RetryNow()
				if err != nil {
					return err
				}
				total += n
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "replayed %d items from sequence %d\n", total, seqID)
			return ctx.Err()
		},
	}
	replayCmd.Flags().Int64("seq-id", 0, "Sequence id to replay (default failover.seqId)")
	replayCmd.Flags().Int("batch-size", 0, "Items per pass (default failover.batchSize)")
	return replayCmd
}

// newRunCommand constructs the `run` subcommand, which hosts the policy until
// interrupted.
func newRunCommand(g *globalFlags) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Claim a sequence and retry queued items into a spool file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if seqID, _ := cmd.Flags().GetInt64("seq-id"); seqID > 0 {
				cfg.Failover.SeqID = seqID
			}
			spool, _ := cmd.Flags().GetString("spool")
			httpAddr, _ := cmd.Flags().GetString("http")
			return serverrun.Run(cmd.Context(), serverrun.Options{
				Config:    cfg,
				HTTPAddr:  httpAddr,
				SpoolPath: spool,
				Logger:    logger,
			})
		},
	}
	runCmd.Flags().Int64("seq-id", 0, "Sequence id to claim (default failover.seqId)")
	runCmd.Flags().String("spool", "", "File receiving retried items as JSON lines (default stdout)")
	runCmd.Flags().String("http", ":9108", "Admin HTTP listen address; empty disables it")
	return runCmd
}
