package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scalex/domain/currency"
	"scalex/domain/ledger"
	"scalex/domain/orderbook"
	"scalex/service"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ex, err := service.New(service.Config{
		Ledger: ledger.Config{Owner: cfg.Owner, FeeReceiver: cfg.FeeReceiver, Fees: cfg.Fees},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	snapDir := cfg.SnapshotDir
	if skip, _ := cmd.Flags().GetBool("no-snapshot"); skip {
		snapDir = ""
	}
	st, err := ex.Recover(snapDir, cfg.WALDir)
	if err != nil {
		return err
	}
	logger.Debug("replay done", zap.Any("stats", st))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "snapshot seq %d, replayed %d commands (%d rejected), last seq %d\n",
		st.SnapshotSeq, st.Replayed, st.Rejected, st.LastSeq)

	seen := map[currency.Currency]bool{}
	for _, p := range ex.Pools() {
		fmt.Fprintf(out, "pool %s %s: %d resting, %d bid / %d ask levels, last order %d\n",
			p.ID.Hex(), p.Key, p.Stats.Resting, p.Stats.BidLevels, p.Stats.AskLevels, p.LastOrderID)
		for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
			price, volume, err := ex.BestPrice(p.ID, side)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  best %-4s %s (volume %s)\n", side, price.Dec(), volume.Dec())
		}
		seen[p.Key.Base] = true
		seen[p.Key.Quote] = true
	}

	unbalanced := 0
	for cur := range seen {
		t := ex.Totals(cur)
		mark := "ok"
		if !t.Balanced() {
			mark = "UNBALANCED"
			unbalanced++
		}
		fmt.Fprintf(out, "%s free %s locked %s protocol %s deposited %s withdrawn %s %s\n",
			cur, t.Free.Dec(), t.Locked.Dec(), t.Protocol.Dec(), t.Deposited.Dec(), t.Withdrawn.Dec(), mark)
	}
	if unbalanced > 0 {
		return fmt.Errorf("%d currencies fail the conservation check", unbalanced)
	}
	return nil
}
