package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scalex/domain/fee"
	"scalex/pkg/fixed"
)

func feesCommand() *cobra.Command {
	feesCmd := &cobra.Command{
		Use:   "fees",
		Short: "Fee tier helpers",
	}

	feesCmd.AddCommand(&cobra.Command{
		Use:   "tiers",
		Short: "List supported fee tiers and their tick spacing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "tier_bps  tick_spacing")
			for _, bps := range fee.SupportedTiers() {
				spacing, err := fee.TickSpacingFor(bps)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%8d  %12d\n", bps, spacing)
			}
			return nil
		},
	})

	splitCmd := &cobra.Command{
		Use:   "split",
		Short: "Compute the fee on an amount and its protocol/LP split",
		RunE:  runFeeSplit,
	}
	splitCmd.Flags().String("amount", "", "human amount, e.g. 2000.5")
	splitCmd.Flags().Uint8("decimals", 18, "currency decimals")
	splitCmd.Flags().Uint32("tier", 20, "fee tier in basis points")
	splitCmd.Flags().Uint32("protocol", 0, "protocol share in basis points, at most the tier")
	feesCmd.AddCommand(splitCmd)

	return feesCmd
}

func runFeeSplit(cmd *cobra.Command, _ []string) error {
	s, _ := cmd.Flags().GetString("amount")
	decimals, _ := cmd.Flags().GetUint8("decimals")
	tier, _ := cmd.Flags().GetUint32("tier")
	protocol, _ := cmd.Flags().GetUint32("protocol")

	if !fee.IsValidFeeTier(tier) {
		return fmt.Errorf("unsupported tier %d, see 'fees tiers'", tier)
	}
	amount, err := fixed.Parse(s, decimals)
	if err != nil {
		return err
	}
	total := fee.CalculateFee(amount, tier)
	proto, lp, err := fee.SplitFee(total, tier, protocol)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "fee      %s\n", fixed.Format(total, decimals))
	fmt.Fprintf(out, "protocol %s\n", fixed.Format(proto, decimals))
	fmt.Fprintf(out, "lp       %s\n", fixed.Format(lp, decimals))
	return nil
}
