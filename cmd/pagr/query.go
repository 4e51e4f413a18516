package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/pagr/internal/app"
	"github.com/bobmcallan/pagr/internal/models"
)

func newExposureCmd(opts *options) *cobra.Command {
	var dimension string

	cmd := &cobra.Command{
		Use:   "exposure [portfolio...]",
		Short: "Show exposure by sector, country, country of risk, issuer or region",
		Long: `Groups the combined positions of the named portfolios (all portfolios
when none are named) and reports value, weight and position counts per
group. Positions without a market value count as zero and are reported as
unpriced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dim, ok := models.ParseDimension(dimension)
			if !ok {
				return fmt.Errorf("unknown dimension %q (want sector, country, country_of_risk, issuer or region)", dimension)
			}
			return runWithApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				rows, err := a.ExposureService.GetExposure(ctx, args, dim)
				if err != nil {
					return err
				}
				return writeExposure(cmd.OutOrStdout(), dim, rows, opts.jsonOutput)
			})
		},
	}

	cmd.Flags().StringVarP(&dimension, "by", "b", string(models.DimSector), "Dimension: sector, country, country_of_risk, issuer or region")
	return cmd
}

func newPositionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "positions [portfolio...]",
		Short: "List positions with their resolved attributes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				views, err := a.ExposureService.GetPositions(ctx, args)
				if err != nil {
					return err
				}
				return writePositions(cmd.OutOrStdout(), views, opts.jsonOutput)
			})
		},
	}
}

func newExecutivesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "executives [portfolio...]",
		Short: "List the chief executives of held companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				rows, err := a.ExposureService.GetExecutives(ctx, args)
				if err != nil {
					return err
				}
				return writeExecutives(cmd.OutOrStdout(), rows, opts.jsonOutput)
			})
		},
	}
}

func newStressCmd(opts *options) *cobra.Command {
	var sector, region string

	cmd := &cobra.Command{
		Use:   "stress [portfolio...]",
		Short: "Show the holdings hit by a sector slowdown in a region",
		Long: `Lists the held companies in the sector whose country of operations lies
in the region, with the market value at risk and its share of the
selection. Sector and region match case-insensitively.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sector == "" || region == "" {
				return fmt.Errorf("--sector and --region are required")
			}
			return runWithApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				rows, err := a.ExposureService.GetSectorRegionStress(ctx, args, sector, region)
				if err != nil {
					return err
				}
				return writeStress(cmd.OutOrStdout(), rows, opts.jsonOutput)
			})
		},
	}

	cmd.Flags().StringVar(&sector, "sector", "", "Sector, e.g. Technology")
	cmd.Flags().StringVar(&region, "region", "", "Region, e.g. Europe or Asia Pacific")
	return cmd
}

func newPortfoliosCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolios",
		Short: "List stored portfolios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				list, err := a.ExposureService.ListPortfolios(ctx)
				if err != nil {
					return err
				}
				return writePortfolios(cmd.OutOrStdout(), list, opts.jsonOutput)
			})
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <portfolio>",
		Short: "Delete a portfolio and its positions",
		Long:  `Removes the portfolio and the positions it contains. Securities, issuers and countries stay for other portfolios.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.PipelineService.DeletePortfolio(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted portfolio %s\n", args[0])
				return nil
			})
		},
	}
}
