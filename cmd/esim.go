package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/config"
	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/logger"
	"github.com/jmehdipour/esim-gateway/internal/util"
	"github.com/spf13/cobra"
)

// esimCmd talks to the provider directly, bypassing the gateway's stores.
var esimCmd = &cobra.Command{
	Use:   "esim",
	Short: "Call the eSIM provider API with the configured credentials",
}

var esimTimeout time.Duration

func newCLIClient() (*esimaccess.Client, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateESIM(); err != nil {
		return nil, err
	}
	return esimaccess.New(cfg.ESIM.ClientConfig(), logger.Init(cfg.Log.Level), nil)
}

// runESIM builds a client, runs call under the command timeout and prints
// its result as indented JSON.
func runESIM(cmd *cobra.Command, call func(ctx context.Context, c *esimaccess.Client) (any, error)) error {
	client, err := newCLIClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), esimTimeout)
	defer cancel()

	out, err := call(ctx, client)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

var esimPackagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List data packages",
	RunE: func(cmd *cobra.Command, args []string) error {
		location, _ := cmd.Flags().GetString("location")
		typ, _ := cmd.Flags().GetString("type")
		code, _ := cmd.Flags().GetString("code")
		iccid, _ := cmd.Flags().GetString("iccid")

		return runESIM(cmd, func(ctx context.Context, c *esimaccess.Client) (any, error) {
			switch {
			case code != "":
				return c.Packages.GetPackageDetails(ctx, code)
			case typ == esimaccess.PackageTypeTopup:
				return c.Packages.ListTopupPlans(ctx, esimaccess.PackageListParams{LocationCode: location, ICCID: iccid})
			case location != "" && typ == "":
				return c.Packages.ListPackagesByLocation(ctx, location)
			default:
				return c.Packages.ListAllPackages(ctx, esimaccess.PackageListParams{LocationCode: location, Type: typ})
			}
		})
	},
}

var esimRegionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List supported countries and regions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runESIM(cmd, func(ctx context.Context, c *esimaccess.Client) (any, error) {
			return c.Packages.ListSupportedRegions(ctx)
		})
	},
}

var esimQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query issued eSIM profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		var p esimaccess.QueryParams
		p.OrderNo, _ = cmd.Flags().GetString("order-no")
		p.ICCID, _ = cmd.Flags().GetString("iccid")
		p.EsimTranNo, _ = cmd.Flags().GetString("tran-no")
		p.Pager.PageNum, _ = cmd.Flags().GetInt("page")
		p.Pager.PageSize, _ = cmd.Flags().GetInt("page-size")
		if p.OrderNo == "" && p.ICCID == "" && p.EsimTranNo == "" {
			return fmt.Errorf("one of --order-no, --iccid or --tran-no is required")
		}
		if p.ICCID != "" {
			p.ICCID = util.NormalizeICCID(p.ICCID)
			if !util.ValidICCID(p.ICCID) {
				return fmt.Errorf("invalid iccid %q", p.ICCID)
			}
		}

		return runESIM(cmd, func(ctx context.Context, c *esimaccess.Client) (any, error) {
			return c.Usage.QueryProfiles(ctx, p)
		})
	},
}

var esimUsageCmd = &cobra.Command{
	Use:   "usage <esimTranNo>...",
	Short: "Show data usage for one or more eSIMs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runESIM(cmd, func(ctx context.Context, c *esimaccess.Client) (any, error) {
			return c.Usage.GetUsage(ctx, args)
		})
	},
}

var esimBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the merchant account balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runESIM(cmd, func(ctx context.Context, c *esimaccess.Client) (any, error) {
			return c.Account.Balance(ctx)
		})
	},
}

var esimActionCmd = &cobra.Command{
	Use:       "action <cancel|suspend|unsuspend|revoke> <esimTranNo>",
	Short:     "Apply a lifecycle action to an eSIM",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"cancel", "suspend", "unsuspend", "revoke"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a := esimaccess.ProfileAction{EsimTranNo: args[1]}
		return runESIM(cmd, func(ctx context.Context, c *esimaccess.Client) (any, error) {
			var err error
			switch args[0] {
			case "cancel":
				err = c.Profiles.Cancel(ctx, a)
			case "suspend":
				err = c.Profiles.Suspend(ctx, a)
			case "unsuspend":
				err = c.Profiles.Unsuspend(ctx, a)
			case "revoke":
				err = c.Profiles.Revoke(ctx, a)
			default:
				return nil, fmt.Errorf("unknown action %q", args[0])
			}
			if err != nil {
				return nil, err
			}
			return map[string]string{"action": args[0], "esimTranNo": args[1], "result": "ok"}, nil
		})
	},
}

func init() {
	esimCmd.PersistentFlags().DurationVar(&esimTimeout, "timeout", 30*time.Second, "overall request timeout")

	esimPackagesCmd.Flags().String("location", "", "location code, e.g. ES")
	esimPackagesCmd.Flags().String("type", "", "BASE or TOPUP")
	esimPackagesCmd.Flags().String("code", "", "package code or slug")
	esimPackagesCmd.Flags().String("iccid", "", "limit TOPUP plans to this eSIM")

	esimQueryCmd.Flags().String("order-no", "", "provider order number")
	esimQueryCmd.Flags().String("iccid", "", "eSIM ICCID")
	esimQueryCmd.Flags().String("tran-no", "", "esimTranNo")
	esimQueryCmd.Flags().Int("page", 1, "page number")
	esimQueryCmd.Flags().Int("page-size", 20, "page size")

	esimCmd.AddCommand(esimPackagesCmd, esimRegionsCmd, esimQueryCmd, esimUsageCmd, esimBalanceCmd, esimActionCmd)
}
