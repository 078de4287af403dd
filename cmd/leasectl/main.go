// Command leasectl drives the leaseflow HTTP API from a terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnTengye/leaseflow/handler"
)

// Version is set at build time.
var Version = "dev"

const (
	envServer = "LEASECTL_SERVER"
	envToken  = "LEASECTL_TOKEN"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cmd := newRootCommand(out)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	return cmd.ExecuteContext(ctx)
}

type rootOptions struct {
	server string
	token  string
	json   bool
}

func (o *rootOptions) client() *client {
	return newClient(strings.TrimRight(o.server, "/"), o.token)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "leasectl",
		Short:         "Manage rental contracts through the leaseflow API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr(envServer, "http://localhost:8080"), "API server address ($"+envServer+")")
	flags.StringVar(&opts.token, "token", os.Getenv(envToken), "bearer token from login ($"+envToken+")")
	flags.BoolVar(&opts.json, "json", false, "print raw JSON")

	root.AddCommand(
		newLoginCommand(opts, out),
		newListCommand(opts, out),
		newGetCommand(opts, out),
		newActionsCommand(opts, out),
		newCreateCommand(opts, out),
		newDoCommand(opts, out),
		newSignCommand(opts, out),
	)
	return root
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printContract(out io.Writer, opts *rootOptions, c *handler.ContractResponse) error {
	if opts.json {
		return printJSON(out, c)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", c.ID)
	fmt.Fprintf(w, "STATUS\t%s\n", c.Status)
	fmt.Fprintf(w, "TENANT\t%s\n", c.TenantName)
	if !c.StartDate.IsZero() || !c.EndDate.IsZero() {
		fmt.Fprintf(w, "PERIOD\t%s .. %s\n", c.StartDate.Format(time.DateOnly), c.EndDate.Format(time.DateOnly))
	}
	fmt.Fprintf(w, "IN FORCE\t%t\n", c.InForce)
	if c.TerminationRequest != nil {
		fmt.Fprintf(w, "TERMINATION\t%s\n", c.TerminationRequest.Status)
	}
	if c.RenewalRequest != nil {
		fmt.Fprintf(w, "RENEWAL\t%s (%d months)\n", c.RenewalRequest.Status, c.RenewalRequest.Months)
	}
	fmt.Fprintf(w, "ACTIONS\t%s\n", joinActions(c))
	fmt.Fprintf(w, "VERSION\t%d\n", c.Version)
	return w.Flush()
}

func joinActions(c *handler.ContractResponse) string {
	names := make([]string, len(c.Actions))
	for i, a := range c.Actions {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

func newLoginCommand(opts *rootOptions, out io.Writer) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print a bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(out, resp)
			}
			fmt.Fprintf(out, "export %s=%s\n", envToken, resp.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "user name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newListCommand(opts *rootOptions, out io.Writer) *cobra.Command {
	var list listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().List(cmd.Context(), list)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(out, resp)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tTENANT\tEND\tACTIONS")
			for i := range resp.Contracts {
				c := &resp.Contracts[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Status, c.TenantName, c.EndDate.Format(time.DateOnly), joinActions(c))
			}
			fmt.Fprintf(w, "\npage %d, %d of %d contracts\n", resp.Page, len(resp.Contracts), resp.Total)
			return w.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&list.Status, "status", "", "contract status")
	f.StringVar(&list.BuildingID, "building", "", "building id")
	f.StringVar(&list.RequestStatus, "request-status", "", "pending, approved, rejected, cancelled or all")
	f.StringVar(&list.Workflow, "workflow", "", "termination or renewal")
	f.IntVar(&list.Page, "page", 0, "page number")
	f.IntVar(&list.Limit, "limit", 0, "page size")
	return cmd
}

func newGetCommand(opts *rootOptions, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printContract(out, opts, c)
		},
	}
}

func newActionsCommand(opts *rootOptions, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "actions <id>",
		Short: "List the actions available on a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Actions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(out, resp)
			}
			for _, a := range resp.Actions {
				fmt.Fprintln(out, a)
			}
			return nil
		},
	}
}

func newCreateCommand(opts *rootOptions, out io.Writer) *cobra.Command {
	var req handler.CreateContractRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client().Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printContract(out, opts, c)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ID, "id", "", "contract id (generated when empty)")
	f.StringVar(&req.TenantName, "tenant", "", "tenant name")
	f.StringVar(&req.TenantEmail, "tenant-email", "", "tenant email")
	f.StringVar(&req.LandlordName, "landlord", "", "landlord name")
	f.StringVar(&req.BuildingID, "building", "", "building id")
	f.StringVar(&req.RoomID, "room", "", "room id")
	f.Int64Var(&req.MonthlyRent, "rent", 0, "monthly rent in minor units")
	f.Int64Var(&req.Deposit, "deposit", 0, "deposit in minor units")
	f.StringVar(&req.Terms, "terms", "", "contract terms")
	f.StringVar(&req.StartDate, "start", "", "start date (YYYY-MM-DD)")
	f.StringVar(&req.EndDate, "end", "", "end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newDoCommand(opts *rootOptions, out io.Writer) *cobra.Command {
	var body handler.ActionRequest
	cmd := &cobra.Command{
		Use:   "do <id> <action>",
		Short: "Perform an action on a contract",
		Long: "Perform an action on a contract. Actions that need confirmation\n" +
			"(send-to-tenant, approve-termination) are opened and committed when --confirm is set.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, action := args[0], args[1]
			api := opts.client()

			var (
				c   *handler.ContractResponse
				err error
			)
			if body.Confirm {
				c, err = api.Confirm(cmd.Context(), id, action, body)
			} else {
				c, err = api.Perform(cmd.Context(), id, action, body)
			}
			if err != nil {
				return err
			}
			return printContract(out, opts, c)
		},
	}
	f := cmd.Flags()
	f.StringVar(&body.Reason, "reason", "", "termination reason")
	f.IntVar(&body.Months, "months", 0, "renewal length in months")
	f.StringVar(&body.SignatureURL, "signature-url", "", "captured signature reference")
	f.BoolVar(&body.Confirm, "confirm", false, "confirm a gated action")
	return cmd
}

func newSignCommand(opts *rootOptions, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "sign <id> <image>",
		Short: "Upload a signature image and sign the contract",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read signature image: %w", err)
			}

			api := opts.client()
			url, err := api.CaptureSignature(cmd.Context(), args[0], image)
			if err != nil {
				return err
			}
			c, err := api.Perform(cmd.Context(), args[0], "sign", handler.ActionRequest{SignatureURL: url})
			if err != nil {
				return err
			}
			return printContract(out, opts, c)
		},
	}
}
