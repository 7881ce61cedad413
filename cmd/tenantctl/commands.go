package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/noosphera/internal/tenant"
	"github.com/kiranshivaraju/noosphera/pkg/models"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage")

type app struct {
	registry *tenant.Registry
	keys     *tenant.Keys
	out      io.Writer
}

// action runs a parsed command against the database.
type action func(ctx context.Context, a *app) error

type command struct {
	name    string
	summary string
	parse   func(fs *pflag.FlagSet, args []string) (action, error)
}

var commands = []command{
	{"create-tenant", "Create a tenant and provision its namespace", parseCreateTenant},
	{"list-tenants", "List tenants", parseListTenants},
	{"get-tenant", "Show one tenant", parseGetTenant},
	{"suspend-tenant", "Suspend a tenant; its keys stop authenticating", parseSetStatus(models.TenantSuspended)},
	{"activate-tenant", "Reactivate a suspended tenant", parseSetStatus(models.TenantActive)},
	{"create-key", "Issue an API key for a tenant", parseCreateKey},
	{"list-keys", "List a tenant's API keys", parseListKeys},
	{"revoke-key", "Revoke an API key by prefix", parseRevokeKey},
}

// parse resolves args to an action without touching the database. A nil
// action with a nil error means help was printed.
func parse(args []string, out io.Writer) (action, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: missing command", errUsage)
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage(out)
		return nil, nil
	}
	for _, c := range commands {
		if c.name != name {
			continue
		}
		fs := pflag.NewFlagSet(c.name, pflag.ContinueOnError)
		fs.SetOutput(io.Discard)
		act, err := c.parse(fs, args[1:])
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(out, "%s: %s\n\nFlags:\n", c.name, c.summary)
			fs.SetOutput(out)
			fs.PrintDefaults()
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", errUsage, c.name, err)
		}
		return act, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", errUsage, name)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage:\n  tenantctl <command> [flags]\n\nCommands:\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	tw.Flush()
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return nil
}

func requireString(flag, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", flag)
	}
	return nil
}

func parseTenantID(flag, value string) (uuid.UUID, error) {
	if err := requireString(flag, value); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: invalid tenant id %q", flag, value)
	}
	return id, nil
}

func parseCreateTenant(fs *pflag.FlagSet, args []string) (action, error) {
	name := fs.String("name", "", "tenant name (unique)")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if err := requireString("name", *name); err != nil {
		return nil, err
	}
	return func(ctx context.Context, a *app) error {
		t, err := a.registry.CreateTenant(ctx, *name)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "TENANT CREATED")
		printTenants(a.out, []*models.Tenant{t})
		return nil
	}, nil
}

func parseListTenants(fs *pflag.FlagSet, args []string) (action, error) {
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	return func(ctx context.Context, a *app) error {
		ts, err := a.registry.ListTenants(ctx)
		if err != nil {
			return err
		}
		printTenants(a.out, ts)
		return nil
	}, nil
}

func parseGetTenant(fs *pflag.FlagSet, args []string) (action, error) {
	raw := fs.String("id", "", "tenant id")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	id, err := parseTenantID("id", *raw)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, a *app) error {
		t, err := a.registry.GetTenant(ctx, id)
		if err != nil {
			return err
		}
		printTenants(a.out, []*models.Tenant{t})
		return nil
	}, nil
}

func parseSetStatus(status models.TenantStatus) func(*pflag.FlagSet, []string) (action, error) {
	return func(fs *pflag.FlagSet, args []string) (action, error) {
		raw := fs.String("id", "", "tenant id")
		if err := parseFlags(fs, args); err != nil {
			return nil, err
		}
		id, err := parseTenantID("id", *raw)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, a *app) error {
			if err := a.registry.SetTenantStatus(ctx, id, status); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "TENANT %s: %s\n", strings.ToUpper(string(status)), id)
			return nil
		}, nil
	}
}

func parseCreateKey(fs *pflag.FlagSet, args []string) (action, error) {
	raw := fs.String("tenant", "", "tenant id")
	label := fs.String("label", "", "optional label, unique per tenant")
	expires := fs.String("expires", "", "optional expiry, RFC3339 (e.g. 2026-12-31T23:59:00Z)")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	id, err := parseTenantID("tenant", *raw)
	if err != nil {
		return nil, err
	}
	opts := tenant.IssueOptions{Label: *label}
	if *expires != "" {
		at, err := time.Parse(time.RFC3339, *expires)
		if err != nil {
			return nil, fmt.Errorf("--expires: %w", err)
		}
		opts.ExpiresAt = &at
	}
	return func(ctx context.Context, a *app) error {
		token, key, err := a.keys.IssueKey(ctx, id, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "API KEY %s (store this securely; it will not be shown again):\n", key.KeyPrefix)
		fmt.Fprintln(a.out, token)
		return nil
	}, nil
}

func parseListKeys(fs *pflag.FlagSet, args []string) (action, error) {
	raw := fs.String("tenant", "", "tenant id")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	id, err := parseTenantID("tenant", *raw)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, a *app) error {
		keys, err := a.keys.ListKeys(ctx, id)
		if err != nil {
			return err
		}
		printKeys(a.out, keys)
		return nil
	}, nil
}

func parseRevokeKey(fs *pflag.FlagSet, args []string) (action, error) {
	prefix := fs.String("prefix", "", "key prefix")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if err := requireString("prefix", *prefix); err != nil {
		return nil, err
	}
	return func(ctx context.Context, a *app) error {
		if err := a.keys.RevokeKey(ctx, *prefix); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "API KEY REVOKED: %s\n", *prefix)
		return nil
	}, nil
}

func printTenants(w io.Writer, ts []*models.Tenant) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tNAMESPACE\tCREATED")
	for _, t := range ts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Name, t.Status, t.Namespace, t.CreatedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

func printKeys(w io.Writer, keys []*models.APIKey) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PREFIX\tLABEL\tSTATUS\tEXPIRES\tLAST USED\tCREATED")
	for _, k := range keys {
		label := "-"
		if k.Label != nil {
			label = *k.Label
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			k.KeyPrefix, label, k.Status, formatTime(k.ExpiresAt), formatTime(k.LastUsedAt),
			k.CreatedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
