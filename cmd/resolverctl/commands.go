package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"garagedata/internal/vehicledata/handler"
	"garagedata/internal/vehicledata/models"
	"garagedata/pkg/domain"
	"garagedata/pkg/platform/middleware/admin"
)

func newResolveCmd(opts *options) *cobra.Command {
	var data bool
	cmd := &cobra.Command{
		Use:   "resolve REGISTRATION",
		Short: "Resolve a vehicle image (or technical data with --data)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts, false)
			if err != nil {
				return err
			}
			reg := domain.NormalizeRegistration(args[0])
			kind := models.KindImage
			if data {
				kind = models.KindData
			}
			_, body, err := c.do(cmd.Context(), http.MethodGet, "/vehicles/"+reg+"/"+string(kind),
				http.StatusNotFound, http.StatusTooManyRequests)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeRaw(cmd.OutOrStdout(), body)
			}
			var res models.DataResult
			if err := json.Unmarshal(body, &res); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			printResult(cmd.OutOrStdout(), reg, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&data, "data", false, "resolve technical data instead of an image")
	return cmd
}

func printResult(w io.Writer, reg string, res models.DataResult) {
	if !res.Success {
		fmt.Fprintf(w, "%s: %s\n", reg, res.Reason)
		if res.RetryAfterSeconds > 0 {
			fmt.Fprintf(w, "retry after %s\n", time.Duration(res.RetryAfterSeconds)*time.Second)
		}
		return
	}
	fmt.Fprintf(w, "%s: %s (cached=%t)\n", reg, res.Source, res.Cached)
	if t := res.Technical; t != nil {
		fmt.Fprintf(w, "  %s\n", t.Describe())
	}
	if res.ImageURL != "" {
		fmt.Fprintf(w, "  image: %s\n", truncate(res.ImageURL, 96))
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cooldown state and blacklist size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(opts, true)
			if err != nil {
				return err
			}
			_, body, err := c.do(cmd.Context(), http.MethodGet, "/admin/vehicle-data/status")
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), body, opts.asJSON)
		},
	}
}

func newResetCooldownCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-cooldown",
		Short: "Clear the shared provider cooldown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(opts, true)
			if err != nil {
				return err
			}
			_, body, err := c.do(cmd.Context(), http.MethodPost, "/admin/vehicle-data/cooldown/reset")
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), body, opts.asJSON)
		},
	}
}

func printStatus(w io.Writer, body []byte, asJSON bool) error {
	if asJSON {
		return writeRaw(w, body)
	}
	var resp handler.StatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	st := resp.Status
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "in cooldown:\t%t\n", st.InCooldown)
	if st.InCooldown {
		fmt.Fprintf(tw, "cooldown remaining:\t%s\n", time.Duration(st.CooldownRemainingSec)*time.Second)
	}
	fmt.Fprintf(tw, "consecutive errors:\t%d\n", st.ConsecutiveErrors)
	if st.LastCallAt != nil {
		fmt.Fprintf(tw, "last provider call:\t%s\n", st.LastCallAt.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "blacklisted:\t%d\n", st.BlacklistSize)
	fmt.Fprintf(tw, "cached (memory):\t%d\n", st.CachedEntries)
	fmt.Fprintf(tw, "providers:\t%v\n", st.Providers)
	return tw.Flush()
}

func newClearBlacklistCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear-blacklist [REGISTRATION...]",
		Short: "Remove registrations from the blacklist, or everything with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("name a registration or pass --all")
			}
			if len(args) > 0 && all {
				return fmt.Errorf("--all cannot be combined with registrations")
			}
			c, err := newClient(opts, true)
			if err != nil {
				return err
			}
			var body []byte
			switch len(args) {
			case 0:
				_, body, err = c.do(cmd.Context(), http.MethodDelete, "/admin/vehicle-data/blacklist")
			case 1:
				_, body, err = c.do(cmd.Context(), http.MethodDelete,
					"/admin/vehicle-data/blacklist/"+domain.NormalizeRegistration(args[0]))
			default:
				_, body, err = c.send(cmd.Context(), http.MethodPost, "/admin/vehicle-data/blacklist/clear",
					handler.ClearBlacklistRequest{Registrations: args})
			}
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeRaw(cmd.OutOrStdout(), body)
			}
			var resp handler.ClearBlacklistResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d blacklist entries\n", resp.Removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear every blacklist entry")
	return cmd
}

func newListBlacklistCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "blacklist",
		Short: "List blacklisted registrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(opts, true)
			if err != nil {
				return err
			}
			_, body, err := c.do(cmd.Context(), http.MethodGet, "/admin/vehicle-data/blacklist")
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeRaw(cmd.OutOrStdout(), body)
			}
			var resp handler.BlacklistResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("decode blacklist: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REGISTRATION\tKIND\tSINCE\tREASON")
			for _, e := range resp.Entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Registration, e.Kind, e.CreatedAt, e.Reason)
			}
			return tw.Flush()
		},
	}
}

func newTokenCmd(opts *options) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token from the signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.signingKey == "" {
				return errNoCredentials
			}
			token, err := admin.IssueToken([]byte(opts.signingKey), opts.actor, ttl, time.Now())
			if err != nil {
				return err
			}
			if opts.asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"token":      token,
					"type":       "Bearer",
					"actor":      opts.actor,
					"expires_in": ttl.String(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func writeRaw(w io.Writer, body []byte) error {
	_, err := w.Write(body)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
