package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const userAgent = "resolverctl/1.0"

type options struct {
	server     string
	signingKey string
	token      string
	actor      string
	timeout    time.Duration
	asJSON     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "resolverctl",
		Short: "Operate a garagedata vehicle-data resolver",
		Long: `resolverctl talks to a running garagedata server.

Lookups use the public routes. Admin commands need either --token or the
server's signing key (--key or ADMIN_JWT_KEY), from which a short-lived
token is minted locally.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("GARAGEDATA_URL", "http://localhost:8080"), "server base URL")
	flags.StringVar(&opts.signingKey, "key", os.Getenv("ADMIN_JWT_KEY"), "admin token signing key")
	flags.StringVar(&opts.token, "token", "", "admin bearer token (overrides --key)")
	flags.StringVar(&opts.actor, "actor", envOr("USER", "operator"), "actor recorded in the admin token")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	flags.BoolVar(&opts.asJSON, "json", false, "print raw JSON responses")

	root.AddCommand(
		newResolveCmd(opts),
		newStatusCmd(opts),
		newResetCooldownCmd(opts),
		newClearBlacklistCmd(opts),
		newListBlacklistCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
