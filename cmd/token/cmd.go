package token

import (
	"fmt"

	"curation-governance-backend/config"
	"curation-governance-backend/handlers"

	"github.com/spf13/cobra"
)

// Command issues a bearer token signed with JWT_SECRET, for local use.
func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "token",
		Short: "Issues an API token for a caller address",
		RunE:  tokenFunc,
	}
	AddFlags(c.Flags())
	return c
}

func tokenFunc(c *cobra.Command, _ []string) error {
	flags, err := ParseFlags(c.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.Load(flags.EnvFile)
	if err != nil {
		return err
	}
	tok, err := handlers.IssueToken([]byte(cfg.JWTSecret), flags.Caller, flags.TTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.OutOrStdout(), tok)
	return err
}
