package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"curation-governance-backend/cmd/migrate"
	"curation-governance-backend/cmd/serve"
	"curation-governance-backend/cmd/token"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "curation",
		Short:         "Curation market and governance backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serve.Command(), migrate.Command(), token.Command())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "curation: %v\n", err)
		os.Exit(1)
	}
}
