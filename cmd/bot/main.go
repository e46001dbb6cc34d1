package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeeve/dirty-laundry/internal/bot"
	"github.com/freeeve/dirty-laundry/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		url          string
		bots         int
		strategyName string
		stall        time.Duration
		seed         int64
		debug        bool
	)
	cmd := &cobra.Command{
		Use:           "bot",
		Short:         "Play a full Murder at the Cabin game against a running server",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := "info"
			if debug {
				level = "debug"
			}
			logger.Init(level, true, "")
			if seed != 0 {
				bot.SeedBotRng(seed)
			}

			orch := bot.NewOrchestrator(bot.Options{BaseURL: url, Bots: bots, Stall: stall}, bot.StrategyByName(strategyName))
			out, err := orch.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("bot game: %w", err)
			}
			log.Info().Str("sessionCode", out.Code).Int("phases", len(out.Phases)).Msg("Bot game completed successfully")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&url, "url", "http://localhost:3009", "server base URL")
	f.IntVar(&bots, "bots", 4, "number of bot players, the first one hosts")
	f.StringVar(&strategyName, "strategy", "random", "bot strategy (random, idle)")
	f.DurationVar(&stall, "stall", 5*time.Second, "force a phase forward after this long without progress")
	f.Int64Var(&seed, "seed", 0, "random seed for reproducible games (0 = random)")
	f.BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}
