package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/dailydigest/config"
	"github.com/mohammad-safakhou/dailydigest/internal/digest"
	"github.com/mohammad-safakhou/dailydigest/internal/llm"
	"github.com/mohammad-safakhou/dailydigest/internal/mail"
	"github.com/mohammad-safakhou/dailydigest/internal/probe"
	"github.com/mohammad-safakhou/dailydigest/internal/relay"
	srv "github.com/mohammad-safakhou/dailydigest/internal/server"
)

// runCMD executes one digest job from the terminal: the same
// pipeline-plus-delivery sequence the cron trigger runs.
func runCMD() *cobra.Command {
	var cfgPath string
	var run = &cobra.Command{
		Use:   "run",
		Short: "Run one digest job (pipeline + send) and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			rly := relay.New()
			client := llm.NewClient(rly)
			checker := probe.NewChecker(rly)
			pipeline := digest.New(client, checker, nil)
			srv.TunePipeline(pipeline, cfg)
			sender := mail.NewResendClient(cfg.Email.APIKey, cfg.Email.BaseURL)
			dispatcher := mail.NewDispatcher(sender, cfg.Email.From, cfg.Email.SendDelay, nil)

			runner := srv.NewJobRunner(cfg, pipeline, dispatcher, nil)
			attempts, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			log.Printf("digest job succeeded (attempts=%d)", attempts)
			return nil
		},
	}
	run.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return run
}
