package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/stackdraft/internal/analysis"
	"github.com/stackdraft/internal/api"
	"github.com/stackdraft/internal/config"
	"github.com/stackdraft/internal/githubapp"
	"github.com/stackdraft/internal/githubclient"
	"github.com/stackdraft/internal/logging"
	"github.com/stackdraft/internal/orchestrator"
)

// ServeCommand returns the CLI command for starting the webhook server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the StackDraft webhook server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the configured listen port",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			log := logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

			creds, err := githubapp.LoadCredentials(cfg.GitHub.AppID, cfg.GitHub.PrivateKey, cfg.GitHub.PrivateKeyPath)
			if err != nil {
				return err
			}

			var resolverOpts []githubapp.ResolverOption
			if cfg.GitHub.InstallationID != 0 {
				resolverOpts = append(resolverOpts, githubapp.WithPinnedInstallation(cfg.GitHub.InstallationID))
			}
			resolver := githubapp.NewResolver(creds, log, resolverOpts...)
			tokens := githubapp.NewTokenCache(resolver, log)

			gh := githubclient.New(tokens, log, githubclient.WithTimeout(cfg.ExternalTimeout))
			analyzer := analysis.NewClient(cfg.Analysis.BaseURL, cfg.ExternalTimeout, log)
			orch := orchestrator.New(gh, analyzer, log)

			if cfg.GitHub.WebhookSecret == "" {
				log.Warn().Msg("no webhook secret configured; deliveries will not be signature-checked")
			}

			server := api.NewServer(cfg.Server.Host, cfg.Server.Port, cfg.GitHub.WebhookSecret, orch, log)
			return server.Start()
		},
	}
}
