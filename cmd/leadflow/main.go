package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RealZimboGuy/leadflow/internal/collaborators"
	"github.com/RealZimboGuy/leadflow/internal/config"
	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow"
)

type cli struct {
	app *leadflow.App
}

func setupFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to config file.")
	flags.String("database-type", "SQLLITE", "POSTGRES, MYSQL or SQLLITE")
	flags.String("database-url", "", "connection url for POSTGRES and MYSQL")
	flags.String("web-port", "8080", "http port for the api")
	flags.Int("executor-size", 2, "number of step workers")
	flags.String("redis-addr", "", "comma separated list of redis host:port, enables async ingress")
	flags.String("log-level", "info", "debug, info, warn or error")

	for key, flag := range map[string]string{
		config.DATABASE_TYPE:          "database-type",
		config.DATABASE_URL:           "database-url",
		config.ENGINE_SERVER_WEB_PORT: "web-port",
		config.ENGINE_EXECUTOR_SIZE:   "executor-size",
		config.REDIS_ADDR:             "redis-addr",
		config.LOG_LEVEL:              "log-level",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if err := config.ReadConfigFile(configFile); err != nil {
		return err
	}
	leadflow.SetupLogger(config.GetSystemSettingString(config.LOG_LEVEL))
	return nil
}

func (c *cli) setupApp(cmd *cobra.Command, args []string) error {
	if err := c.setupConfig(cmd, args); err != nil {
		return err
	}
	app, err := leadflow.Setup(cmd.Context())
	if err != nil {
		return err
	}
	c.app = app
	return nil
}

func (c *cli) serve(cmd *cobra.Command, args []string) error {
	defer c.app.Close()
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return c.app.Run(ctx, nil)
}

func (c *cli) migrate(cmd *cobra.Command, args []string) error {
	// Setup already applied the migrations
	c.app.Close()
	return nil
}

func (c *cli) tick(cmd *cobra.Command, args []string) error {
	defer c.app.Close()
	processed, err := c.app.Manager.StepScheduler().Tick(cmd.Context())
	printJSON(map[string]int{"processed": processed})
	return err
}

func (c *cli) outboxTick(cmd *cobra.Command, args []string) error {
	defer c.app.Close()
	processed, err := c.app.Manager.OutboxDispatcher().Tick(cmd.Context())
	printJSON(map[string]int{"processed": processed})
	return err
}

func (c *cli) importGraph(cmd *cobra.Command, args []string) error {
	defer c.app.Close()
	gf, err := leadflow.ReadGraphFile(args[0])
	if err != nil {
		return err
	}
	_, report, err := leadflow.ImportGraph(cmd.Context(), c.app.Graphs, gf)
	if err != nil {
		return err
	}
	printJSON(report)
	return nil
}

func (c *cli) setGraphStatus(cmd *cobra.Command, args []string) error {
	defer c.app.Close()
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("graph id must be an integer: %w", err)
	}
	status := args[1]
	if status != domain.GraphStatusActive && status != domain.GraphStatusPaused && status != domain.GraphStatusDraft {
		return fmt.Errorf("status must be one of active, paused, draft")
	}
	if _, err := c.app.Graphs.FindGraph(cmd.Context(), id); err != nil {
		return err
	}
	return c.app.Graphs.UpdateGraphStatus(cmd.Context(), id, status)
}

func hashKey(cmd *cobra.Command, args []string) error {
	hash, err := collaborators.HashAPIKey(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func main() {
	cli := &cli{}

	root := &cobra.Command{
		Use:               "leadflow",
		Short:             "CRM workflow automation engine",
		PersistentPreRunE: cli.setupApp,
		RunE:              cli.serve,
		SilenceUsage:      true,
	}
	root.AddCommand(
		&cobra.Command{Use: "serve", Short: "Run the engine workers and the HTTP api", RunE: cli.serve},
		&cobra.Command{Use: "tick", Short: "Run one step scheduler pass", RunE: cli.tick},
		&cobra.Command{Use: "outbox-tick", Short: "Run one outbox dispatcher pass", RunE: cli.outboxTick},
		&cobra.Command{Use: "migrate", Short: "Apply database migrations and exit", RunE: cli.migrate},
		&cobra.Command{Use: "import-graph <file>", Short: "Import a graph from a JSON file", Args: cobra.ExactArgs(1), RunE: cli.importGraph},
		&cobra.Command{Use: "set-graph-status <id> <active|paused|draft>", Short: "Change the status of a graph", Args: cobra.ExactArgs(2), RunE: cli.setGraphStatus},
		&cobra.Command{Use: "hash-key <api-key>", Short: "Print the bcrypt hash for auth.api_key_hash", Args: cobra.ExactArgs(1), PersistentPreRunE: cli.setupConfig, RunE: hashKey},
	)

	if err := setupFlags(root); err != nil {
		log.Fatal(err)
	}

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
