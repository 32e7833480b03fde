package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/celerix-dev/celerix-ledger/internal/audit"
	"github.com/celerix-dev/celerix-ledger/internal/config"
	"github.com/celerix-dev/celerix-ledger/internal/console"
	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/internal/ledger"
	"github.com/celerix-dev/celerix-ledger/internal/logger"
	"github.com/celerix-dev/celerix-ledger/internal/vault"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Ledger administration",
	Long: `ledger works on the document file directly (stop the daemon first for
writes), or inspects a running daemon through its console.`,
	SilenceUsage: true,
}

// offline bundles what the file based commands need.
type offline struct {
	cfg    *config.Config
	log    *zap.Logger
	doc    *engine.Document
	ledger *ledger.Ledger
}

func open(cmd *cobra.Command) (*offline, error) {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Log
	logCfg.Output = "stderr"
	log := logger.New(logCfg)

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, err
	}
	doc, _, err := engine.Open(cfg.Data.Path(), log.Named("engine"))
	if err != nil {
		return nil, err
	}
	a := audit.New(doc, audit.SystemClock{}, log.Named("audit"))
	l := ledger.New(a, ledger.Options{JWTSecret: cfg.JWT.Secret, JWTTTL: cfg.JWT.TTL}, log)
	return &offline{cfg: cfg, log: log, doc: doc, ledger: l}, nil
}

func (o *offline) backups() (*ledger.Backups, error) {
	key, err := vault.ParseKey(o.cfg.Backup.Key)
	if err != nil {
		return nil, fmt.Errorf("backup.key: %w", err)
	}
	return o.ledger.NewBackups(o.cfg.Backup.Dir, key), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print the value stored at a document path, e.g. /USERS/al4str",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := open(cmd)
		if err != nil {
			return err
		}
		val, err := o.doc.Get(args[0])
		if err != nil {
			return err
		}
		return printJSON(val)
	},
}

var setPinCmd = &cobra.Command{
	Use:   "set-pin <user> <pin>",
	Short: "Replace a user's PIN and drop their session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := open(cmd)
		if err != nil {
			return err
		}
		if err := o.ledger.SetPin(args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a snapshot of the document into backup.dir",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := open(cmd)
		if err != nil {
			return err
		}
		b, err := o.backups()
		if err != nil {
			return err
		}
		file, err := b.Create()
		if err != nil {
			return err
		}
		fmt.Println(file)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Load a backup file, replacing the partitions it contains",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := open(cmd)
		if err != nil {
			return err
		}
		b, err := o.backups()
		if err != nil {
			return err
		}
		n, err := b.Restore(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("restored %d records\n", n)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Plant the default users and categories that are missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := open(cmd)
		if err != nil {
			return err
		}
		n, err := o.ledger.Seed()
		if err != nil {
			return err
		}
		fmt.Printf("planted %d records\n", n)
		return nil
	},
}

// remote commands talk to the console of a running daemon

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Inspect a running daemon through its console",
}

func dialConsole(cmd *cobra.Command) (*console.Client, error) {
	addr, _ := cmd.Flags().GetString("addr")
	plain, _ := cmd.Flags().GetBool("plain")
	if addr == "" {
		dir, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(dir)
		if err != nil {
			return nil, err
		}
		if cfg.Console.Port == "" {
			return nil, fmt.Errorf("console.port is not set; pass --addr")
		}
		addr = "localhost:" + cfg.Console.Port
		plain = plain || !cfg.Console.TLS
	}
	return console.Connect(addr, !plain, nil)
}

var pingCmd = &cobra.Command{
	Use:  "ping",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Ping(); err != nil {
			return err
		}
		fmt.Println("PONG")
		return nil
	},
}

var remoteGetCmd = &cobra.Command{
	Use:  "get <path>",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		raw, err := c.Get(args[0])
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump [partition]",
	Short: "Print the whole document or one partition",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		partition := ""
		if len(args) == 1 {
			partition = args[0]
		}
		raw, err := c.Dump(partition)
		if err != nil {
			return err
		}
		return printJSON(raw)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "extra directory to search for ledger.toml")
	remoteCmd.PersistentFlags().String("addr", "", "console address (default localhost:<console.port>)")
	remoteCmd.PersistentFlags().Bool("plain", false, "connect without TLS")

	remoteCmd.AddCommand(pingCmd, remoteGetCmd, dumpCmd)
	rootCmd.AddCommand(getCmd, setPinCmd, backupCmd, restoreCmd, seedCmd, remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
