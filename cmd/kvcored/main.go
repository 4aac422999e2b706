// Command kvcored is the process entry point around the kvcore engine.
// spec.md §1 scopes network framing and RESP parsing out of this repo, so
// the command surface exposed here is a line-oriented REPL reading
// whitespace-split command lines from stdin — enough to drive the engine
// end to end without a protocol layer.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/brimshard/kvcore"
)

var opts struct {
	ConfigFile    string
	MaxMemory     int64
	MaxMemPolicy  string
	Hz            int
	Databases     int
	Role          string
	StorageModel  string
	FlushPeriodMs int
}

func main() {
	root := &cobra.Command{
		Use:   "kvcored",
		Short: "kvcore engine REPL",
		RunE:  run,
	}
	fs := root.Flags()
	fs.StringVar(&opts.ConfigFile, "config", "", "path to a YAML config file (spec.md §6)")
	fs.Int64Var(&opts.MaxMemory, "maxmemory", 0, "maxmemory in bytes, 0 disables eviction")
	fs.StringVar(&opts.MaxMemPolicy, "maxmemory-policy", "", "eviction policy (noeviction, allkeys-lru, ...)")
	fs.IntVar(&opts.Hz, "hz", 0, "cron frequency")
	fs.IntVar(&opts.Databases, "databases", 0, "number of logical databases")
	fs.StringVar(&opts.Role, "role", "master", "master or replica")
	fs.StringVar(&opts.StorageModel, "storage-memory-model", "", "empty, writethrough, or writeback")
	fs.IntVar(&opts.FlushPeriodMs, "storage-flush-period-ms", 0, "write-back flush period")
	pflag.CommandLine = fs

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.CrashOnInvariantViolation = true

	role := kvcore.RoleMaster
	if opts.Role == "replica" {
		role = kvcore.RoleReplica
	}
	roleChar := byte('M')
	if role == kvcore.RoleReplica {
		roleChar = 'S'
	}
	log := kvcore.NewLogger(roleChar)
	defer log.Sync()
	cfg.Logger = log

	if warn := cfg.Validate(); warn != nil {
		log.Warn(warn.Error())
	}

	var provider kvcore.SecondaryStore
	if cfg.StorageMemoryModel != kvcore.StorageModelNone {
		provider = kvcore.NewMemProvider()
	}

	db := kvcore.NewDatabase(cfg, provider, log)
	dispatcher := kvcore.NewDispatcher(db)
	db.Start()
	defer db.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		db.Close()
		log.Sync()
		os.Exit(0)
	}()

	client := kvcore.NewClientState()
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stdout, "kvcored ready")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		argv := strings.Fields(line)
		result, err := dispatcher.Dispatch(client, argv)
		if err != nil {
			fmt.Fprintln(os.Stdout, err.Error())
			continue
		}
		fmt.Fprintf(os.Stdout, "%v\n", result)
	}
	return nil
}

// loadConfig applies SPEC_FULL.md §2's layering: a YAML file if given, then
// any explicitly-set flags override it, then defaults fill whatever is
// still zero — mirroring the teacher's go-flags positional/optional split
// in brimstore-valuesstore/main.go, generalized to cobra/pflag.
func loadConfig() (*kvcore.Config, error) {
	var cfg *kvcore.Config
	if opts.ConfigFile != "" {
		c, err := kvcore.LoadConfigFile(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = &kvcore.Config{}
	}
	if opts.MaxMemory > 0 {
		cfg.MaxMemory = opts.MaxMemory
	}
	if opts.MaxMemPolicy != "" {
		cfg.MaxMemoryPolicy = kvcore.EvictionPolicy(opts.MaxMemPolicy)
	}
	if opts.Hz > 0 {
		cfg.Hz = opts.Hz
	}
	if opts.Databases > 0 {
		cfg.Databases = opts.Databases
	}
	if opts.StorageModel != "" {
		cfg.StorageMemoryModel = kvcore.StorageMemoryModel(opts.StorageModel)
	}
	if opts.FlushPeriodMs > 0 {
		cfg.StorageFlushPeriod = time.Duration(opts.FlushPeriodMs) * time.Millisecond
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
