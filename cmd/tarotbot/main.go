// Command tarotbot runs the Telegram tarot bot.
//
// Usage:
//
//	tarotbot [flags]                 run the bot
//	tarotbot [flags] secrets set     store credentials in the encrypted secrets file
//	tarotbot [flags] stats           print reading statistics and model usage
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"tarotbot/pkg/config"
	"tarotbot/pkg/logx"
	"tarotbot/pkg/version"
)

// PasswordEnv supplies the secrets passphrase without a prompt.
const PasswordEnv = "TAROT_PASSWORD"

type options struct {
	configPath string
	logDir     string
	tee        bool
	args       []string
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to the JSON config file (optional)")
		logDir      = flag.String("logdir", "", "Directory for log files (default: <data_dir>/logs)")
		tee         = flag.Bool("tee", false, "Output logs to both console and file (default: file only)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	exitCode := run(options{configPath: *configPath, logDir: *logDir, tee: *tee, args: flag.Args()}, os.Stdout)

	if closeErr := logx.CloseLogFile(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", closeErr)
	}
	os.Exit(exitCode)
}

// run contains the main application logic and returns an exit code.
// This allows defers to execute before os.Exit is called.
func run(opts options, out io.Writer) int {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if len(opts.args) > 0 {
		return runSubcommand(cfg, opts.args, out)
	}

	// Initialize the log file before anything else logs.
	logDir := opts.logDir
	if logDir == "" {
		logDir = defaultLogDir(cfg)
	}
	if err := logx.InitializeLogFile(logDir, opts.tee); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize log file: %v\n", err)
		return 1
	}

	if err := loadSecrets(cfg.Storage.DataDir, os.Getenv(PasswordEnv)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to handle secrets: %v\n", err)
		return 1
	}
	if err := cfg.ResolveCredentials(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "🔮 Starting %s\n", version.String())
	if err := serve(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "tarotbot failed: %v\n", err)
		return 1
	}
	return 0
}

func runSubcommand(cfg *config.Config, args []string, out io.Writer) int {
	var err error
	switch {
	case len(args) == 2 && args[0] == "secrets" && args[1] == "set":
		err = setSecrets(cfg.Storage.DataDir, os.Stdin, out)
	case len(args) == 1 && args[0] == "stats":
		err = printStats(context.Background(), cfg, out)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\nusage: tarotbot [flags] [secrets set | stats]\n", args)
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}
