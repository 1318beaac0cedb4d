// Package main provides the entry point for the pagecast CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/audio"
	"github.com/dgnsrekt/pagecast/internal/synth"
	"github.com/dgnsrekt/pagecast/ui"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	style      string
	width      uint
	mouse      bool
	watch      bool
	debug      bool
	isTerminal bool

	rootCmd = &cobra.Command{
		Use:   "pagecast [FILE|DIR]",
		Short: "Listen to your documents, page by page",
		Long: paragraph(
			fmt.Sprintf("\nRead PDF, Markdown and text documents %s, one page at a time.", keyword("out loud")),
		),
		Example: paragraph("pagecast paper.pdf\npagecast --engine piper --rate +20% notes.md\npagecast book.txt > progress.log"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != styles.AutoStyle && styles.DefaultStyles[style] == nil {
		style, _ = homedir.Expand(style)
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")
	watch = viper.GetBool("watch")
	debug = viper.GetBool("debug")

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	// validate the glamour style
	style = viper.GetString("style")
	if err := validateStyle(style); err != nil {
		return err
	}

	isTerminal = term.IsTerminal(int(os.Stdout.Fd()))
	if !isTerminal {
		lipgloss.SetColorProfile(termenv.Ascii)
		if !cmd.Flags().Changed("style") {
			style = styles.NoTTYStyle
		}
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") && isTerminal && width == 0 {
		w, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err == nil {
			width = uint(min(w, 120)) //nolint:gosec
		}
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	path, err := resolveDocument(arg)
	if err != nil {
		return err
	}

	opts, err := loadOptions(viper.GetViper())
	if err != nil {
		return err
	}
	engine, err := synth.NewEngine(opts.Engine)
	if err != nil {
		return fmt.Errorf("unable to set up speech engine: %w", err)
	}
	a, err := newApp(opts, engine)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("error shutting down", "error", err)
		}
	}()

	if !isTerminal {
		return runCLI(cmd.Context(), a, path)
	}
	return runTUI(a, path)
}

// runCLI reads the document without the TUI, reporting progress to stdout.
func runCLI(ctx context.Context, a *app, path string) error {
	done := make(chan uint64, 4)
	player, err := audio.NewPlayer(audio.DefaultPlayerConfig(), func(instance uint64) {
		done <- instance
	})
	if err != nil {
		return fmt.Errorf("unable to open audio device: %w", err)
	}
	defer player.Close() //nolint:errcheck
	a.ctl.SetSurface(player)

	store, err := a.open(path)
	if err != nil {
		return fmt.Errorf("unable to open document: %w", err)
	}
	if _, err := a.ctl.LoadDocument(store); err != nil {
		_ = store.Close()
		return fmt.Errorf("unable to load document: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runHeadless(ctx, a.ctl, done, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runTUI(a *app, path string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or the flag if unset
	if err := validateStyle(cfg.GlamourStyle); err != nil {
		cfg.GlamourStyle = style
	}

	cfg.Path = path
	cfg.GlamourMaxWidth = width
	cfg.EnableMouse = mouse
	cfg.Watch = watch

	player, err := audio.NewPlayer(audio.DefaultPlayerConfig(), nil)
	if err != nil {
		return fmt.Errorf("unable to open audio device: %w", err)
	}
	defer player.Close() //nolint:errcheck
	a.ctl.SetSurface(player)

	p := ui.NewProgram(cfg, ui.Deps{
		Controller: a.ctl,
		Player:     player,
		Open:       a.open,
	})
	player.SetOnComplete(ui.CompletionNotifier(p))

	// Run Bubble Tea program
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.Bool("debug", false, "write debug output to the log file")
	flags.String("store", "lazy", "page extraction: lazy or eager")

	f := rootCmd.Flags()
	f.StringVarP(&style, "style", "s", styles.AutoStyle, "style name or JSON path")
	f.UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to use the terminal width)")
	f.BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	_ = f.MarkHidden("mouse")
	f.BoolVar(&watch, "watch", true, "reload the document when it changes")
	f.StringP("engine", "e", "gtts", "speech engine: gtts, piper or google")
	f.StringP("rate", "r", "+0%", "speaking rate offset, from -50% to +100%")
	f.Bool("auto-advance", true, "move to the next page when a page finishes")
	f.Bool("skip-empty", false, "let auto-advance pass over pages without text")
	f.Int("lookahead", 1, "pages synthesized ahead of the current one")
	f.String("cache-policy", "window", "speech cache policy: window or unbounded")
	f.String("cache-max-bytes", "0", "speech cache memory ceiling, e.g. 64MB")
	f.Bool("cache-compress", false, "zstd-compress cached audio")
	f.Duration("synth-timeout", synth.DefaultTimeout, "timeout for one synthesis request")
	f.Int("synth-rpm", synth.DefaultRequestsPerMinute, "synthesis requests per minute (0 for no limit)")
	f.String("language", "en", "gTTS language code")
	f.String("piper-model", "", "path to the piper .onnx voice model")
	f.String("google-voice", "", "Google Cloud voice name")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")

	// Config bindings
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("store", flags.Lookup("store"))
	_ = viper.BindPFlag("style", f.Lookup("style"))
	_ = viper.BindPFlag("width", f.Lookup("width"))
	_ = viper.BindPFlag("mouse", f.Lookup("mouse"))
	_ = viper.BindPFlag("watch", f.Lookup("watch"))
	_ = viper.BindPFlag("engine", f.Lookup("engine"))
	_ = viper.BindPFlag("rate", f.Lookup("rate"))
	_ = viper.BindPFlag("auto_advance", f.Lookup("auto-advance"))
	_ = viper.BindPFlag("skip_empty_pages", f.Lookup("skip-empty"))
	_ = viper.BindPFlag("lookahead", f.Lookup("lookahead"))
	_ = viper.BindPFlag("cache.policy", f.Lookup("cache-policy"))
	_ = viper.BindPFlag("cache.max_bytes", f.Lookup("cache-max-bytes"))
	_ = viper.BindPFlag("cache.compress", f.Lookup("cache-compress"))
	_ = viper.BindPFlag("synth.timeout", f.Lookup("synth-timeout"))
	_ = viper.BindPFlag("synth.requests_per_minute", f.Lookup("synth-rpm"))
	_ = viper.BindPFlag("gtts.language", f.Lookup("language"))
	_ = viper.BindPFlag("piper.model", f.Lookup("piper-model"))
	_ = viper.BindPFlag("google.voice_name", f.Lookup("google-voice"))
	_ = viper.BindPFlag("metrics_addr", f.Lookup("metrics-addr"))

	setDefaults(viper.GetViper())

	pagesCmd.Flags().StringVarP(&findQuery, "find", "f", "", "only list pages whose title matches")
	pagesCmd.Flags().UintVarP(&outlineWidth, "width", "w", 0, "cut lines at width (0 for no limit)")

	rootCmd.AddCommand(configCmd, manCmd, pagesCmd)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("style", styles.AutoStyle)
	v.SetDefault("width", 0)
	v.SetDefault("watch", true)
	v.SetDefault("store", "lazy")

	v.SetDefault("engine", "gtts")
	v.SetDefault("rate", "+0%")
	v.SetDefault("auto_advance", true)
	v.SetDefault("skip_empty_pages", false)
	v.SetDefault("lookahead", 1)

	v.SetDefault("cache.policy", "window")
	v.SetDefault("cache.max_bytes", "0")
	v.SetDefault("cache.compress", false)

	v.SetDefault("synth.min_text_length", synth.DefaultMinTextLength)
	v.SetDefault("synth.timeout", synth.DefaultTimeout)
	v.SetDefault("synth.requests_per_minute", synth.DefaultRequestsPerMinute)

	v.SetDefault("gtts.language", "en")
	v.SetDefault("gtts.slow", false)
	v.SetDefault("piper.binary", "piper")
	v.SetDefault("piper.model", "")
	v.SetDefault("google.language_code", "en-US")
	v.SetDefault("google.voice_name", "")
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "pagecast")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "pagecast")}, dirs...)
	}

	if c := os.Getenv("PAGECAST_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("pagecast")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("pagecast")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "pagecast.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
