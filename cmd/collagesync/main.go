// Collagesync mirrors collages and bookmarks from Gazelle-based trackers
// into Plex music collections, and can push locally curated collections
// back upstream.
//
// Usage:
//
//	collagesync collages convert <id>... --site <key>   # mirror collages into collections
//	collagesync collages update                          # re-sync all stored collages
//	collagesync collages push [--collage <id>]           # push collections back upstream
//	collagesync bookmarks convert --site <key>           # mirror the bookmark feed
//	collagesync bookmarks update                         # re-sync all stored bookmark feeds
//	collagesync tags scan --site <key>                   # build the tag mapping index
//	collagesync tags convert <tag>... --name <title>     # build a collection from tags
//	collagesync db location                              # print the database path
//	collagesync db reset [--library|--collages|--bookmarks|--tags]
//	collagesync version                                  # print version
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/njoerd114/collagesync/internal/config"
	"github.com/njoerd114/collagesync/internal/gazelle"
	"github.com/njoerd114/collagesync/internal/plex"
	"github.com/njoerd114/collagesync/internal/store"
	syncp "github.com/njoerd114/collagesync/internal/sync"
	"github.com/njoerd114/collagesync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run dispatches to the appropriate subcommand.
func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch os.Args[1] {
	case "collages":
		return runGroup(os.Args[2:], map[string]func([]string) error{
			"convert": runCollagesConvert,
			"update":  runCollagesUpdate,
			"push":    runCollagesPush,
		})
	case "bookmarks":
		return runGroup(os.Args[2:], map[string]func([]string) error{
			"convert": runBookmarksConvert,
			"update":  runBookmarksUpdate,
		})
	case "tags":
		return runGroup(os.Args[2:], map[string]func([]string) error{
			"scan":    runTagsScan,
			"convert": runTagsConvert,
		})
	case "db":
		return runGroup(os.Args[2:], map[string]func([]string) error{
			"location": runDBLocation,
			"reset":    runDBReset,
		})
	case "version":
		fmt.Println("collagesync", version)
		return nil
	}

	return fmt.Errorf("unknown command %q — run 'collagesync' for usage", os.Args[1])
}

// runGroup dispatches the second-level subcommand.
func runGroup(args []string, cmds map[string]func([]string) error) error {
	if len(args) == 0 {
		return printUsage()
	}
	fn, ok := cmds[args[0]]
	if !ok {
		return fmt.Errorf("unknown subcommand %q — run 'collagesync' for usage", args[0])
	}
	return fn(args[1:])
}

// printUsage shows help and suggests creating a config if none exists.
func printUsage() error {
	cfgPath, _ := config.DefaultPath()
	_, cfgErr := os.Stat(cfgPath)

	fmt.Fprintln(os.Stderr, "collagesync — mirror tracker collages and bookmarks into Plex collections")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  collagesync collages convert <id>... --site <key>   Mirror collages into collections")
	fmt.Fprintln(os.Stderr, "  collagesync collages update                         Re-sync all stored collages")
	fmt.Fprintln(os.Stderr, "  collagesync collages push [--collage <id>]          Push collections back upstream")
	fmt.Fprintln(os.Stderr, "  collagesync bookmarks convert --site <key>          Mirror the bookmark feed")
	fmt.Fprintln(os.Stderr, "  collagesync bookmarks update                        Re-sync all stored bookmark feeds")
	fmt.Fprintln(os.Stderr, "  collagesync tags scan --site <key>                  Build the tag mapping index")
	fmt.Fprintln(os.Stderr, "  collagesync tags convert <tag>... --name <title>    Build a collection from tags")
	fmt.Fprintln(os.Stderr, "  collagesync db location                             Print the database path")
	fmt.Fprintln(os.Stderr, "  collagesync db reset [--library|--collages|--bookmarks|--tags]")
	fmt.Fprintln(os.Stderr, "  collagesync version                                 Print version")
	fmt.Fprintln(os.Stderr, "")

	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "No config file found at %s.\n", cfgPath)
	}

	os.Exit(1)
	return nil // unreachable
}

// commonFlags are shared by every subcommand that talks to services.
type commonFlags struct {
	cfgPath string
	site    string
	verbose bool
	yes     bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	defaultCfg, _ := config.DefaultPath()
	cf := &commonFlags{}
	fs.StringVar(&cf.cfgPath, "config", defaultCfg, "path to config.yaml")
	fs.StringVar(&cf.site, "site", "", "site key from the config (required when more than one is configured)")
	fs.BoolVar(&cf.verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&cf.yes, "yes", false, "answer yes to all prompts and keep all ambiguous matches")
	return cf
}

// app bundles the wired components every service-backed subcommand needs.
type app struct {
	cfg     *config.Config
	siteKey string
	logger  *slog.Logger
	store   *store.Store
	plex    *plex.Client
	remote  *gazelle.Client
	prompt  syncp.Prompter
	policy  syncp.MatchPolicy

	cleanup []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// setup loads config, opens the store, connects to Plex, and builds the
// site client. With batch true the prompter auto-confirms and keeps all
// ambiguous matches.
func setup(ctx context.Context, cf *commonFlags, batch bool) (*app, error) {
	logLevel := slog.LevelInfo
	if cf.verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cf.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", cf.cfgPath, err)
	}

	a := &app{cfg: cfg, logger: logger}

	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			a.cleanup = append(a.cleanup, func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			})
		}
	}

	dbPath, err := store.DefaultDBPath()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("resolving database path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening database at %q: %w", dbPath, err)
	}
	a.store = st
	a.cleanup = append(a.cleanup, func() {
		if err := st.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	})

	a.plex = plex.NewClient(cfg.Plex.URL, cfg.Plex.Token, cfg.Plex.Section, logger)
	if err := a.plex.Connect(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("connecting to Plex at %q: %w", cfg.Plex.URL, err)
	}
	logger.Info("connected to Plex", "url", cfg.Plex.URL, "section", cfg.Plex.Section)

	a.siteKey, err = resolveSiteKey(cfg, cf.site)
	if err != nil {
		a.close()
		return nil, err
	}
	sc, _ := cfg.Site(a.siteKey)
	rl := sc.EffectiveRateLimit()
	a.remote = gazelle.NewClient(a.siteKey, sc.BaseURL, sc.APIKey, gazelle.NewLimiter(rl.Calls, rl.Period), logger)

	if batch || cf.yes {
		a.prompt = &batchPrompter{confirmAll: true, out: os.Stdout}
		a.policy = syncp.PolicyKeepAll
	} else {
		a.prompt = newConsolePrompter(os.Stdin, os.Stdout)
		a.policy = syncp.PolicyInteractive
	}
	return a, nil
}

// resolveSiteKey picks the site: the flag value when given, otherwise
// the sole configured site.
func resolveSiteKey(cfg *config.Config, flagValue string) (string, error) {
	if flagValue != "" {
		key := strings.ToLower(flagValue)
		if _, ok := cfg.Site(key); !ok {
			return "", fmt.Errorf("site %q is not configured", flagValue)
		}
		return key, nil
	}
	if len(cfg.Sites) == 1 {
		for key := range cfg.Sites {
			return key, nil
		}
	}
	return "", fmt.Errorf("--site is required when more than one site is configured")
}

// engine wires the full sync stack for one site.
func (a *app) engine() *syncp.Engine {
	matcher := syncp.NewMatcher(a.policy, a.prompt, a.logger)
	syncer := syncp.NewSyncer(a.remote, a.plex, a.store, matcher, a.prompt, a.logger)
	return syncp.NewEngine(syncer, a.logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// --- collages ----------------------------------------------------------------

func runCollagesConvert(args []string) error {
	fs := flag.NewFlagSet("collages convert", flag.ExitOnError)
	cf := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("at least one collage ID is required")
	}
	ids := make([]int, 0, fs.NArg())
	for _, arg := range fs.Args() {
		id, err := strconv.Atoi(arg)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid collage ID %q", arg)
		}
		ids = append(ids, id)
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cf, false)
	if err != nil {
		return err
	}
	defer a.close()

	eng := a.engine()
	if _, err := eng.RefreshLibrary(ctx); err != nil {
		return err
	}

	failed := 0
	for _, id := range ids {
		result := eng.SyncCollage(ctx, id, false)
		reportResult(result)
		if result.Status == syncp.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d collages failed", failed, len(ids))
	}
	return nil
}

func runCollagesUpdate(args []string) error {
	return runUpdate(args, "collages update", func(ctx context.Context, a *app, eng *syncp.Engine) ([]syncp.Result, error) {
		groupings, err := a.store.AllListGroupings(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading tracked collages: %w", err)
		}
		var results []syncp.Result
		for _, g := range groupings {
			if g.Site != a.siteKey {
				continue
			}
			results = append(results, eng.SyncCollage(ctx, g.RemoteListID, true))
		}
		return results, nil
	})
}

func runCollagesPush(args []string) error {
	fs := flag.NewFlagSet("collages push", flag.ExitOnError)
	cf := registerCommon(fs)
	collageID := fs.Int("collage", 0, "push only the collection tracking this collage ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cf, false)
	if err != nil {
		return err
	}
	defer a.close()

	eng := a.engine()

	var results []syncp.PushResult
	if *collageID > 0 {
		g, err := a.store.ListGroupingByRemoteID(ctx, *collageID, a.siteKey)
		if err != nil {
			return err
		}
		if g == nil {
			return fmt.Errorf("collage %d is not tracked; run 'collages convert %d' first", *collageID, *collageID)
		}
		results = append(results, eng.PushUpstream(ctx, *g))
	} else {
		results, err = eng.PushAll(ctx)
		if err != nil {
			return err
		}
	}

	failed := 0
	for _, r := range results {
		reportPush(r)
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pushes failed", failed, len(results))
	}
	return nil
}

// --- bookmarks ---------------------------------------------------------------

func runBookmarksConvert(args []string) error {
	fs := flag.NewFlagSet("bookmarks convert", flag.ExitOnError)
	cf := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cf, false)
	if err != nil {
		return err
	}
	defer a.close()

	eng := a.engine()
	if _, err := eng.RefreshLibrary(ctx); err != nil {
		return err
	}

	result := eng.SyncBookmarks(ctx, false)
	reportResult(result)
	if result.Status == syncp.StatusFailed {
		return result.Err
	}
	return nil
}

func runBookmarksUpdate(args []string) error {
	return runUpdate(args, "bookmarks update", func(ctx context.Context, a *app, eng *syncp.Engine) ([]syncp.Result, error) {
		groupings, err := a.store.AllBookmarkGroupings(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading tracked bookmark feeds: %w", err)
		}
		var results []syncp.Result
		for _, g := range groupings {
			if g.Site != a.siteKey {
				continue
			}
			results = append(results, eng.SyncBookmarks(ctx, true))
		}
		return results, nil
	})
}

// runUpdate is the shared non-interactive re-sync path. Update runs
// always force and always keep ambiguous matches, so they are safe to
// schedule from cron.
func runUpdate(args []string, name string, pass func(context.Context, *app, *syncp.Engine) ([]syncp.Result, error)) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cf := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cf, true)
	if err != nil {
		return err
	}
	defer a.close()

	eng := a.engine()
	if _, err := eng.RefreshLibrary(ctx); err != nil {
		return err
	}

	results, err := pass(ctx, a, eng)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		reportResult(r)
		if r.Status == syncp.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d groupings failed", failed, len(results))
	}
	return nil
}

// --- tags --------------------------------------------------------------------

func runTagsScan(args []string) error {
	fs := flag.NewFlagSet("tags scan", flag.ExitOnError)
	cf := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cf, false)
	if err != nil {
		return err
	}
	defer a.close()

	matcher := syncp.NewMatcher(a.policy, a.prompt, a.logger)
	syncer := syncp.NewSyncer(a.remote, a.plex, a.store, matcher, a.prompt, a.logger)
	if _, err := syncer.RefreshLibrary(ctx); err != nil {
		return err
	}

	scanner := syncp.NewScanner(a.remote, a.store, a.prompt, a.logger)
	stats, err := scanner.ScanTags(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Scanned %d items: %d mapped, %d ambiguous, %d not found, %d failed.\n",
		stats.Scanned, stats.Mapped, stats.Ambiguous, stats.NotFound, stats.Failed)
	return nil
}

func runTagsConvert(args []string) error {
	fs := flag.NewFlagSet("tags convert", flag.ExitOnError)
	cf := registerCommon(fs)
	name := fs.String("name", "", "title of the collection to create or extend (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("at least one tag is required")
	}
	tags := fs.Args()

	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cf, false)
	if err != nil {
		return err
	}
	defer a.close()

	converter := syncp.NewTagConverter(a.plex, a.store, a.logger)
	result, err := converter.ConvertTags(ctx, tags, a.siteKey, *name)
	if err != nil {
		return err
	}
	reportResult(result)
	if result.Status == syncp.StatusNoMatch {
		fmt.Println("No mapped library items carry all those tags. Run 'tags scan' to extend the index.")
	}
	return nil
}

// --- db ----------------------------------------------------------------------

func runDBLocation(args []string) error {
	fs := flag.NewFlagSet("db location", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := store.DefaultDBPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runDBReset(args []string) error {
	fs := flag.NewFlagSet("db reset", flag.ExitOnError)
	library := fs.Bool("library", false, "reset the library snapshot")
	collages := fs.Bool("collages", false, "forget all tracked collages")
	bookmarks := fs.Bool("bookmarks", false, "forget all tracked bookmark feeds")
	tags := fs.Bool("tags", false, "delete tag mappings")
	site := fs.String("site", "", "with --tags, only delete mappings for this site")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*library && !*collages && !*bookmarks && !*tags {
		return fmt.Errorf("pick at least one of --library, --collages, --bookmarks, --tags")
	}

	ctx, stop := signalContext()
	defer stop()

	if !*yes {
		prompt := newConsolePrompter(os.Stdin, os.Stdout)
		if !prompt.Confirm("This deletes local tracking state (Plex collections are untouched). Continue?") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	dbPath, err := store.DefaultDBPath()
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening database at %q: %w", dbPath, err)
	}
	defer func() { _ = st.Close() }()

	if *library {
		if err := st.ResetLibrary(ctx); err != nil {
			return fmt.Errorf("resetting library snapshot: %w", err)
		}
		fmt.Println("Library snapshot reset.")
	}
	if *collages {
		if err := st.ResetListGroupings(ctx); err != nil {
			return fmt.Errorf("resetting tracked collages: %w", err)
		}
		fmt.Println("Tracked collages forgotten.")
	}
	if *bookmarks {
		if err := st.ResetBookmarkGroupings(ctx); err != nil {
			return fmt.Errorf("resetting tracked bookmark feeds: %w", err)
		}
		fmt.Println("Tracked bookmark feeds forgotten.")
	}
	if *tags {
		if err := st.ResetTagMappings(ctx, strings.ToLower(*site)); err != nil {
			return fmt.Errorf("resetting tag mappings: %w", err)
		}
		fmt.Println("Tag mappings deleted.")
	}
	return nil
}

// --- reporting ---------------------------------------------------------------

func reportResult(r syncp.Result) {
	switch r.Status {
	case syncp.StatusFailed:
		fmt.Printf("✗ %s: %v\n", r.Name, r.Err)
	case syncp.StatusCreated, syncp.StatusUpdated:
		fmt.Printf("✓ %s: %s (%d items)\n", r.Name, r.Status, r.ItemsAdded)
	default:
		fmt.Printf("• %s: %s\n", r.Name, r.Status)
	}
}

func reportPush(r syncp.PushResult) {
	switch {
	case r.Err != nil:
		fmt.Printf("✗ %s: %v\n", r.Name, r.Err)
	case r.SkipReason != "":
		fmt.Printf("• %s: skipped (%s)\n", r.Name, r.SkipReason)
	default:
		fmt.Printf("✓ %s: %d added, %d rejected, %d duplicated", r.Name, r.Added, r.Rejected, r.Duplicated)
		if len(r.Unmapped) > 0 {
			fmt.Printf(", %d unmapped", len(r.Unmapped))
		}
		fmt.Println()
	}
}
