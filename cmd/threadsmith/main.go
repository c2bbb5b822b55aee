package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"threadsmith/internal/cmdlog"
	"threadsmith/internal/config"
	"threadsmith/internal/metrics"
	"threadsmith/internal/model"
	"threadsmith/internal/oauth"
	"threadsmith/internal/store/threadstore"
	"threadsmith/internal/summarize"
	"threadsmith/internal/syncer"
	"threadsmith/internal/theme"
	"threadsmith/internal/thread"
	"threadsmith/internal/xapi"
)

func main() {
	metrics.StartServer("")
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	var err error
	switch cmd {
	case "init":
		err = cmdlog.Run("init", cmdInit)
	case "sync":
		err = cmdlog.Run("sync", cmdSync)
	case "add":
		err = cmdlog.Run("add", cmdAdd)
	case "ls":
		err = cmdlog.Run("ls", cmdList)
	case "status":
		err = cmdlog.Run("status", cmdStatus)
	case "reauth":
		err = cmdlog.Run("reauth", cmdReauth)
	default:
		printHelp()
	}
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: threadsmith <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./threadsmith.yaml")
	fmt.Println("  sync        Fetch new bookmarks and save their threads")
	fmt.Println("  add <url>   Save the thread for one tweet URL or ID")
	fmt.Println("  ls          List saved threads")
	fmt.Println("  status      Check API connectivity and token validity")
	fmt.Println("  reauth      Run the OAuth2 authorization flow")
}

// runCtx cancels on SIGINT/SIGTERM so quota waits abort cleanly.
func runCtx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type app struct {
	cfg     config.Config
	cfgPath string
	guard   *xapi.Guard
	client  *xapi.Client
	store   *threadstore.DB
	runner  *syncer.Runner
}

func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if cfg.Credentials.AccessToken == "" {
		fmt.Println("warning: no access token configured; run reauth first")
	}

	guard := xapi.NewGuard(model.Credentials{
		AccessToken:  cfg.Credentials.AccessToken,
		RefreshToken: cfg.Credentials.RefreshToken,
		ClientID:     cfg.Credentials.ClientID,
		ClientSecret: cfg.Credentials.ClientSecret,
	}, cfg.API.BaseURL)
	governor := xapi.NewGovernor(time.Duration(cfg.API.MinIntervalSeconds) * time.Second)
	governor.SetWaitReporter(func(key string, d time.Duration, until time.Time) {
		fmt.Printf("⏳ rate limit (%s): waiting %.1f minutes (%.0fs), resumes %s\n",
			key, d.Minutes(), d.Seconds(), until.Format("15:04:05"))
	})
	client := xapi.NewClient(cfg.API.BaseURL, guard, governor, cfg.API.MaxQuotaRetries)

	db, err := threadstore.Open(cfg.Storage.DBPath, cfg.Storage.ThreadsDir)
	if err != nil {
		return nil, err
	}

	var summarizer syncer.Summarizer
	if cfg.LLM.ServerURL != "" {
		summarizer = summarize.NewClient(cfg.LLM.ServerURL, cfg.LLM.MaxTokens, cfg.LLM.Temperature)
	}
	runner := syncer.New(client, thread.NewResolver(client), db, summarizer, cfg.API.MaxResults)

	return &app{cfg: cfg, cfgPath: cfgPath, guard: guard, client: client, store: db, runner: runner}, nil
}

func (a *app) close() {
	// Rotated tokens must survive the process; write them back first.
	if a.guard != nil && a.guard.Changed() {
		creds := a.guard.Credentials()
		a.cfg.Credentials.AccessToken = creds.AccessToken
		a.cfg.Credentials.RefreshToken = creds.RefreshToken
		if err := config.Save(a.cfgPath, a.cfg); err != nil {
			fmt.Println("warning: could not persist refreshed credentials:", err)
		}
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

func cmdInit() error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./threadsmith.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		return err
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
	return nil
}

func cmdSync() error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	cfgPath := fs.String("config", "./threadsmith.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	a, err := buildApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancel := runCtx()
	defer cancel()
	saved, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ sync complete: %d new thread(s) saved\n", saved)
	return nil
}

func cmdAdd() error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	cfgPath := fs.String("config", "./threadsmith.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: threadsmith add <url-or-id>")
	}
	a, err := buildApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancel := runCtx()
	defer cancel()
	if err := a.runner.ProcessURL(ctx, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Println("✓ done")
	return nil
}

func cmdList() error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	cfgPath := fs.String("config", "./threadsmith.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	a, err := buildApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancel := runCtx()
	defer cancel()
	threads, err := a.store.ListThreads(ctx)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fmt.Println("No threads saved yet.")
		return nil
	}
	for _, t := range threads {
		fmt.Printf("%-20s @%-16s %3d tweet(s)  %s\n",
			t.SavedAt.Format("2006-01-02 15:04"), t.AuthorUsername, t.TweetCount, t.URL)
	}
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d thread(s), %d processed ID(s)\n", stats.Threads, stats.Processed)
	return nil
}

func cmdStatus() error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", "./threadsmith.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	a, err := buildApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancel := runCtx()
	defer cancel()
	if !a.guard.EnsureValid(ctx) {
		return fmt.Errorf("token refresh failed; run 'threadsmith reauth'")
	}
	id, err := a.client.Me(ctx)
	if err != nil {
		return fmt.Errorf("API check failed: %w", err)
	}
	fmt.Println("✓ API connection OK, user id:", id)
	return nil
}

func cmdReauth() error {
	fs := flag.NewFlagSet("reauth", flag.ExitOnError)
	cfgPath := fs.String("config", "./threadsmith.yaml", "config path")
	redirect := fs.String("redirect", "http://localhost:3000/callback", "registered redirect URI")
	listen := fs.String("listen", "localhost:3000", "callback listen address; empty for manual paste")
	_ = fs.Parse(os.Args[2:])

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if cfg.Credentials.ClientID == "" || cfg.Credentials.ClientSecret == "" {
		return fmt.Errorf("clientID/clientSecret missing in %s", *cfgPath)
	}

	flow := oauth.NewFlow(cfg.Credentials.ClientID, cfg.Credentials.ClientSecret, *redirect)
	ch, err := oauth.NewChallenge()
	if err != nil {
		return err
	}

	theme.PrintBanner()
	fmt.Println("Open this URL in your browser and authorize the app:")
	fmt.Println()
	fmt.Println(flow.AuthorizeURLFor(ch))
	fmt.Println()

	ctx, cancel := runCtx()
	defer cancel()

	var code string
	if *listen != "" {
		fmt.Println("Waiting for the callback on", *listen, "...")
		code, err = flow.WaitForCallback(ctx, *listen, ch)
		if err != nil {
			return err
		}
	} else {
		fmt.Print("Paste the redirect URL or the authorization code: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		code, err = oauth.ParseCallbackInput(line)
		if err != nil {
			return err
		}
	}

	tok, err := flow.Exchange(ctx, code, ch.Verifier)
	if err != nil {
		return err
	}
	cfg.Credentials.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		cfg.Credentials.RefreshToken = tok.RefreshToken
	}
	if err := config.Save(*cfgPath, cfg); err != nil {
		return err
	}
	fmt.Println("✓ Authentication successful, tokens saved.")
	return nil
}
