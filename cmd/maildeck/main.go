package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/maildeck/maildeck/internal/config"
	"github.com/maildeck/maildeck/internal/db"
	"github.com/maildeck/maildeck/internal/gmail"
	"github.com/maildeck/maildeck/internal/services"
	"github.com/maildeck/maildeck/internal/version"
	"github.com/maildeck/maildeck/internal/view"
	"github.com/maildeck/maildeck/pkg/auth"
)

func main() {
	configPathFlag := flag.String("config", "", "Path to JSON configuration file (default: ~/.config/maildeck/config.json)")
	credPathFlag := flag.String("credentials", "", "Path to OAuth client credentials JSON")
	authCodeFlag := flag.String("auth-code", "", "Exchange an OAuth authorization code for a token and exit")
	versionFlag := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.GetDetailedVersionString())
		return
	}

	configPath := *configPathFlag
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: could not load configuration: %v", err)
		cfg = config.DefaultConfig()
	}
	if *credPathFlag != "" {
		cfg.Credentials = *credPathFlag
	}

	ctx := context.Background()
	oauthCfg := auth.NewOAuth2Config(cfg.Credentials, cfg.Token,
		"https://www.googleapis.com/auth/gmail.modify",
	)

	if *authCodeFlag != "" {
		if _, err := oauthCfg.Exchange(ctx, *authCodeFlag); err != nil {
			log.Fatalf("Could not exchange authorization code: %v", err)
		}
		fmt.Println("Token saved. Restart without --auth-code.")
		return
	}

	logger := log.New(os.Stderr, "[maildeck] ", log.LstdFlags|log.Lmicroseconds)
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err == nil {
			logger.SetOutput(f)
			defer f.Close()
		}
	}

	service, err := auth.NewGmailService(ctx, cfg.Credentials, cfg.Token,
		"https://www.googleapis.com/auth/gmail.modify",
	)
	if err != nil {
		if errors.Is(err, auth.ErrAuthorizationRequired) {
			url, uerr := oauthCfg.AuthURL()
			if uerr != nil {
				log.Fatalf("Could not build authorization URL: %v", uerr)
			}
			fmt.Println("Authorization required. Visit this URL, grant access, then rerun with --auth-code <code>:")
			fmt.Println(url)
			os.Exit(1)
		}
		log.Fatalf("Could not initialize Gmail service: %v", err)
	}
	gateway := gmail.NewClient(service)

	// Schema init failure is the one fatal storage error
	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Could not open cache database: %v", err)
	}
	defer store.Close()
	messages := db.NewMessageStore(store)

	emailSvc := services.NewEmailService(messages, gateway)
	emailSvc.SetLogger(logger)
	labelSvc := services.NewLabelService(messages, gateway)
	labelSvc.SetLogger(logger)
	undoSvc := services.NewUndoService(messages, gateway)
	undoSvc.SetLogger(logger)
	syncSvc := services.NewSyncService(messages, gateway, cfg.Sync.Schedule, cfg.Sync.PageSize)
	syncSvc.SetLogger(logger)

	refresh := make(chan struct{}, 1)
	syncSvc.SetOnChange(func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})

	v := view.New(messages, emailSvc, labelSvc, undoSvc, syncSvc, cfg.ListPageSize)
	if err := v.Init(ctx); err != nil {
		logger.Printf("init: %v", err)
	}

	if err := syncSvc.Start(ctx); err != nil {
		log.Fatalf("Could not start sync: %v", err)
	}
	defer syncSvc.Stop()

	runShell(ctx, v, syncSvc, refresh)
}

// runShell is a minimal line-oriented stand-in for the presentation layer;
// it exercises the same command surface a TUI would.
func runShell(ctx context.Context, v *view.View, syncSvc services.SyncService, refresh chan struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println(version.GetVersionString())
	for {
		// Fold any pending sync notification into the view before prompting
		select {
		case <-refresh:
			if err := v.Refresh(ctx); err != nil {
				fmt.Printf("refresh: %v\n", err)
			}
		default:
		}
		fmt.Printf("maildeck [%s]> ", v.CurrentLabel())
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")

		var desc string
		var err error
		switch cmd {
		case "quit", "q":
			return
		case "labels":
			for _, l := range v.Labels() {
				fmt.Printf("  %-24s %s\n", l.ID, l.DisplayName())
			}
		case "ls":
			for i, m := range v.Messages() {
				marker := " "
				if i == v.Selected() {
					marker = ">"
				}
				read := " "
				if !m.IsRead {
					read = "*"
				}
				fmt.Printf("%s %s %3d  %-28s %s\n", marker, read, i, m.From, m.Subject)
			}
		case "select":
			err = v.SelectLabel(ctx, arg)
		case "open":
			var n int
			if n, err = strconv.Atoi(arg); err == nil {
				if err = v.SelectMessage(ctx, n); err == nil {
					for _, m := range v.ThreadDetail() {
						fmt.Printf("--- %s: %s\n%s\n", m.From, m.Subject, m.Snippet)
					}
				}
			}
		case "read":
			desc, err = v.MarkRead(ctx)
		case "delete", "d":
			desc, err = v.Delete(ctx)
		case "archive", "a":
			desc, err = v.Archive(ctx)
		case "undo", "u":
			desc, err = v.Undo(ctx)
		case "label":
			desc, err = v.ApplyLabel(ctx, arg)
		case "unlabel":
			desc, err = v.RemoveLabel(ctx, arg)
		case "search":
			desc, err = v.Search(ctx, arg)
		case "more":
			err = v.LoadMore(ctx)
		case "sync":
			err = syncSvc.SyncNow(ctx)
		case "status":
			st := v.SyncStatus()
			fmt.Printf("phase=%s label=%s last=%s err=%s undo=%v\n",
				st.Phase, st.CurrentLabel, st.LastSync.Format("15:04:05"), st.LastError, v.CanUndo())
		default:
			fmt.Println("commands: labels ls select open read delete archive undo label unlabel search more sync status quit")
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		} else if desc != "" {
			fmt.Println(desc)
		}
	}
}
