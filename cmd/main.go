package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/romlind/issuescout/config"
	"github.com/romlind/issuescout/internal/api"
	"github.com/romlind/issuescout/internal/db"
	"github.com/romlind/issuescout/internal/logger"
	"github.com/romlind/issuescout/internal/models"
	"github.com/romlind/issuescout/internal/search"
	syncengine "github.com/romlind/issuescout/internal/sync"
	"github.com/romlind/issuescout/internal/tasks"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	createConfig := flag.Bool("init", false, "Create a default configuration file if it doesn't exist")
	addRepo := flag.String("add-repo", "", "Add a repository to the configuration (format: owner/name)")
	priority := flag.Int("priority", 0, "Priority for -add-repo (higher wins score ties)")
	syncRepo := flag.String("sync", "", "Sync a repository page by page (format: owner/name)")
	syncAll := flag.Bool("sync-all", false, "Sync all enabled repositories")
	searchQuery := flag.String("search", "", "Search one repository (requires -repo)")
	repo := flag.String("repo", "", "Repository for -search/-status/-discussions (format: owner/name)")
	multiQuery := flag.String("multi", "", "Search across all enabled repositories")
	message := flag.String("message", "", "Extract keywords from a chat message and search with them")
	keywords := flag.String("keywords", "", "Print the technical keywords extracted from text")
	status := flag.Bool("status", false, "Show sync status (requires -repo)")
	clearCache := flag.Bool("clear-cache", false, "Wipe mirrored issues, comments, cache and sync metadata")
	discussions := flag.Bool("discussions", false, "List discussions (requires -repo and a token)")
	state := flag.String("state", "all", "Issue state filter: open, closed or all")
	limit := flag.Int("limit", 20, "Maximum number of results")
	minRelevance := flag.Float64("min-relevance", 0.1, "Minimum relevance score")
	noCache := flag.Bool("no-cache", false, "Bypass the search cache")
	includeBody := flag.Bool("include-body", true, "Match issue bodies in multi-repository search")
	includeComments := flag.Bool("include-comments", false, "Match locally synced comment text in multi-repository search")
	flag.Parse()

	// .env is optional; absence is not an error
	_ = godotenv.Load()

	if *createConfig {
		if err := config.CreateDefaultConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create default configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created default configuration at %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	if *addRepo != "" {
		if err := addRepository(cfg, *configPath, *addRepo, *priority); err != nil {
			log.Fatal().Err(err).Msg("failed to add repository")
		}
		log.Info().Str("repository", *addRepo).Msg("repository added")
		return
	}

	store, err := db.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()

	if err := store.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	ctx := context.Background()
	if err := seedRepositoryConfigs(ctx, store, cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to register configured repositories")
	}

	client := api.NewGitHubClient(cfg.GitHubToken)
	engine := syncengine.New(store, client, log)

	cache := search.NewCache(store, log)
	single := search.NewService(store, cache, log)
	runner := tasks.NewRunner(64, log)
	defer runner.Close()
	coordinator := search.NewCoordinator(store, single, runner, log)

	searchOpts := search.MultiOptions{
		State:           *state,
		Limit:           *limit,
		MinRelevance:    *minRelevance,
		UseCache:        !*noCache,
		IncludeBody:     *includeBody,
		IncludeComments: *includeComments,
	}

	switch {
	case *keywords != "":
		for _, kw := range search.ExtractTechnicalKeywords(*keywords) {
			fmt.Println(kw)
		}

	case *syncRepo != "":
		runSync(ctx, log, store, engine, *syncRepo)

	case *syncAll:
		configs, err := store.ListRepositoryConfigs(ctx, true)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to list repositories")
		}
		for _, target := range configs {
			runSync(ctx, log, store, engine, target.FullName)
		}

	case *searchQuery != "":
		if *repo == "" {
			log.Fatal().Msg("-search requires -repo owner/name")
		}
		results, err := single.Search(ctx, *repo, *searchQuery, search.Options{
			Limit:        *limit,
			State:        *state,
			MinRelevance: *minRelevance,
			UseCache:     !*noCache,
			CacheTTL:     cfg.CacheTTL(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("search failed")
		}
		for _, issue := range results {
			fmt.Printf("%.3f  #%-5d %s\n", issue.RelevanceScore, issue.Number, issue.Title)
		}

	case *multiQuery != "":
		searchOpts.Query = *multiQuery
		printResults(coordinator.SearchAcrossRepositories(ctx, searchOpts))

	case *message != "":
		printResults(coordinator.SearchByMessageContent(ctx, *message, searchOpts))

	case *status:
		if *repo == "" {
			log.Fatal().Msg("-status requires -repo owner/name")
		}
		meta, err := engine.Status(ctx, *repo)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read sync status")
		}
		fmt.Printf("%s: %s (issues: %d, comments: %d, last sync: %s)\n",
			meta.Repository, meta.Status, meta.TotalIssues, meta.TotalComments, meta.LastSyncTime)
		if meta.ErrorMessage != "" {
			fmt.Printf("last error: %s\n", meta.ErrorMessage)
		}

	case *clearCache:
		if err := single.ClearCache(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to clear local data")
		}
		log.Info().Msg("local data cleared")

	case *discussions:
		if *repo == "" || cfg.GitHubToken == "" {
			log.Fatal().Msg("-discussions requires -repo owner/name and a GitHub token")
		}
		owner, name, err := syncengine.ParseRepositoryString(*repo)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid repository")
		}
		gql := api.NewGraphQLClient(cfg.GitHubToken)
		threads, err := gql.GetDiscussions(ctx, owner, name, *limit)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to fetch discussions")
		}
		for _, d := range threads {
			fmt.Printf("#%-5d %s (%d comments)\n", d.Number, d.Title, len(d.Comments))
		}

	default:
		usage()
	}
}

func runSync(ctx context.Context, log zerolog.Logger, store *db.DB, engine *syncengine.Engine, repository string) {
	target, err := store.GetRepositoryConfig(ctx, repository)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve repository")
	}
	if target == nil {
		log.Fatal().Str("repository", repository).Msg("repository not configured; use -add-repo first")
	}

	result, err := engine.SyncAll(ctx, target, syncengine.Options{
		State: "all",
		Sort:  "updated",
		OnProgress: func(processed, total int) {
			if processed == total {
				log.Info().Str("repository", repository).Int("records", total).Msg("page processed")
			}
		},
	})
	if err != nil {
		log.Error().Err(err).Str("repository", repository).Msg("sync failed")
		return
	}
	log.Info().
		Str("repository", repository).
		Int("synced", result.Synced).
		Int("skipped", result.Skipped).
		Msg("sync complete")
}

func printResults(results []models.SearchResult) {
	for _, r := range results {
		fmt.Printf("%.3f  %-30s #%-5d [%s] %s\n", r.Score, r.Repository, r.Issue.Number, r.MatchedField, r.Issue.Title)
		if r.Snippet != "" {
			fmt.Printf("       %s\n", r.Snippet)
		}
	}
}

func addRepository(cfg *config.Config, path, repository string, priority int) error {
	if _, _, err := syncengine.ParseRepositoryString(repository); err != nil {
		return err
	}

	for i, target := range cfg.Repositories {
		if target.Repository == repository {
			cfg.Repositories[i].Priority = priority
			cfg.Repositories[i].Enabled = true
			return config.SaveConfig(cfg, path)
		}
	}

	cfg.Repositories = append(cfg.Repositories, config.RepositoryTarget{
		Repository: repository,
		Priority:   priority,
		Enabled:    true,
	})
	return config.SaveConfig(cfg, path)
}

// seedRepositoryConfigs mirrors the configured targets into the store,
// where the search layer resolves them.
func seedRepositoryConfigs(ctx context.Context, store *db.DB, cfg *config.Config) error {
	for _, target := range cfg.Repositories {
		owner, name, err := syncengine.ParseRepositoryString(target.Repository)
		if err != nil {
			return err
		}
		if err := store.UpsertRepositoryConfig(ctx, &models.RepositoryConfig{
			Owner:    owner,
			Name:     name,
			FullName: target.Repository,
			Token:    target.Token,
			Priority: target.Priority,
			Enabled:  target.Enabled,
		}); err != nil {
			return err
		}
	}
	return nil
}

func usage() {
	fmt.Println("issuescout - issue search across repositories")
	fmt.Println()
	fmt.Println("  -init                          create a default config file")
	fmt.Println("  -add-repo owner/name           add a repository (with -priority N)")
	fmt.Println("  -sync owner/name               mirror a repository's issues locally")
	fmt.Println("  -sync-all                      mirror every enabled repository")
	fmt.Println("  -search QUERY -repo owner/name search one repository")
	fmt.Println("  -multi QUERY                   search across enabled repositories")
	fmt.Println("  -include-body=false            restrict -multi matching to titles and labels")
	fmt.Println("  -include-comments              let -multi match synced comment text")
	fmt.Println("  -message TEXT                  keyword-extract a chat message and search")
	fmt.Println("  -keywords TEXT                 show extracted technical keywords")
	fmt.Println("  -status -repo owner/name       show sync status")
	fmt.Println("  -discussions -repo owner/name  list discussion threads")
	fmt.Println("  -clear-cache                   wipe mirrored data and caches")
	fmt.Println()
	fmt.Printf("GitHub token via config file or the %s environment variable\n", config.EnvGithubToken)
}
