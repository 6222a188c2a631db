package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"api-contract-tester/internal/auth"
	"api-contract-tester/internal/blacklist"
	"api-contract-tester/internal/config"
	"api-contract-tester/internal/discovery"
	"api-contract-tester/internal/hierarchy"
	"api-contract-tester/internal/llm"
	"api-contract-tester/internal/logger"
	"api-contract-tester/internal/orchestrator"
	"api-contract-tester/internal/parser"
	"api-contract-tester/internal/reporter"
	"api-contract-tester/internal/runner"
	"api-contract-tester/internal/types"

	_ "github.com/denisenkom/go-mssqldb" // for sqlserver
	_ "github.com/go-sql-driver/mysql"   // for mysql
	_ "github.com/lib/pq"                // for postgres
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default config/config.yaml)")
	swaggerURL := flag.String("url", "", "Swagger base URL (overrides config)")
	mode := flag.String("mode", "", "Test mode: full or readonly (overrides config)")
	parallel := flag.Bool("parallel", false, "Run endpoint tests in batches")
	maxParallel := flag.Int("max-parallel", 0, "Batch size for parallel mode (overrides config)")
	realData := flag.Bool("real-data", false, "Discover real identifiers before testing")
	hierarchical := flag.Bool("hierarchical", false, "Expand parent/child API relationships")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlagOverrides(cfg, *swaggerURL, *mode, *parallel, *maxParallel, *realData, *hierarchical)
	if cfg.Test.Mode != "full" && cfg.Test.Mode != "readonly" {
		log.Fatalf("Invalid mode %q: must be full or readonly", cfg.Test.Mode)
	}

	runLog, err := logger.NewLogger("logs")
	if err != nil {
		log.Fatalf("Failed to create run log: %v", err)
	}
	defer runLog.Close()

	if cfg.Test.UseHierarchical && cfg.Test.UseRealData {
		// Documented precedence: hierarchical discovery wins.
		fmt.Println("Both hierarchical and real-data discovery requested; hierarchical takes precedence, real-data is ignored")
		runLog.Printf("config: use_hierarchical overrides use_real_data")
		cfg.Test.UseRealData = false
	}

	// Parse the Swagger document into endpoint groups
	swaggerBase := cfg.Environment.SwaggerURL
	if swaggerBase == "" {
		swaggerBase = cfg.Environment.BaseURL
	}
	outcome, err := parser.NewSwaggerParser(swaggerBase).Parse()
	if err != nil {
		log.Fatalf("Failed to parse endpoints: %v", err)
	}
	baseURL := cfg.Environment.BaseURL
	if baseURL == "" {
		baseURL = outcome.BaseURL
	}
	total := 0
	for _, g := range outcome.Groups {
		total += len(g.Endpoints)
	}
	fmt.Printf("Found %d endpoints in %d resource groups\n", total, len(outcome.Groups))

	provider, err := auth.NewProvider(cfg.Environment.Auth)
	if err != nil {
		log.Fatalf("Failed to configure authentication: %v", err)
	}

	ctx := context.Background()
	timeout := time.Duration(cfg.Test.Timeout) * time.Second
	readonly := cfg.Test.Mode == "readonly"

	// Discover real identifiers when configured
	var cache discovery.Cache
	if cfg.Test.UseRealData {
		engine := discovery.NewEngine(baseURL, provider, runLog, timeout, cfg.Test.SampleSize)
		cache, err = engine.Discover(ctx)
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		if cfg.SeedDB.Enabled {
			seeder := discovery.NewDBSeeder(cfg.SeedDB, runLog, cfg.Test.SampleSize)
			if err := seeder.Seed(ctx, cache); err != nil {
				fmt.Printf("Warning: database seeding failed: %v\n", err)
			}
		}
		fmt.Printf("Discovered %d records across %d categories\n", cache.Total(), len(cache))
	}

	// Optional payload synthesis for POST steps without captured data
	var payloadGen llm.Client
	if cfg.LLM.Enabled && !readonly {
		payloadGen, err = llm.NewClient(&llm.Config{
			Provider:    cfg.LLM.Provider,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}, runLog)
		if err != nil {
			fmt.Printf("Warning: payload synthesis disabled: %v\n", err)
		}
	}

	testRunner := runner.New(runner.Options{
		BaseURL:    baseURL,
		Provider:   provider,
		Cache:      cache,
		Log:        runLog,
		Timeout:    timeout,
		Readonly:   readonly,
		PayloadGen: payloadGen,
	})

	orch := orchestrator.New(orchestrator.Options{
		Filter:      blacklist.New(blacklistEntries(cfg)),
		Runner:      testRunner,
		Log:         runLog,
		Readonly:    readonly,
		Parallel:    cfg.Test.Parallel,
		MaxParallel: cfg.Test.MaxParallel,
	})

	var summary types.RunSummary
	if cfg.Test.UseHierarchical {
		expander := hierarchy.NewExpander(baseURL, provider, runLog, timeout, nil)
		data, err := expander.Fetch(ctx)
		if err != nil {
			log.Fatalf("Hierarchical discovery failed: %v", err)
		}
		summary = orch.RunHierarchical(ctx, outcome.Groups, expander.Catalog(), data)
	} else {
		summary = orch.Run(ctx, outcome.Groups)
	}

	testReporter := reporter.NewReporter(reporter.ReportingConfig{
		OutputDir: cfg.Reporting.OutputDir,
		Detailed:  cfg.Reporting.Detailed,
	})
	if err := testReporter.GenerateReport(summary); err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}

	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func applyFlagOverrides(cfg *config.Config, swaggerURL, mode string, parallel bool, maxParallel int, realData, hierarchical bool) {
	if swaggerURL != "" {
		cfg.Environment.SwaggerURL = swaggerURL
	}
	if mode != "" {
		cfg.Test.Mode = mode
	}
	if parallel {
		cfg.Test.Parallel = true
	}
	if maxParallel > 0 {
		cfg.Test.MaxParallel = maxParallel
	}
	if realData {
		cfg.Test.UseRealData = true
	}
	if hierarchical {
		cfg.Test.UseHierarchical = true
	}
}

// blacklistEntries merges the built-in exclusions with the configured
// extras.
func blacklistEntries(cfg *config.Config) []string {
	entries := []string{
		// Destructive administrative endpoints are never exercised.
		"DELETE /api/admin/purge",
		"POST /api/admin/reset",
	}
	return append(entries, cfg.Blacklist...)
}
