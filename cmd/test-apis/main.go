package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/palma21/referral-drip-bot/internal/config"
	"github.com/palma21/referral-drip-bot/internal/discovery"
	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/palma21/referral-drip-bot/internal/platform"
	"github.com/palma21/referral-drip-bot/internal/presets"
	"github.com/spf13/pflag"
)

func main() {
	var presetFlag string
	var maxShown int
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("test-apis", pflag.ContinueOnError)
	flagSet.StringVar(&presetFlag, "preset", "", "preset to run discovery for (default: RUN_PRESET or doordash)")
	flagSet.IntVar(&maxShown, "show", 10, "number of candidates to print")
	flagSet.DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the probe")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatalf("Invalid arguments: %v", err)
	}

	fmt.Println("🔍 Referral Drip Bot - API Connectivity Test")
	fmt.Println("============================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.RedditRefreshToken == "" {
		fmt.Println("⚠️  REDDIT_REFRESH_TOKEN is not set; log in through the web UI first")
		os.Exit(1)
	}

	available, err := presets.Load(cfg.PresetsFile)
	if err != nil {
		log.Fatalf("Failed to load presets: %v", err)
	}
	presetName := strings.ToLower(presetFlag)
	if presetName == "" {
		presetName = cfg.RunPreset
	}
	if presetName == "" {
		presetName = "doordash"
	}
	preset, ok := available[presetName]
	if !ok {
		log.Fatalf("Unknown preset %q (available: %s)", presetName, strings.Join(presets.Names(available), ", "))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	oauthCfg := platform.OAuthConfig(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditRedirectURI, cfg.RedditAuthBase)
	client := platform.NewRedditFactory(oauthCfg, cfg.RedditAPIBase, cfg.UserAgent)(cfg.RedditRefreshToken)

	fmt.Print("\n🔸 Resolving identity... ")
	user, err := client.Me(ctx)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ u/%s\n", user)

	runCfg := presets.Apply(models.RunConfig{}, preset).WithDefaults()

	fmt.Printf("\n📡 Discovery pass for preset %q...\n", presetName)
	fmt.Println(strings.Repeat("-", 40))

	d := discovery.New(client, func(f discovery.Failure) {
		fmt.Printf("   ⚠️  %s r/%s %s: %v\n", f.Event, f.Community, f.Query, f.Err)
	})

	found := 0
	for c := range d.Candidates(ctx, discovery.ParamsFromConfig(runCfg, time.Now())) {
		found++
		if found > maxShown {
			continue
		}
		flags := ""
		if c.Disallowed {
			flags += " [rules disallow]"
		}
		if c.MegathreadOnly {
			flags += " [megathread only]"
		}
		fmt.Printf("   📝 r/%s: %s%s\n      %s\n", c.Community, c.Title, flags, c.URL())
	}

	fmt.Printf("\n✅ Found %d candidates (nothing was posted)\n", found)
}
