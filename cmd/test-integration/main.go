package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/palma21/referral-drip-bot/internal/drip"
	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/palma21/referral-drip-bot/internal/platform"
	"github.com/palma21/referral-drip-bot/internal/platform/platformtest"
	"github.com/palma21/referral-drip-bot/internal/presets"
	"github.com/palma21/referral-drip-bot/internal/rules"
	"github.com/palma21/referral-drip-bot/internal/state"
	"github.com/palma21/referral-drip-bot/internal/storage"
	"github.com/sirupsen/logrus"
)

// offlineCredentials always holds a token; the fake platform ignores it
type offlineCredentials struct{}

func (offlineCredentials) RefreshToken() (string, bool) { return "offline", true }

// virtualClock advances on every sleep so a timed run finishes instantly
type virtualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TerminalNotifier prints run summaries instead of sending them
type TerminalNotifier struct{}

func (TerminalNotifier) SendRunSummary(summary *models.RunSummary) error {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("📊 DRIP RUN SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("🆔 Run: %s\n", summary.RunID)
	fmt.Printf("🏷️  Brand: %s (dry run: %t)\n", summary.Brand, summary.DryRun)
	fmt.Printf("🕒 Virtual duration: %s\n", summary.FinishedAt.Sub(summary.StartedAt))
	fmt.Printf("🚪 Exit reason: %s\n", summary.Reason)
	fmt.Printf("📝 Dry-run matches: %d, posts: %d, failures: %d\n", summary.DryMatches, summary.TotalPosts, summary.Failures)

	communities := make([]string, 0, len(summary.PerCommunity))
	for name := range summary.PerCommunity {
		communities = append(communities, name)
	}
	sort.Strings(communities)
	for _, name := range communities {
		fmt.Printf("   • r/%-20s %d\n", name, summary.PerCommunity[name])
	}
	return nil
}

func offlinePlatform(now time.Time) *platformtest.Fake {
	thread := func(id, title string, age time.Duration) platform.Thread {
		return platform.Thread{ID: id, Title: title, Permalink: "/r/test/comments/" + id, CreatedAt: now.Add(-age)}
	}

	return &platformtest.Fake{
		Identity: "offline_tester",
		Communities: map[string]*platformtest.Community{
			"ReferralCodes": {
				Description: "Share your codes in the weekly megathread.",
				Threads: []platform.Thread{
					thread("a1", "Weekly Referral Megathread", 24*time.Hour),
					thread("a2", "Food delivery promo code megathread", 48*time.Hour),
				},
			},
			"SignUpBonuses": {
				Rules: []rules.Rule{{ShortName: "No referral links"}},
				Threads: []platform.Thread{
					thread("b1", "Referral megathread", time.Hour),
				},
			},
			"doordash": {
				Rules: []rules.Rule{{ShortName: "Be civil"}},
				Threads: []platform.Thread{
					thread("c1", "Monthly referral code megathread", 12*time.Hour),
					thread("c2", "Promo code not working?", 12*time.Hour),
				},
			},
		},
		Search: map[string][]string{
			"doordash": {"doordash"},
		},
	}
}

func main() {
	fmt.Println("🧪 Referral Drip Bot - Offline Integration Test")
	fmt.Println("==============================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	logrus.SetLevel(logrus.WarnLevel)

	outDir := "test_output"
	archiveStore, err := storage.NewSQLiteStorage(filepath.Join(outDir, "archive.db"))
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}
	defer archiveStore.Close()
	archive := storage.NewRunArchive(archiveStore, 5)

	clock := &virtualClock{now: time.Now().UTC()}
	fake := offlinePlatform(clock.Now())

	runState := state.New()
	runState.SetClock(clock.Now)
	service := drip.NewService(runState, offlineCredentials{}, func(string) platform.Platform { return fake },
		drip.WithClock(clock.Now, clock.Sleep),
		drip.WithArchiver(archive),
		drip.WithNotifier(TerminalNotifier{}),
	)

	seed := int64(7)
	duration := 30
	runCfg := presets.Apply(models.RunConfig{
		Message:         "Save on your first order",
		RefCode:         "OFFLINE5",
		DryRun:          true,
		PostsPerHour:    6,
		DurationMinutes: &duration,
		RandomSeed:      &seed,
		Allowlist:       models.StringList{"ReferralCodes", "SignUpBonuses"},
	}, presets.Builtin()["doordash"])

	runID, err := service.Start(runCfg)
	if err != nil {
		log.Fatalf("Failed to start run: %v", err)
	}
	fmt.Printf("🚀 Started dry run %s\n", runID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := service.Wait(ctx); err != nil {
		log.Fatalf("Run did not finish: %v", err)
	}

	counts := make(map[models.Event]int)
	for _, entry := range service.Status().Logs {
		counts[entry.Event]++
	}
	events := make([]string, 0, len(counts))
	for event := range counts {
		events = append(events, string(event))
	}
	sort.Strings(events)
	fmt.Println("\n📜 Log events:")
	for _, event := range events {
		fmt.Printf("   • %-22s %d\n", event, counts[models.Event(event)])
	}

	runs, err := archive.ListRuns()
	if err != nil {
		log.Fatalf("Failed to list archive: %v", err)
	}
	fmt.Printf("\n📁 Archived runs in %s: %s\n", outDir, strings.Join(runs, ", "))

	if len(fake.Replies()) != 0 {
		fmt.Println("❌ Dry run submitted replies")
		os.Exit(1)
	}
	fmt.Println("\n✅ Offline integration test completed!")
}
