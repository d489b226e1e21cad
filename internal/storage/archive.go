package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/palma21/referral-drip-bot/internal/state"
	"github.com/sirupsen/logrus"
)

const runsPrefix = "runs/"

// RunArchive writes finished-run logs and summaries to a store
type RunArchive struct {
	store StorageInterface
	keep  int
}

// NewRunArchive creates an archive over store, retaining at most keep runs (0 keeps all)
func NewRunArchive(store StorageInterface, keep int) *RunArchive {
	return &RunArchive{store: store, keep: keep}
}

// ArchiveRun stores the CSV log and JSON summary of a finished run
func (a *RunArchive) ArchiveRun(summary *models.RunSummary, entries []models.LogEntry) error {
	base := RunName(summary)

	var buf bytes.Buffer
	if err := state.WriteCSV(&buf, entries); err != nil {
		return fmt.Errorf("failed to render run log: %w", err)
	}
	if err := a.store.Store(Object{
		Name:        base + ".csv",
		Data:        buf.Bytes(),
		ContentType: "text/csv",
		Metadata:    runMetadata(summary, "log"),
	}); err != nil {
		return err
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := a.store.Store(Object{
		Name:        base + ".json",
		Data:        data,
		ContentType: "application/json",
		Metadata:    runMetadata(summary, "summary"),
	}); err != nil {
		return err
	}

	if err := a.prune(); err != nil {
		logrus.Warnf("Failed to prune archived runs: %v", err)
	}
	return nil
}

// runMetadata tags an archived file with the run it belongs to
func runMetadata(summary *models.RunSummary, kind string) map[string]string {
	return map[string]string{
		"runid":  summary.RunID,
		"kind":   kind,
		"reason": string(summary.Reason),
		"dryrun": strconv.FormatBool(summary.DryRun),
	}
}

// ListRuns returns archived run names, newest first
func (a *RunArchive) ListRuns() ([]string, error) {
	blobs, err := a.store.List(runsPrefix)
	if err != nil {
		return nil, err
	}

	var runs []string
	for _, blob := range blobs {
		if name, ok := strings.CutSuffix(path.Base(blob), ".csv"); ok {
			runs = append(runs, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))
	return runs, nil
}

// FetchRun returns the archived CSV log of the named run
func (a *RunArchive) FetchRun(name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("invalid run name %q", name)
	}
	return a.store.Retrieve(runsPrefix + name + ".csv")
}

func (a *RunArchive) prune() error {
	if a.keep <= 0 {
		return nil
	}

	runs, err := a.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) <= a.keep {
		return nil
	}

	for _, name := range runs[a.keep:] {
		for _, ext := range []string{".csv", ".json"} {
			if err := a.store.Delete(runsPrefix + name + ext); err != nil {
				return err
			}
		}
	}
	logrus.Infof("Pruned %d archived runs", len(runs)-a.keep)
	return nil
}

// RunName is the archive key of a run without extension: runs/<date>-<run id>
func RunName(summary *models.RunSummary) string {
	return fmt.Sprintf("%s%s-%s", runsPrefix, summary.StartedAt.UTC().Format("20060102T150405"), summary.RunID)
}
