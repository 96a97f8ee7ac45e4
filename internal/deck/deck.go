// Package deck loads cards into the store from markdown deck files, local
// directories, git repositories and the built-in sample deck.
package deck

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/recall/internal/cardhash"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/gitsource"
	"github.com/conorfennell/recall/internal/parser"
)

//go:embed seed.md
var seedDeck []byte

// Store is the persistence the importer needs.
type Store interface {
	CreateCard(ctx context.Context, card domain.Card) (*domain.Card, error)
	CountCards(ctx context.Context) (int, error)
	UpsertSource(ctx context.Context, path string) (int64, error)
	GetAllSources(ctx context.Context) ([]domain.Source, error)
	DeleteSource(ctx context.Context, sourceID int64) error
	MarkSourceImported(ctx context.Context, sourceID int64, at time.Time) error
}

// ErrSourceUnavailable is returned when a source's directory cannot be read or its
// repository cannot be fetched.
var ErrSourceUnavailable = errors.New("deck source unavailable")

// SyncFunc fetches a git repository into a local directory.
type SyncFunc func(ctx context.Context, url, localPath string) error

// Importer adds deck cards to a store. Cards already present, by content hash, are skipped;
// cards are never removed.
type Importer struct {
	store    Store
	reposDir string
	gitSync  SyncFunc
	logger   *slog.Logger
}

// NewImporter creates an Importer that clones git sources under reposDir.
func NewImporter(store Store, reposDir string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:    store,
		reposDir: reposDir,
		gitSync:  gitsource.Sync,
		logger:   logger.With("component", "deck"),
	}
}

// Report summarises one import.
type Report struct {
	Source     string
	Parsed     int
	Created    int
	Duplicates int
	Errors     []error
}

// Import registers path as a source and imports every .md file under it.
// A git URL is cloned (or pulled) into the repos directory first.
// File-level problems are collected in the report; only failures that stop the
// whole import are returned as an error.
func (im *Importer) Import(ctx context.Context, path string) (*Report, error) {
	if !gitsource.IsGitURL(path) {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
	}
	sourceID, err := im.store.UpsertSource(ctx, path)
	if err != nil {
		return nil, err
	}
	return im.importSource(ctx, domain.Source{ID: sourceID, Path: path})
}

// SyncAll re-imports every registered source. A failing source is logged and
// skipped so the others still sync.
func (im *Importer) SyncAll(ctx context.Context) ([]*Report, error) {
	sources, err := im.store.GetAllSources(ctx)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		im.logger.Info("No sources configured. Add one with: recall import <path/or/url.git>")
		return nil, nil
	}

	var reports []*Report
	for _, source := range sources {
		report, err := im.importSource(ctx, source)
		if err != nil {
			im.logger.Error("Error syncing source", "id", source.ID, "path", source.Path, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Sources returns every registered source.
func (im *Importer) Sources(ctx context.Context) ([]domain.Source, error) {
	return im.store.GetAllSources(ctx)
}

// Remove unregisters a source. Its cards stay in the deck.
func (im *Importer) Remove(ctx context.Context, sourceID int64) error {
	if err := im.store.DeleteSource(ctx, sourceID); err != nil {
		return err
	}
	im.logger.Info("Source removed", "id", sourceID)
	return nil
}

// Seed imports the built-in sample deck when the store holds no cards.
// It returns the number of cards created.
func (im *Importer) Seed(ctx context.Context) (int, error) {
	n, err := im.store.CountCards(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	cards, err := parser.Parse(bytes.NewReader(seedDeck))
	if err != nil {
		return 0, fmt.Errorf("parse sample deck: %w", err)
	}
	report := &Report{Source: "sample deck", Parsed: len(cards)}
	if err := im.addCards(ctx, cards, 0, report); err != nil {
		return report.Created, err
	}
	if len(report.Errors) > 0 {
		return report.Created, errors.Join(report.Errors...)
	}
	im.logger.Info("sample deck loaded", "cards", report.Created)
	return report.Created, nil
}

func (im *Importer) importSource(ctx context.Context, source domain.Source) (*Report, error) {
	im.logger.Info("Importing source", "id", source.ID, "path", source.Path)

	dir := source.Path
	if gitsource.IsGitURL(source.Path) {
		localPath, err := gitsource.LocalPath(im.reposDir, source.Path)
		if err != nil {
			return nil, err
		}
		if err := im.gitSync(ctx, source.Path, localPath); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		dir = localPath
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	report := &Report{Source: source.Path}
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		cards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		report.Parsed += len(cards)
		return im.addCards(ctx, cards, source.ID, report)
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, walkErr)
	}

	if err := im.store.MarkSourceImported(ctx, source.ID, time.Now()); err != nil {
		im.logger.Warn("Failed to update last imported for source", "source_id", source.ID, "error", err)
	}

	im.logger.Info("import complete",
		"path", source.Path,
		"parsed_cards", report.Parsed,
		"created", report.Created,
		"duplicates", report.Duplicates,
		"errors", len(report.Errors),
	)
	return report, nil
}

// addCards stores cards, counting duplicates. Only context cancellation aborts.
func (im *Importer) addCards(ctx context.Context, cards []domain.Card, sourceID int64, report *Report) error {
	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}
		card.Hash = cardhash.Hash(card)
		card.SourceID = sourceID

		if _, err := im.store.CreateCard(ctx, card); err != nil {
			if errors.Is(err, domain.ErrDuplicateCard) {
				report.Duplicates++
				continue
			}
			report.Errors = append(report.Errors, fmt.Errorf("storing card %s: %w", card.Hash, err))
			continue
		}
		im.logger.Debug("New card found, inserted", "hash", card.Hash)
		report.Created++
	}
	return nil
}
