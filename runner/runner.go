// Package runner executes one synchronization run: fetch the source feed,
// read the previously published feed, synchronize translations, and publish
// the result when it changed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/config"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/feed"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/metrics"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/storage"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/translate"
)

// ErrInvalidSource marks a source feed that could not be parsed.
var ErrInvalidSource = errors.New("invalid source feed")

// IsPermanent reports whether retrying the same run cannot succeed: the
// configuration is wrong or the source feed is unparsable.
func IsPermanent(err error) bool {
	var ce *config.ConfigError
	return errors.As(err, &ce) || errors.Is(err, ErrInvalidSource)
}

// TranslatorFactory returns the provider for a run. source is the feed
// location, which some providers use to name their uploaded files.
type TranslatorFactory func(source string) (translate.Translator, error)

// Runner holds what is shared between runs.
type Runner struct {
	Store         *storage.Store
	NewTranslator TranslatorFactory
	Languages     []string
	Policy        translate.Policy
	// Recorder is optional.
	Recorder *metrics.Recorder
	OnLog    func(format string, args ...any)

	now func() time.Time
}

func (r *Runner) log(format string, args ...any) {
	if r.OnLog != nil {
		r.OnLog(format, args...)
	}
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Run synchronizes source into destination. The returned report is never
// nil; on failure its Error is set and the error is returned as well.
func (r *Runner) Run(ctx context.Context, source, destination string) (*metrics.Report, error) {
	rep := &metrics.Report{
		RunID:       uuid.NewString(),
		Source:      source,
		Destination: destination,
		StartedAt:   r.clock(),
	}
	err := r.run(ctx, rep)
	rep.Duration = r.clock().Sub(rep.StartedAt)
	if err != nil {
		rep.Error = err.Error()
	}
	if r.Recorder != nil {
		r.Recorder.Observe(rep)
	}
	return rep, err
}

func (r *Runner) run(ctx context.Context, rep *metrics.Report) error {
	if rep.Destination == "" {
		return &config.ConfigError{Key: "destination_bucket_url", Reason: "DESTINATION_BUCKET_URL must be configured"}
	}
	if rep.Source == rep.Destination {
		return &config.ConfigError{Key: "destination_bucket_url", Reason: "source and destination URL are the same: " + rep.Source}
	}
	src, err := storage.ParseLocation(rep.Source)
	if err != nil {
		return &config.ConfigError{Key: "source_url", Reason: err.Error()}
	}
	if err := config.CheckDestination(rep.Destination); err != nil {
		return err
	}
	dst, err := storage.ParseLocation(rep.Destination)
	if err != nil {
		return &config.ConfigError{Key: "destination_bucket_url", Reason: err.Error()}
	}
	// The destination is written in the source's wire form.
	format := feed.FormatFromLocation(rep.Source)

	r.log("[%s] Fetching %s", rep.RunID[:8], src)
	newDoc, err := r.fetch(ctx, src, format)
	if err != nil {
		return err
	}

	oldDoc, err := r.fetchPrevious(ctx, dst, format)
	if err != nil {
		return err
	}
	rep.FirstRun = oldDoc == nil

	translator, err := r.NewTranslator(rep.Source)
	if err != nil {
		return err
	}
	m, err := translate.Sync(ctx, newDoc, oldDoc, translate.Options{
		Translator: translator,
		Languages:  r.Languages,
		Policy:     r.Policy,
		OnLog:      r.OnLog,
	})
	rep.Metrics = m
	if err != nil {
		return err
	}

	out, err := feed.Serialize(newDoc, format)
	if err != nil {
		return err
	}
	if !translate.ShouldUpload(oldDoc, newDoc, m) {
		r.log("[%s] No new translations and header timestamp unchanged, skipping upload", rep.RunID[:8])
		return nil
	}
	if err := r.Store.Write(ctx, dst, out, format.ContentType()); err != nil {
		return err
	}
	rep.Uploaded = true
	r.log("[%s] Uploaded %d bytes to %s", rep.RunID[:8], len(out), dst)
	return nil
}

func (r *Runner) fetch(ctx context.Context, loc storage.Location, format feed.Format) (*feed.Document, error) {
	data, err := r.Store.Read(ctx, loc)
	if err != nil {
		return nil, err
	}
	doc, err := feed.Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w: %w", loc, ErrInvalidSource, err)
	}
	return doc, nil
}

// fetchPrevious returns the published feed, or nil on a first run. A
// published feed that cannot be parsed is also treated as a first run.
func (r *Runner) fetchPrevious(ctx context.Context, loc storage.Location, format feed.Format) (*feed.Document, error) {
	data, err := r.Store.Read(ctx, loc)
	if errors.Is(err, storage.ErrNotFound) {
		r.log("Destination feed not found, starting fresh: %s", loc)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading previous feed: %w", err)
	}
	doc, err := feed.Parse(data, format)
	if err != nil {
		r.log("Previous feed at %s is unreadable, starting fresh: %v", loc, err)
		return nil, nil
	}
	return doc, nil
}

// Local translates source without a previous feed and returns it as JSON.
func (r *Runner) Local(ctx context.Context, source string) ([]byte, translate.Metrics, error) {
	loc, err := storage.ParseLocation(source)
	if err != nil {
		return nil, translate.Metrics{}, &config.ConfigError{Key: "source_url", Reason: err.Error()}
	}
	doc, err := r.fetch(ctx, loc, feed.FormatFromLocation(source))
	if err != nil {
		return nil, translate.Metrics{}, err
	}
	translator, err := r.NewTranslator(source)
	if err != nil {
		return nil, translate.Metrics{}, err
	}
	m, err := translate.Sync(ctx, doc, nil, translate.Options{
		Translator: translator,
		Languages:  r.Languages,
		Policy:     r.Policy,
		OnLog:      r.OnLog,
	})
	if err != nil {
		return nil, m, err
	}
	out, err := feed.Serialize(doc, feed.FormatJSON)
	return out, m, err
}
