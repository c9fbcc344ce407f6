// Package notification pushes new sightings to chat and notification
// services through shoutrrr.
package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability/metrics"
	"github.com/tphakala/fieldlog/internal/observation"
)

// ErrNoURLs is returned by NewPush when no service URL is configured.
var ErrNoURLs = errors.NewStd("at least one push URL is required")

// sender is the part of shoutrrr's router that Push uses.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Push sends a short message for every map-visible entry. It implements
// committer.Notifier.
type Push struct {
	sender  sender
	log     logger.Logger
	metrics metrics.Recorder
}

// NewPush builds one shoutrrr router for all urls. Invalid URLs are reported
// here, not on first send.
func NewPush(urls []string, timeout time.Duration, l logger.Logger, rec metrics.Recorder) (*Push, error) {
	urls = slices.DeleteFunc(slices.Clone(urls), func(u string) bool { return strings.TrimSpace(u) == "" })
	if len(urls) == 0 {
		return nil, errors.New(ErrNoURLs).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// Service URLs carry tokens.
		return nil, errors.New(errors.NewStd(errors.ScrubMessage(err.Error()))).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("operation", "create_sender").
			Context("services", len(urls)).
			Build()
	}
	if timeout > 0 {
		router.Timeout = timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))

	return newPush(router, l, rec), nil
}

func newPush(s sender, l logger.Logger, rec metrics.Recorder) *Push {
	if l == nil {
		l = logger.Global().Module("notification")
	}
	return &Push{sender: s, log: l, metrics: metrics.OrNop(rec)}
}

// NotifyEntry sends entry to every configured service. The router applies
// its own timeout; ctx is only checked before sending.
func (p *Push) NotifyEntry(ctx context.Context, entry observation.LogEntry) error {
	if entry.Status != observation.StatusMapVisible {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	title, body := Message(entry)
	params := stypes.Params{}
	params.SetTitle(title)

	for _, err := range p.sender.Send(body, &params) {
		if err == nil {
			continue
		}
		p.metrics.RecordOperation(metrics.OpPush, metrics.StatusError)
		p.metrics.RecordError(metrics.OpPush, metrics.ErrorTypePush)
		return errors.New(errors.NewStd(errors.ScrubMessage(err.Error()))).
			Component("notification").
			Category(errors.CategoryNetwork).
			Context("operation", "push_entry").
			Context("entry_id", entry.ID).
			Priority(errors.PriorityLow).
			Build()
	}

	p.log.Debug("sighting pushed", logger.String("entry_id", entry.ID))
	p.metrics.RecordOperation(metrics.OpPush, metrics.StatusSuccess)
	p.metrics.RecordDuration(metrics.OpPush, time.Since(start).Seconds())
	return nil
}

// Message renders the title and body pushed for entry. The user id is left
// out.
func Message(entry observation.LogEntry) (title, body string) {
	title = "New sighting: " + entry.CommonName

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s), %s", entry.CommonName, entry.ScientificName, strings.ToLower(string(entry.Category)))
	fmt.Fprintf(&b, "\nat %.5f, %.5f on %s", entry.Location.Latitude, entry.Location.Longitude,
		entry.Timestamp.UTC().Format(time.RFC3339))
	if notes := strings.TrimSpace(entry.FieldNotes); notes != "" {
		b.WriteString("\n")
		b.WriteString(notes)
	}
	return title, b.String()
}
