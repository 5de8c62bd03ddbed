package gemini

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"gemsync/internal/metrics"
	"gemsync/pkg/core"
)

var pageLimits = map[string]int{
	endpointTrades:    tradesPageLimit,
	endpointTransfers: transfersPageLimit,
}

// Paginator collects every record of a history endpoint within a time window.
// The venue serves pages newest first starting at a millisecond cursor, so the
// paginator walks the cursor forward until a short page or a page past the
// window end.
type Paginator struct {
	transport *Transport
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

// NewPaginator creates a Paginator on top of transport.
func NewPaginator(transport *Transport, m *metrics.Collector, logger zerolog.Logger) *Paginator {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Paginator{transport: transport, metrics: m, logger: logger}
}

// Paginate returns the records of endpoint between start and end, oldest first.
// extra is merged into every page request; the cursor and page size keys are
// owned by the paginator.
func (p *Paginator) Paginate(ctx context.Context, endpoint string, start, end time.Time, extra core.Params) ([]RawRecord, error) {
	limit, ok := pageLimits[endpoint]
	if !ok {
		return nil, fmt.Errorf("endpoint %s is not paginated", endpoint)
	}

	cursor := start.UnixMilli()
	endSec := end.Unix()
	var records []RawRecord

	for {
		payload := make(core.Params, len(extra)+2)
		maps.Copy(payload, extra)
		payload[cursorKey] = cursor
		payload[pageLimitKey] = limit

		page, err := p.fetchPage(ctx, endpoint, payload)
		if err != nil {
			return nil, err
		}
		// Pages arrive newest first.
		newest, found := newestTimestamp(page)
		slices.Reverse(page)
		records = append(records, page...)

		loggerFrom(ctx, p.logger).Debug().
			Str("endpoint", endpoint).
			Int64("cursor", cursor).
			Int("records", len(page)).
			Msg("fetched page")

		if len(page) < limit || !found {
			break
		}
		if newest/1000 > endSec {
			break
		}
		// A venue that ignores the cursor would otherwise loop forever.
		if newest+1 <= cursor {
			loggerFrom(ctx, p.logger).Warn().
				Str("endpoint", endpoint).
				Int64("cursor", cursor).
				Int64("newest", newest).
				Msg("cursor did not advance, stopping pagination")
			break
		}
		cursor = newest + 1
	}

	return trimWindow(records, start.UnixMilli(), endSec*1000), nil
}

func (p *Paginator) fetchPage(ctx context.Context, endpoint string, payload core.Params) ([]RawRecord, error) {
	req := newEndpointRequest(endpoint, payload)
	resp, err := p.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(req, resp); err != nil {
		return nil, err
	}
	items, err := decodeList(resp)
	if err != nil {
		return nil, err
	}
	p.metrics.ObservePage(endpoint)
	return newRawRecords(items), nil
}

// newestTimestamp returns the timestamp of the first readable record of a
// newest-first page.
func newestTimestamp(page []RawRecord) (int64, bool) {
	for _, rec := range page {
		if rec.HasTimestamp {
			return rec.TimestampMS, true
		}
	}
	return 0, false
}

// trimWindow drops records older than startMS and cuts the oldest-first
// sequence at the first record newer than endMS. Records without a timestamp
// are kept for the normalizer to reject.
func trimWindow(records []RawRecord, startMS, endMS int64) []RawRecord {
	out := make([]RawRecord, 0, len(records))
	for _, rec := range records {
		if !rec.HasTimestamp {
			out = append(out, rec)
			continue
		}
		if rec.TimestampMS > endMS {
			break
		}
		if rec.TimestampMS < startMS {
			continue
		}
		out = append(out, rec)
	}
	return out
}
