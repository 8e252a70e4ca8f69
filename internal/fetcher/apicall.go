package fetcher

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"postfetcher/internal/models"
)

// fetchSite issues the one bulk API call for a drained batch and hands the
// response to result processing. A transport failure of any kind puts the
// whole batch back in the queue and returns quietly; the next qualifying
// dispatch retries it.
func (f *Fetcher) fetchSite(site string, items map[string]time.Time) {
	owner := uuid.New().String()

	newIDs := make([]int, 0, len(items))
	for key := range items {
		id, err := strconv.Atoi(key)
		if err != nil {
			logError("dropping non-numeric queued id %q for %s", key, site)
			continue
		}
		newIDs = append(newIDs, id)
	}
	if len(newIDs) == 0 {
		return
	}

	if f.watcher != nil {
		f.tasks.Do("edit-watch subscribe", func() error {
			return f.watcher.Subscribe(site, newIDs)
		})
	}

	if f.stats != nil {
		popTime := f.now()
		ages := make([]time.Duration, 0, len(items))
		for _, at := range items {
			ages = append(ages, popTime.Sub(at))
		}
		f.tasks.Do("queue timing stats", func() error {
			f.stats.AddQueueTimings(site, ages)
			return nil
		})
	}

	reqURL := f.buildRequest(site, newIDs)

	// Give the API time to catch up with the realtime event.
	f.sleep(f.preCallDelay)

	resp, respTime, requestedAt, ok := f.doAPICall(site, reqURL)
	if !ok {
		f.queue.Merge(site, items)
		return
	}

	diag := f.applyResponseMeta(resp, requestedAt, reqURL)
	if diag != "" && !strings.Contains(diag, "site is required") {
		diag = strings.TrimSpace(diag)
		if len(diag) > 500 {
			diag = "\n" + diag
		}
		f.broadcast("debug", diag)
	}

	if !resp.HasItems() {
		return
	}

	if site == f.firehoseSite && len(resp.Items) > 0 {
		f.watermark.advance(resp.Items[0].LastActivityDate)
	}

	f.processResponse(owner, site, resp, respTime)
}

// buildRequest expands the queued ids (or the firehose watermark) into the
// one request URL this dispatch will make.
func (f *Fetcher) buildRequest(site string, newIDs []int) string {
	params := url.Values{}
	params.Set("filter", f.apiFilter)
	params.Set("site", site)
	if f.apiKey != "" {
		params.Set("key", f.apiKey)
	}

	path := "/questions"
	if site == f.firehoseSite {
		// The firehose site's feed is too lossy for id arithmetic; ask for
		// everything modified since just before our watermark instead.
		pagesize, minActivity := f.watermark.window()
		params.Set("pagesize", strconv.Itoa(pagesize))
		if minActivity > 0 {
			params.Set("min", strconv.FormatInt(minActivity, 10))
		}
	} else {
		ids, storeNeeded := f.maxIDs.expand(site, newIDs)
		if storeNeeded {
			f.scheduleMaxIDSnapshot()
		}
		logExpansion(site, newIDs, ids)

		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.Itoa(id)
		}
		path += "/" + strings.Join(parts, ";")
	}

	return f.apiBase + path + "?" + params.Encode()
}

// doAPICall performs the single admitted outbound request. The admission
// lock spans the request and the shared quota/backoff bookkeeping, so at
// most one batch call is in flight system-wide and backoff decisions are
// made against a consistent view.
func (f *Fetcher) doAPICall(site, reqURL string) (resp *models.APIResponse, respTime, requestedAt time.Time, ok bool) {
	f.apiMu.Lock()
	defer f.apiMu.Unlock()

	if wait := f.quota.backoffRemaining(f.now()); wait > 0 {
		f.sleep(wait + backoffGrace)
	}

	requestedAt = f.now()
	httpResp, err := f.client.Get(reqURL)
	if err != nil {
		logError("API call for %s failed: %v", site, err)
		return nil, time.Time{}, requestedAt, false
	}
	defer httpResp.Body.Close()

	resp = &models.APIResponse{}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		logError("API response for %s unreadable: %v", site, err)
		return nil, time.Time{}, requestedAt, false
	}
	respTime = f.now()

	f.quota.recordCall(site)
	return resp, respTime, requestedAt, true
}

// applyResponseMeta folds the response's quota, error and backoff fields
// into shared state and returns any diagnostic text to broadcast once.
func (f *Fetcher) applyResponseMeta(resp *models.APIResponse, requestedAt time.Time, reqURL string) string {
	var diag string

	if resp.QuotaRemaining != nil {
		for _, notice := range f.quota.updateQuota(*resp.QuotaRemaining) {
			f.broadcast("debug", notice)
		}
	} else {
		diag = "The quota_remaining property was not in the API response."
	}

	if resp.ErrorMessage != "" {
		diag += fmt.Sprintf(" Error: %s at %s UTC.", resp.ErrorMessage, requestedAt.UTC().Format("15:04:05"))
		if resp.ErrorID == throttleErrorID {
			f.quota.extendBackoff(f.now().Add(throttleWindow))
			diag += fmt.Sprintf(" Backing off on requests for the next %d seconds.", int(throttleWindow.Seconds()))
		}
		diag += fmt.Sprintf(" Previous URL: `%s`", reqURL)
	}

	if resp.Backoff > 0 {
		f.quota.extendBackoff(f.now().Add(time.Duration(resp.Backoff) * time.Second))
	}

	return diag
}

func logExpansion(site string, newIDs, ids []int) {
	logDebug("new ids / hybrid intermediate ids for %s:", site)
	logDebug("%s", summarizeIDs(newIDs))
	if len(newIDs) == len(ids) {
		logDebug("[ *identical* ]")
	} else {
		logDebug("%s", summarizeIDs(ids))
	}
}

func summarizeIDs(ids []int) string {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	if len(sorted) > 30 {
		return fmt.Sprintf("%v +%d more", sorted[:30], len(sorted)-30)
	}
	return fmt.Sprintf("%v", sorted)
}
