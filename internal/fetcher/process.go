package fetcher

import (
	"time"

	"postfetcher/internal/models"
)

// processResponse walks every question in a bulk response, and each
// question's answers right after it. One bad item never takes down the
// batch: parse failures skip the item, collaborator failures are logged
// and swallowed, and answer trouble is contained per question.
func (f *Fetcher) processResponse(owner, site string, resp *models.APIResponse, fetchedAt time.Time) {
	numScanned := 0
	start := f.now()

	for i := range resp.Items {
		item := &resp.Items[i]
		if item.Title == nil || item.Body == nil {
			// Deleted or filtered upstream; requested ids are not
			// guaranteed to come back with content.
			continue
		}

		if f.watcher != nil {
			qid := item.QuestionID
			f.tasks.Do("edit-watch subscribe", func() error {
				return f.watcher.Subscribe(site, []int{qid})
			})
		}

		post := f.processQuestion(owner, site, item, fetchedAt, &numScanned)
		if post == nil {
			continue
		}
		if err := f.processAnswers(owner, site, post, item.Answers, fetchedAt, &numScanned); err != nil {
			logError("processing answers of %s/%d: %v", site, item.QuestionID, err)
		}
	}

	if f.stats != nil {
		f.stats.AddScan(numScanned, f.now().Sub(start))
	}
}

// processQuestion runs the claim/compare/parse/scan cycle for one question
// and returns the parsed post for its answers, or nil when the item (and
// therefore its answers) must be skipped. The claim is released before the
// answers run; each answer takes its own claim.
func (f *Fetcher) processQuestion(owner, site string, item *models.APIItem, fetchedAt time.Time, numScanned *int) *models.Post {
	qid := item.QuestionID
	claimed := f.inProcess.claim(owner, site, qid, f.now())
	defer f.releaseClaim(owner, site, qid, qid)

	needsScan := false
	var compare models.CompareInfo
	if claimed {
		compare = f.compareSeen(&models.SeenPost{
			Site:      site,
			PostID:    qid,
			BodyText:  *item.Body,
			Edited:    item.Edited(),
			FetchedAt: fetchedAt,
		})
		needsScan = !compare.IsOlderOrUnchanged
	}

	if !needsScan && len(item.Answers) == 0 {
		return nil
	}

	post, err := models.ParseQuestion(site, item, fetchedAt)
	if err != nil {
		logError("%v", err)
		return nil
	}

	if needsScan {
		*numScanned++
		f.scanPost(post, compare)
	}
	return post
}

func (f *Fetcher) processAnswers(owner, site string, parent *models.Post, answers []models.APIAnswer, fetchedAt time.Time, numScanned *int) error {
	for i := range answers {
		ans := &answers[i]
		if ans.Body == nil {
			continue
		}
		f.processAnswer(owner, site, parent, ans, fetchedAt, numScanned)
	}
	return nil
}

func (f *Fetcher) processAnswer(owner, site string, parent *models.Post, ans *models.APIAnswer, fetchedAt time.Time, numScanned *int) {
	aid := ans.AnswerID
	claimed := f.inProcess.claim(owner, site, aid, f.now())
	// A conflicting claim on an answer re-fetches the parent question, so
	// the deferred rescan covers the whole tree.
	defer f.releaseClaim(owner, site, aid, parent.QuestionID)

	if !claimed {
		return
	}

	compare := f.compareSeen(&models.SeenPost{
		Site:      site,
		PostID:    aid,
		IsAnswer:  true,
		BodyText:  *ans.Body,
		Edited:    ans.Edited(),
		FetchedAt: fetchedAt,
	})
	if compare.IsOlderOrUnchanged {
		return
	}

	post, err := models.ParseAnswer(site, parent, ans, fetchedAt)
	if err != nil {
		logError("%v", err)
		return
	}

	*numScanned++
	f.scanPost(post, compare)
}

// compareSeen consults the seen-post store; a store failure is treated as
// "never seen", which errs toward scanning.
func (f *Fetcher) compareSeen(candidate *models.SeenPost) models.CompareInfo {
	if f.seen == nil {
		return models.CompareInfo{}
	}
	compare, err := f.seen.CompareAndUpdate(candidate)
	if err != nil {
		logError("seen-post compare for %s/%d: %v", candidate.Site, candidate.PostID, err)
		return models.CompareInfo{}
	}
	return compare
}

// scanPost classifies one post, reconciles the verdict against what a
// previous scan already reported, records the outcome, and hands spam to
// the handler. Classifier and handler failures are logged, never raised.
func (f *Fetcher) scanPost(post *models.Post, compare models.CompareInfo) {
	if f.classify == nil {
		return
	}
	result, err := f.classify.Check(post)
	if err != nil {
		logError("classifier on %s/%d: %v", post.Site, post.ID, err)
		return
	}

	result = reconcileScan(result, compare)

	if f.seen != nil {
		record := &models.SeenPost{
			Site:      post.Site,
			PostID:    post.ID,
			IsAnswer:  post.IsAnswer,
			BodyText:  post.BodyHTML,
			Edited:    post.Edited,
			IsSpam:    result.IsSpam,
			Reasons:   result.Reasons,
			Why:       result.Why,
			FetchedAt: post.FetchedAt,
		}
		if err := f.seen.Record(record, result); err != nil {
			logError("recording scan of %s/%d: %v", post.Site, post.ID, err)
		}
	}

	if result.IsSpam && f.handler != nil {
		if err := f.handler.HandleSpam(post, result); err != nil {
			logError("spam handler on %s/%d: %v", post.Site, post.ID, err)
		}
	}
}

// reconcileScan drops a spam verdict whose every reason was already
// reported by the previous scan of the same post; a rescan only fires the
// handler when it finds something new.
func reconcileScan(result models.ScanResult, compare models.CompareInfo) models.ScanResult {
	if !result.IsSpam || !compare.PreviouslySpam {
		return result
	}
	previous := make(map[string]bool, len(compare.PreviousReasons))
	for _, r := range compare.PreviousReasons {
		previous[r] = true
	}
	for _, r := range result.Reasons {
		if !previous[r] {
			return result
		}
	}
	result.IsSpam = false
	return result
}

// releaseClaim always runs on the way out of an item, whatever happened
// inside. A rescan requested by a conflicting worker re-enqueues the
// question id (for answers too: the whole tree is re-fetched).
func (f *Fetcher) releaseClaim(owner, site string, id, rescanTargetID int) {
	rescan, _ := f.inProcess.release(owner, site, id)
	if !rescan {
		return
	}
	f.tasks.Do("rescan re-request", func() error {
		logDebug("re-requesting %s/%d after claim conflict", site, rescanTargetID)
		f.Enqueue(site, rescanTargetID, false)
		return nil
	})
}
