// ABOUTME: Ledger field-map builders for the two success shapes and for failures
// ABOUTME: Partial updates: a field absent from the map is never written

package update

import (
	"fmt"
	"time"

	"refeed/internal/fetch"
	"refeed/internal/models"
	"refeed/internal/parse"
	"refeed/internal/schedule"
	"refeed/internal/store"
)

// successFields is the ledger write shared by both success outcomes: the
// refresh time advances, the error clears, the retry counter resets, and the
// next refresh lands on the regular cadence.
func successFields(src *models.Source, now time.Time) store.Fields {
	return store.Fields{
		"refreshed_at": now,
		"last_error":   nil,
		"retry_count":  0,
		"next_due_at":  schedule.Regular(src.ID, src.Mode, now),
	}
}

// applyMetadata adds the parsed feed metadata to a content-changed ledger
// write. Empty values are omitted rather than clobbering known metadata.
func applyMetadata(fields store.Fields, info *parse.FeedInfo) {
	if info == nil {
		return
	}
	if info.Title != "" {
		fields["title"] = info.Title
	}
	if info.Link != "" {
		fields["link"] = info.Link
	}
	if info.Language != "" {
		fields["language"] = info.Language
	}
}

// applyValidators adds the response's caching validators. A validator the
// server did not send is omitted, leaving any stored one in place.
func applyValidators(fields store.Fields, result *fetch.Result) {
	if result.ETag != "" {
		fields["etag"] = result.ETag
	}
	if result.LastModified != "" {
		fields["last_modified"] = result.LastModified
	}
}

// failureMessage normalizes an error into the ledger's human-readable cause,
// falling back to the error's type when it carries no message.
func failureMessage(err error) string {
	if err == nil || err.Error() == "" {
		return fmt.Sprintf("Unknown error (%T)", err)
	}
	return err.Error()
}
