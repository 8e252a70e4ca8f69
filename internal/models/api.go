package models

// APIResponse is the wire shape of one bulk /questions call.
// quota_remaining, error_* and backoff may all be absent.
type APIResponse struct {
	Items          []APIItem `json:"items"`
	QuotaRemaining *int      `json:"quota_remaining,omitempty"`
	ErrorID        int       `json:"error_id,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Backoff        int       `json:"backoff,omitempty"`
}

// HasItems reports whether the response carried an items collection at all.
// An empty-but-present array still counts: processing only stops when the
// key is missing entirely.
func (r *APIResponse) HasItems() bool {
	return r.Items != nil
}

// APIItem is one question in a bulk response. Title and Body are pointers
// because the API omits them for deleted or filtered posts, and that
// absence is meaningful (the item is skipped, not errored).
type APIItem struct {
	QuestionID       int         `json:"question_id"`
	Title            *string     `json:"title,omitempty"`
	Body             *string     `json:"body,omitempty"`
	CreationDate     int64       `json:"creation_date"`
	LastEditDate     *int64      `json:"last_edit_date,omitempty"`
	LastActivityDate int64       `json:"last_activity_date,omitempty"`
	Owner            *APIUser    `json:"owner,omitempty"`
	Answers          []APIAnswer `json:"answers,omitempty"`
}

// Edited reports whether the post was edited after creation. A missing
// last_edit_date means never edited.
func (i *APIItem) Edited() bool {
	return i.LastEditDate != nil && *i.LastEditDate != i.CreationDate
}

type APIAnswer struct {
	AnswerID     int      `json:"answer_id"`
	Body         *string  `json:"body,omitempty"`
	CreationDate int64    `json:"creation_date"`
	LastEditDate *int64   `json:"last_edit_date,omitempty"`
	Owner        *APIUser `json:"owner,omitempty"`
}

func (a *APIAnswer) Edited() bool {
	return a.LastEditDate != nil && *a.LastEditDate != a.CreationDate
}

type APIUser struct {
	UserID      int    `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Link        string `json:"link,omitempty"`
}
