package youtube

// VideoMetadata is the payload registered with the provider when a session
// is negotiated. Field names follow the Data API v3 videos.insert shape.
type VideoMetadata struct {
	Title         string
	Description   string
	Tags          []string
	CategoryID    int
	PrivacyStatus string
}

// snippet/status wire types for the negotiation request body.
type videoInsertRequest struct {
	Snippet videoSnippet `json:"snippet"`
	Status  videoStatus  `json:"status"`
}

type videoSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  int      `json:"categoryId"`
}

type videoStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
}

// UploadSession is an immutable descriptor of one negotiated resumable
// upload: the opaque server-issued session URI plus the byte length and
// content type declared at negotiation time. TotalSize is fixed for the
// session's lifetime and must match the negotiated value exactly. The
// transfer cursor (resume offset) is NOT part of the descriptor — it is
// threaded explicitly through the upload loop.
type UploadSession struct {
	URI         string
	TotalSize   int64
	ContentType string
}
