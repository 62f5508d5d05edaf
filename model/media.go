package model

// Media represents one stored media item as returned by the media service.
// ID is service-assigned and is the only key used for retrieval.
type Media struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename,omitempty"` // stored file name on the service side
	MimeType  string    `json:"mime_type"`
	CreatedAt Timestamp `json:"created_at"`
	URL       string    `json:"url,omitempty"` // playable location, absent in list responses
	MediaName string    `json:"media_name"`
}

// Playable reports whether the record carries a URL that can be streamed.
func (m *Media) Playable() bool {
	return m != nil && m.URL != ""
}
