package models

// ConvertRequest is the body of POST /convert
type ConvertRequest struct {
	M3U8URL     string   `json:"m3u8Url"`
	CallbackURL string   `json:"callbackUrl,omitempty"`
	PublishKeys []string `json:"publishKeys,omitempty"`
}

// ConvertResponse is returned once a job has been accepted
type ConvertResponse struct {
	ConversionID string `json:"conversionId"`
	Status       string `json:"status"`
	// Playlist describes the uploaded file for /convert-file submissions
	Playlist *PlaylistSummary `json:"playlist,omitempty"`
}

// PlaylistSummary describes what the inspector found in an uploaded playlist
type PlaylistSummary struct {
	Kind      string `json:"kind"`
	Selected  string `json:"selected,omitempty"`
	Bandwidth int    `json:"bandwidth,omitempty"`
}

// ErrorResponse is the JSON body of every 4xx/5xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// CredentialsResponse is returned by POST /credentials
type CredentialsResponse struct {
	AccessKey string `json:"access_key"`
}
