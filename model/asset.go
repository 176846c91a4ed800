package model

// Asset is an accepted upload, already validated and stored.
type Asset struct {
	Name        string `json:"name"`
	ObjectKey   string `json:"objectKey"` // object-storage key of the original file
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}
