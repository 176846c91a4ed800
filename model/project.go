package model

import "time"

// Project is a persisted record of one successfully completed and saved
// job. Never mutated after creation.
type Project struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	SourceAssetName string    `json:"sourceAssetName"`
	CreatedAt       time.Time `json:"createdAt"`
	Tracks          []Track   `json:"tracks"`
}
