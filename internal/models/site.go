// Package models defines the persistent entities of the backup service.
package models

import "time"

// Site is a physical or logical network location. Each site owns one Gitea
// repository into which its device configurations are committed.
type Site struct {
	ID            int64     `json:"id" db:"id"`
	Code          string    `json:"code" db:"code"`
	Name          string    `json:"name" db:"name"`
	GiteaRepoName string    `json:"gitea_repo_name" db:"gitea_repo_name"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
