// Package picshare provides an image sharing service with an offline-capable
// client.
//
// Features:
// - User registration and login
// - Image upload to S3-compatible object storage
// - Paginated newest-first gallery with likes and comments
// - View counts, trending ranking, follows and reports
// - Go client with a sqlite-backed local mirror used when the network fails
//
// Example usage:
//   go run main.go
//
// Configuration:
//   See config/config.json for server settings
package main
