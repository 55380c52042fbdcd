// Package integration provides end-to-end tests for the activity sync server.
// They run the complete server against a PostgreSQL container and a fake
// GitHub API, and drive it through the /sync endpoints.
package integration
