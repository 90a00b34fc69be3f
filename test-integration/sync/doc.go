// Package integration provides integration tests for the CRM sync server.
// These tests run the complete server against a mock REST CRM and exercise
// change detection, webhook intake, the admin API and configuration reload.
package integration
