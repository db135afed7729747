// Package evidence records execution evidence for test harnesses and CI.
package evidence

// Version is the release version reported by the CLI and the MCP server.
const Version = "v0.3.0"
