// Package alerts evaluates threshold rules against sensor records as they are
// merged and delivers webhook notifications to Teams, Slack, or generic HTTP
// targets when a rule fires or resolves.
package alerts
