package config

// SentryConfig defines settings for Sentry error monitoring. GameID tags
// every report with the game it came from.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Release          string  `json:"release"`
	GameID           string  `json:"game_id"`
}
