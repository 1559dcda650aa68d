package config

import "flag"

type Config struct {
	EventName *string

	Secret       *string
	SecretEnvVar *string

	MaxSeats         *int
	MaxWildcardSeats *int

	AuthTimeoutSeconds     *int
	DisconnectDelaySeconds *int

	PingIntervalSeconds  *int
	StatsIntervalSeconds *int

	WebhookURL *string

	DefaultStartTime       *string
	DefaultDurationSeconds *float64
	DefaultSeats           *int
}

var CFG = &Config{
	EventName:              flag.String("event-name", "", "Unique name/ID of the event. Presented tickets must match it."),
	Secret:                 flag.String("secret", "", "Ticket signing secret. Prefer -secret-env-var so the value stays out of process listings."),
	SecretEnvVar:           flag.String("secret-env-var", "TICKET_SECRET", "Name of the environment variable holding the signing secret."),
	MaxSeats:               flag.Int("max-seats", 100, "Soft cap on concurrently live seats (numbered + wildcard). Enforced for wildcard admissions only."),
	MaxWildcardSeats:       flag.Int("max-wildcard-seats", 10, "Cap on concurrently live wildcard seats."),
	AuthTimeoutSeconds:     flag.Int("auth-timeout-seconds", 30, "Seconds before an unauthenticated connection is disconnected. 0 disables the deadline."),
	DisconnectDelaySeconds: flag.Int("disconnect-delay-seconds", 1, "Delay between sending an error response and disconnecting, so the response gets delivered."),
	PingIntervalSeconds:    flag.Int("ping-interval-seconds", 30, "Send pings to websocket peers with this interval."),
	StatsIntervalSeconds:   flag.Int("stats-interval-seconds", 10, "Interval to publish seat occupancy stats."),
	WebhookURL:             flag.String("webhook-url", "", "Optional URL to POST admission events to. Empty disables the notifier."),
	DefaultStartTime:       flag.String("default-start-time", "", "Default performance start time (yyyyMMddTHHmmssZ) for startup ticket minting."),
	DefaultDurationSeconds: flag.Float64("default-duration-seconds", 0, "Default performance duration in seconds for startup ticket minting."),
	DefaultSeats:           flag.Int("default-seats", 0, "Number of default tickets to mint and log at startup. 0 disables."),
}

func ProvideConfig() *Config {
	return CFG
}
