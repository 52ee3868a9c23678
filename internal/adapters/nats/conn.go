package natsadapter

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	StreamSessions = "SURVEY_SESSIONS"
	StreamPoints   = "SURVEY_POINTS"

	subjectSessions = "survey.session.>"
	subjectPoints   = "survey.points.>"
)

// Connect opens a NATS connection that keeps reconnecting.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}

// ensureStreams creates the survey streams or updates their configuration.
func ensureStreams(js nats.JetStreamContext) error {
	streams := []nats.StreamConfig{
		{
			Name:      StreamSessions,
			Subjects:  []string{subjectSessions},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      StreamPoints,
			Subjects:  []string{subjectPoints},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			if _, err := js.UpdateStream(&cfg); err != nil {
				return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}
	return nil
}
