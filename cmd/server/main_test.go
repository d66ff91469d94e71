package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pollhive/pollhive/internal/app"
	"github.com/pollhive/pollhive/internal/events"
	"github.com/pollhive/pollhive/pkg/mail"
)

func TestLoadApplicationConfig(t *testing.T) {
	// Missing path is an error
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	// Directory with a config file is honoured
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9100\n"), 0o600))

	cfg, err := loadApplicationConfig(dir)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)

	// Pointing at the file itself resolves to its directory
	cfg, err = loadApplicationConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
}

func TestBuildMailerFallsBackToLog(t *testing.T) {
	cfg := &app.Config{}
	mailer := buildMailer(cfg, zap.NewNop())
	require.NotNil(t, mailer)

	// Enabled but missing host falls back to the log mailer
	cfg.Email.SMTP.Enabled = true
	mailer = buildMailer(cfg, zap.NewNop())
	require.NotNil(t, mailer)
	require.IsType(t, mail.NewLogMailer(), mailer)
}

func TestBuildVotePublisher(t *testing.T) {
	cfg := &app.Config{}
	publisher, err := buildVotePublisher(cfg, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, events.NoopPublisher{}, publisher)

	cfg.Events.Kafka.Enabled = true
	cfg.Events.Kafka.Brokers = []string{"127.0.0.1:9092"}
	cfg.Events.Kafka.Topic = "votes"
	publisher, err = buildVotePublisher(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, publisher.Close())

	// Missing topic is rejected
	cfg.Events.Kafka.Topic = ""
	_, err = buildVotePublisher(cfg, zap.NewNop())
	require.Error(t, err)
}
