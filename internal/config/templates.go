package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	templatePluginID   = "com.example.plugin"
	templateConnectURL = "ws://127.0.0.1:59371/plugins/ws"
)

// Template renders the defaults as a TOML document with placeholder identity.
func Template() (string, error) {
	def := Default()
	s := def.Session
	doc := fileConfig{
		PluginID:          templatePluginID,
		ConnectURL:        templateConnectURL,
		Codec:             def.Codec,
		LogLevel:          def.LogLevel,
		ConnectTimeout:    s.ConnectTimeout.String(),
		HandshakeTimeout:  s.HandshakeTimeout.String(),
		WriteTimeout:      s.WriteTimeout.String(),
		CallTimeout:       s.CallTimeout.String(),
		HeartbeatInterval: s.HeartbeatInterval.String(),
		SessionDeadAfter:  s.SessionDeadAfter.String(),
		OutboundQueue:     s.OutboundQueue,
		SecurityMode:      string(s.SecurityMode),
		Backoff: backoffFile{
			InitialDelay: s.Backoff.InitialDelay.String(),
			Multiplier:   s.Backoff.Multiplier,
			MaxDelay:     s.Backoff.MaxDelay.String(),
			Jitter:       s.Backoff.Jitter,
		},
	}
	out, err := toml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("config render failed: %w", err)
	}
	return string(out), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
