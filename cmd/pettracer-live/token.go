package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/muurk/pettracer/internal/urls"
)

const (
	tokenEnvVar        = "PETTRACER_TOKEN"
	mqttPasswordEnvVar = "PETTRACER_MQTT_PASSWORD"
)

// resolveToken picks the access token from the flag, the environment, or
// an interactive prompt, in that order.
func resolveToken(flagValue string) (string, error) {
	if token := strings.TrimSpace(flagValue); token != "" {
		return token, nil
	}
	if token := strings.TrimSpace(os.Getenv(tokenEnvVar)); token != "" {
		return token, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no access token: use --token or set %s (sign in at %s)", tokenEnvVar, urls.PortalDashboard)
	}

	fmt.Fprint(os.Stderr, "PetTracer access token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("empty access token")
	}
	return token, nil
}
