package main

import (
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Config holds this simulated floor sensor's identity and target endpoint.
// Grounded on fluxforge/agent/config.go's persisted-identity pattern.
type Config struct {
	SensorID   string
	IntakeURL  string
	Interval   time.Duration
	FailureOdd float64 // probability per tick that a failure event fires
}

// LoadConfig reads simulator configuration from the environment, generating
// and persisting a sensor id on first run the same way the agent persists
// its node id.
func LoadConfig() *Config {
	sensorID, err := getOrCreateSensorID()
	if err != nil {
		log.Fatalf("failed to initialize sensor id: %v", err)
	}

	intakeURL := os.Getenv("FLOORSIM_INTAKE_URL")
	if intakeURL == "" {
		intakeURL = "http://localhost:8080/factory-events"
	}

	return &Config{
		SensorID:   sensorID,
		IntakeURL:  intakeURL,
		Interval:   10 * time.Second,
		FailureOdd: 0.3,
	}
}

// getOrCreateSensorID retrieves or generates a sensor id, persisted to
// ~/.lineflow/floorsim_id.
func getOrCreateSensorID() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".lineflow")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	idPath := filepath.Join(configDir, "floorsim_id")
	if data, err := os.ReadFile(idPath); err == nil && len(data) > 0 {
		return string(data), nil
	}

	id, err := generateSensorID()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(idPath, []byte(id), 0600); err != nil {
		return "", fmt.Errorf("failed to save sensor id to %s: %w", idPath, err)
	}
	return id, nil
}

func generateSensorID() (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate sensor id: %w", err)
	}
	return fmt.Sprintf("floor-sensor-%x", b), nil
}
