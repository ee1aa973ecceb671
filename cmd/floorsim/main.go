// Command floorsim simulates a factory-floor sensor posting failure events
// to the Factory Event Intake endpoint, so the Orchestrator's recovery-
// action path can be exercised without real shop-floor hardware. Adapted
// from fluxforge/agent/main.go's registration/backoff/heartbeat shape: the
// periodic heartbeat loop becomes a periodic "maybe post a failure" loop.
package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg := LoadConfig()
	log.Printf("floorsim starting. Sensor ID: %s, intake: %s", cfg.SensorID, cfg.IntakeURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("floorsim: received shutdown signal")
		cancel()
	}()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if shouldFireFailure(cfg.FailureOdd) {
				postFailureWithBackoff(ctx, cfg)
			}
		case <-ctx.Done():
			log.Println("floorsim: shutting down")
			return
		}
	}
}

// shouldFireFailure draws a pseudo-random trigger using crypto/rand (no
// math/rand seeding concerns to get right in a long-lived process).
func shouldFireFailure(odds float64) bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return false
	}
	return float64(b[0])/255.0 < odds
}

// postFailureWithBackoff retries a single failure POST with exponential
// backoff, mirroring the agent's registration-retry loop.
func postFailureWithBackoff(ctx context.Context, cfg *Config) {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second
	maxAttempts := 5

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := postFailureEvent(ctx, cfg); err == nil {
			log.Printf("floorsim: failure event delivered (attempt %d)", attempt)
			return
		} else {
			log.Printf("floorsim: failure event delivery failed (attempt %d): %v", attempt, err)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func postFailureEvent(ctx context.Context, cfg *Config) error {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	if err := w.WriteField("description", fmt.Sprintf("simulated failure reported by %s", cfg.SensorID)); err != nil {
		return err
	}
	part, err := w.CreateFormFile("image", "failure.png")
	if err != nil {
		return err
	}
	if err := png.Encode(part, syntheticFailureFrame()); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.IntakeURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("intake returned status %d", resp.StatusCode)
	}
	return nil
}

// syntheticFailureFrame produces a minimal solid-color image standing in
// for a real camera capture.
func syntheticFailureFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	red := color.RGBA{R: 200, G: 40, B: 40, A: 255}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, red)
		}
	}
	return img
}
