package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const pipelineFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Pipeline Feed</title>
    <item>
      <title>Kubernetes breaking change lands</title>
      <link>https://example.com/k8s</link>
      <guid>k8s-1</guid>
      <pubDate>Mon, 02 Jun 2025 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Garden show roundup</title>
      <link>https://example.com/garden</link>
      <guid>garden-1</guid>
      <pubDate>Sun, 01 Jun 2025 10:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func TestPipelineFetchHealth(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, pipelineFeed)
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	tmpDir := t.TempDir()
	writePipelineConfig(t, tmpDir, good.URL, bad.URL)

	oldConfigDir := configDir
	oldFetchQuery := fetchQuery
	oldFetchLimit := fetchLimit
	oldFetchJSON := fetchJSON
	oldHealthJSON := healthJSON
	oldHealthProbe := healthProbe
	t.Cleanup(func() {
		configDir = oldConfigDir
		fetchQuery = oldFetchQuery
		fetchLimit = oldFetchLimit
		fetchJSON = oldFetchJSON
		healthJSON = oldHealthJSON
		healthProbe = oldHealthProbe
	})

	configDir = tmpDir
	fetchQuery = ""
	fetchLimit = 0
	fetchJSON = false

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	fetchOutput, err := captureStdout(t, func() error {
		return fetchAction(cmd, nil)
	})
	if err != nil {
		t.Fatalf("fetch action: %v", err)
	}
	requireContains(t, fetchOutput, "Kubernetes breaking change lands")
	requireContains(t, fetchOutput, "2 items.")

	// Filtered fetch of a single source.
	fetchQuery = "kubernetes"
	singleOutput, err := captureStdout(t, func() error {
		return fetchAction(cmd, []string{"good"})
	})
	if err != nil {
		t.Fatalf("fetch single: %v", err)
	}
	requireContains(t, singleOutput, "1 items.")

	// Fetching the broken source by id surfaces the error.
	if _, err := captureStdout(t, func() error {
		return fetchAction(cmd, []string{"bad"})
	}); err == nil {
		t.Fatal("expected error fetching broken source")
	}

	// Health report in JSON, probing both sources once more.
	healthJSON = true
	healthProbe = true
	healthOutput, err := captureStdout(t, func() error {
		return healthAction(cmd, nil)
	})
	if err != nil {
		t.Fatalf("health action: %v", err)
	}

	var report struct {
		Summary struct {
			TotalSources   int    `json:"total_sources"`
			HealthySources int    `json:"healthy_sources"`
			OverallStatus  string `json:"overall_status"`
		} `json:"summary"`
		Sources []struct {
			SourceID     string `json:"source_id"`
			Status       string `json:"status"`
			CircuitState string `json:"circuit_state"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(healthOutput), &report); err != nil {
		t.Fatalf("parse health json: %v\noutput:\n%s", err, healthOutput)
	}

	if report.Summary.TotalSources != 2 || report.Summary.HealthySources != 1 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}
	if report.Summary.OverallStatus != "degraded" {
		t.Errorf("overall = %q, want degraded with one broken source", report.Summary.OverallStatus)
	}
	for _, src := range report.Sources {
		switch src.SourceID {
		case "good":
			if src.Status != "healthy" {
				t.Errorf("good status = %q, want healthy", src.Status)
			}
		case "bad":
			if src.Status == "healthy" {
				t.Errorf("bad status = %q, want degraded or unhealthy", src.Status)
			}
		}
	}
}

func TestFetchUnknownSource(t *testing.T) {
	tmpDir := t.TempDir()
	writePipelineConfig(t, tmpDir, "https://example.com/a", "https://example.com/b")

	oldConfigDir := configDir
	t.Cleanup(func() { configDir = oldConfigDir })
	configDir = tmpDir

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	_, err := captureStdout(t, func() error {
		return fetchAction(cmd, []string{"nope"})
	})
	if err == nil {
		t.Fatal("expected error for unknown source id")
	}
	if !strings.Contains(err.Error(), `unknown source "nope"`) {
		t.Errorf("error = %v", err)
	}
}

func TestInitCreatesConfig(t *testing.T) {
	tmpDir := t.TempDir()

	oldConfigDir := configDir
	t.Cleanup(func() { configDir = oldConfigDir })
	configDir = filepath.Join(tmpDir, "conf")

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	out, err := captureStdout(t, func() error {
		return initAction(cmd, nil)
	})
	if err != nil {
		t.Fatalf("init action: %v", err)
	}
	requireContains(t, out, "created:")

	if _, err := os.Stat(filepath.Join(configDir, "config.yaml")); err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}

	// Second run leaves the existing file alone.
	out, err = captureStdout(t, func() error {
		return initAction(cmd, nil)
	})
	if err != nil {
		t.Fatalf("init rerun: %v", err)
	}
	requireContains(t, out, "already initialized")
}

func writePipelineConfig(t *testing.T, dir, goodURL, badURL string) {
	t.Helper()

	content := "sources:\n" +
		"  - id: good\n" +
		"    name: Good Feed\n" +
		"    url: \"" + goodURL + "\"\n" +
		"    type: rss\n" +
		"  - id: bad\n" +
		"    name: Bad Feed\n" +
		"    url: \"" + badURL + "\"\n" +
		// Threshold 1 so a single failed probe opens the circuit.
		"breaker:\n" +
		"  failure_threshold: 1\n" +
		"  recovery_timeout: 60s\n" +
		"fetch:\n" +
		"  timeout: 5s\n" +
		"  max_concurrent: 2\n"

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}
