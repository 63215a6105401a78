package tuning

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// TrainerClient talks to the training microservice. The train endpoint
// streams NDJSON progress lines until it reports success or error.
type TrainerClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewTrainerClient(baseURL string) *TrainerClient {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	// No timeout: training runs for a long time, ctx bounds the call.
	return &TrainerClient{BaseURL: baseURL, HTTP: &http.Client{}}
}

type trainRequest struct {
	BaseModelPath    string   `json:"base_model_path"`
	OutputPath       string   `json:"output_path"`
	TrainingDataPath []string `json:"training_data_path"`
}

type trainEvent struct {
	Status          string  `json:"status"`
	Progress        float64 `json:"progress"`
	Message         string  `json:"message"`
	TrainedModelDir string  `json:"trained_model_dir"`
}

// Train runs one training job and invokes onProgress for every progress
// line. It returns the trained model directory reported by the service.
func (t *TrainerClient) Train(
	ctx context.Context,
	projectUID, model string,
	baseModelPath, outputPath string,
	dataPaths []string,
	onProgress func(progress float64),
) (string, error) {
	body, err := json.Marshal(trainRequest{
		BaseModelPath:    baseModelPath,
		OutputPath:       outputPath,
		TrainingDataPath: dataPaths,
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/train/%s/%s",
		t.BaseURL, url.PathEscape(projectUID), url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("trainer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("trainer: status %d", resp.StatusCode)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev trainEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		switch ev.Status {
		case "progress":
			if onProgress != nil {
				onProgress(ev.Progress)
			}
		case "success":
			return ev.TrainedModelDir, nil
		case "error":
			return "", errors.New(ev.Message)
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("trainer: reading progress stream: %w", err)
	}
	return "", errors.New("trainer: stream ended without a terminal status")
}
