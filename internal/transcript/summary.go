package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/siwon333/CarePill/internal/api"
)

// SummaryError wraps failures talking to the summarization endpoint.
type SummaryError struct {
	Err error
}

func (e *SummaryError) Error() string { return "transcript: summarize failed: " + e.Err.Error() }
func (e *SummaryError) Unwrap() error { return e.Err }

type summarizeRequest struct {
	Lines []string          `json:"lines"`
	Save  bool              `json:"save"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Result is the backend's summary response. DownloadURL and Path are
// only set when the summary was saved.
type Result struct {
	SummaryText string `json:"summary_text"`
	Saved       bool   `json:"saved"`
	DownloadURL string `json:"download_url"`
	Path        string `json:"path"`
}

// Summarizer sends collected conversations to the backend for
// summarization and optional persistence.
type Summarizer struct {
	api *api.Client
	log *slog.Logger
	now func() time.Time
}

func NewSummarizer(c *api.Client, log *slog.Logger) *Summarizer {
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{api: c, log: log, now: time.Now}
}

// Summarize posts lines and returns the summary without persisting it.
func (s *Summarizer) Summarize(ctx context.Context, lines []string) (Result, error) {
	return s.request(ctx, lines, false, nil)
}

// Save summarizes and persists the conversation under title.
func (s *Summarizer) Save(ctx context.Context, lines []string, title string) (Result, error) {
	if title == "" {
		title = "CarePill 대화 " + s.now().Format("2006-01-02 15:04")
	}
	return s.request(ctx, lines, true, map[string]string{
		"title":     title,
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Summarizer) request(ctx context.Context, lines []string, save bool, meta map[string]string) (Result, error) {
	if len(lines) == 0 {
		return Result{}, &SummaryError{Err: fmt.Errorf("no lines to summarize")}
	}
	body, err := json.Marshal(summarizeRequest{Lines: lines, Save: save, Meta: meta})
	if err != nil {
		return Result{}, &SummaryError{Err: err}
	}
	data, _, err := s.api.PostRaw(ctx, "/api/conversation/summarize_and_save/?debug=1", "application/json", bytes.NewReader(body))
	if err != nil {
		return Result{}, &SummaryError{Err: err}
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, &SummaryError{Err: fmt.Errorf("bad response: %w", err)}
	}
	if res.SummaryText == "" {
		return Result{}, &SummaryError{Err: fmt.Errorf("empty summary_text in response")}
	}
	s.log.Info("conversation summarized", "lines", len(lines), "saved", res.Saved)
	return res, nil
}
