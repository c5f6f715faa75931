// Command commitprobe smoke-tests a running editor gateway: it opens a draft,
// applies a metadata change, submits a commit and polls the run to a terminal
// phase. Intended for staging checks after a deploy, not for CI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error map[string]interface{} `json:"error"`
}

type probe struct {
	base   string
	token  string
	client *http.Client
}

func main() {
	var (
		base     = flag.String("base", "http://localhost:8080/api/v1", "gateway base URL")
		token    = flag.String("token", "", "bearer token for the course creator")
		courseID = flag.Int64("course", 0, "course id to probe")
		title    = flag.String("title", "", "replacement title; empty leaves metadata untouched")
		timeout  = flag.Duration("timeout", 5*time.Minute, "overall poll budget")
	)
	flag.Parse()

	if *token == "" || *courseID == 0 {
		log.Fatal("usage: commitprobe -token <jwt> -course <id> [-title <new title>]")
	}

	p := &probe{base: *base, token: *token, client: &http.Client{Timeout: 30 * time.Second}}

	var draft struct {
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := p.call(http.MethodPost, fmt.Sprintf("/courses/%d/draft", *courseID), nil, &draft); err != nil {
		log.Fatalf("open draft: %v", err)
	}
	log.Printf("draft open, course %d", *courseID)

	if *title != "" {
		draft.Metadata["title"] = *title
		if err := p.call(http.MethodPatch, fmt.Sprintf("/courses/%d/draft/metadata", *courseID), draft.Metadata, nil); err != nil {
			log.Fatalf("patch metadata: %v", err)
		}
		log.Printf("metadata patched, title=%q", *title)
	}

	var accepted struct {
		RunID string `json:"runId"`
	}
	if err := p.call(http.MethodPost, fmt.Sprintf("/courses/%d/commit", *courseID), nil, &accepted); err != nil {
		log.Fatalf("submit commit: %v", err)
	}
	log.Printf("commit queued, run %s", accepted.RunID)

	deadline := time.Now().Add(*timeout)
	for {
		var run struct {
			Phase    string `json:"phase"`
			Progress struct {
				Completed int `json:"completed"`
				Total     int `json:"total"`
			} `json:"progress"`
			Outcome *struct {
				Status string   `json:"status"`
				Errors []string `json:"errors"`
			} `json:"outcome"`
			Error string `json:"error"`
		}
		if err := p.call(http.MethodGet, "/commits/"+accepted.RunID, nil, &run); err != nil {
			log.Fatalf("poll run: %v", err)
		}
		log.Printf("phase=%s progress=%d/%d", run.Phase, run.Progress.Completed, run.Progress.Total)

		if run.Phase == "finished" {
			if run.Outcome == nil {
				log.Fatalf("run finished without outcome: %s", run.Error)
			}
			log.Printf("outcome: %s", run.Outcome.Status)
			for _, e := range run.Outcome.Errors {
				log.Printf("  error: %s", e)
			}
			if run.Outcome.Status != "committed" && run.Outcome.Status != "no_changes" {
				log.Fatal("probe failed")
			}
			return
		}
		if time.Now().After(deadline) {
			log.Fatalf("run %s did not finish within %s", accepted.RunID, *timeout)
		}
		time.Sleep(3 * time.Second)
	}
}

func (p *probe) call(method, path string, body interface{}, out interface{}) error {
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, p.base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d: %v", resp.StatusCode, env.Error)
	}
	if out != nil && env.Data != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
