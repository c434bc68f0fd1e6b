package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/michaelbrown/runbox/internal/language"
)

// DefaultPistonURL is the public Piston execute endpoint.
const DefaultPistonURL = "https://emkc.org/api/v2/piston/execute"

// Piston ships source to the stateless remote execution API and relays
// the captured output once the call returns. There is no interactivity:
// input events during a remote run are discarded by the session layer,
// and a transient network failure surfaces directly to the user rather
// than being retried.
type Piston struct {
	URL    string
	Client *http.Client
}

// NewPiston returns a client for the given endpoint, defaulting to the
// public instance.
func NewPiston(url string) *Piston {
	if url == "" {
		url = DefaultPistonURL
	}
	return &Piston{
		URL:    url,
		Client: &http.Client{Timeout: 60 * time.Second},
	}
}

type pistonFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
}

type pistonResponse struct {
	Run struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
		Code   int    `json:"code"`
		Signal string `json:"signal"`
	} `json:"run"`
	Message string `json:"message"`
}

// Run executes code remotely and emits the single-shot result. Exactly
// one execution_complete is emitted on every path.
func (p *Piston) Run(ctx context.Context, desc *language.Descriptor, code, fileName string, emit Emitter) {
	if desc.Piston == nil {
		output(emit, fmt.Sprintf("Error: remote execution does not support: %s\n", desc.Name))
		complete(emit, nil)
		return
	}
	if fileName == "" {
		fileName = desc.File
	}

	res, err := p.execute(ctx, desc.Piston, code, fileName)
	if err != nil {
		output(emit, fmt.Sprintf("Error: remote execution failed: %v\n", err))
		complete(emit, nil)
		return
	}

	if res.Run.Stdout != "" {
		output(emit, res.Run.Stdout)
	}
	if res.Run.Stderr != "" {
		output(emit, res.Run.Stderr)
	}
	if res.Run.Stdout == "" && res.Run.Stderr == "" && res.Run.Signal != "" {
		output(emit, fmt.Sprintf("Process terminated with signal: %s\n", res.Run.Signal))
	}

	exitCode := res.Run.Code
	complete(emit, &exitCode)
}

func (p *Piston) execute(ctx context.Context, target *language.PistonTarget, code, fileName string) (*pistonResponse, error) {
	body, err := json.Marshal(pistonRequest{
		Language: target.Language,
		Version:  target.Version,
		Files:    []pistonFile{{Name: fileName, Content: code}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var out pistonResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if out.Message != "" {
			return nil, fmt.Errorf("api error (%d): %s", resp.StatusCode, out.Message)
		}
		return nil, fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	return &out, nil
}
