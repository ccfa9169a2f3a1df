package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// daemonClient talks to the HTTP API of a running `autopilot serve`. Trigger,
// pause and resume must go through the daemon because only it holds the
// armed timers.
type daemonClient struct {
	baseURL string
	http    *http.Client
}

func newDaemonClient(host string, port int) *daemonClient {
	return &daemonClient{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *daemonClient) post(path string) error {
	resp, err := c.http.Post(c.baseURL+path, "application/json", nil)
	if err != nil {
		return fmt.Errorf("reaching daemon at %s (is `autopilot serve` running?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("%s", body.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	return nil
}

func (c *daemonClient) RunNow(id string) bool {
	return c.post("/api/automations/"+id+"/trigger") == nil
}

func (c *daemonClient) PauseAutomation(id string) error {
	return c.post("/api/automations/" + id + "/pause")
}

func (c *daemonClient) ResumeAutomation(id string) error {
	return c.post("/api/automations/" + id + "/resume")
}
