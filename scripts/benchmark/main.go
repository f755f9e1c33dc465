// Command benchmark measures a running stealthfetch-server against a fixed
// set of pages, once per engine, and writes a JSON report.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/use-agent/stealthfetch/models"
)

type cli struct {
	APIURL  string   `name:"api-url" default:"http://localhost:8080" help:"stealthfetch API base URL"`
	APIKey  string   `name:"api-key" env:"STEALTHFETCH_API_KEY" help:"API key for authenticated requests"`
	Runs    int      `default:"3" help:"Runs per URL and engine"`
	Engines []string `default:"rod,chromedp,chromedp-stealth" help:"Engines to compare"`
	Fast    bool     `help:"Benchmark fast mode"`
	Output  string   `default:"benchmark-results.json" help:"JSON output file path"`
}

// Pages covering plain, script-heavy and commonly protected sites.
var testURLs = []struct {
	Label string
	URL   string
}{
	{"Static", "https://example.com"},
	{"Docs", "https://go.dev/doc/effective_go"},
	{"News", "https://www.bbc.com/news"},
	{"Complex", "https://github.com/go-rod/rod"},
	{"Protected", "https://nowsecure.nl"},
}

type runResult struct {
	Run          int    `json:"run"`
	TotalMs      int64  `json:"total_ms"`
	NavigationMs int64  `json:"navigation_ms"`
	ChallengeMs  int64  `json:"challenge_ms"`
	BehaviorMs   int64  `json:"behavior_ms"`
	Challenge    string `json:"challenge"`
	HTMLBytes    int    `json:"html_bytes"`
	SoftFailures int    `json:"soft_failures"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

type averages struct {
	TotalMs      float64 `json:"total_ms"`
	NavigationMs float64 `json:"navigation_ms"`
	ChallengeMs  float64 `json:"challenge_ms"`
	HTMLBytes    float64 `json:"html_bytes"`
	SuccessRate  float64 `json:"success_rate"`
}

type caseResult struct {
	URL      string      `json:"url"`
	Label    string      `json:"label"`
	Engine   string      `json:"engine"`
	Runs     []runResult `json:"runs"`
	Averages *averages   `json:"averages,omitempty"`
}

type report struct {
	Timestamp  string       `json:"timestamp"`
	APIURL     string       `json:"api_url"`
	RunsPerURL int          `json:"runs_per_url"`
	FastMode   bool         `json:"fast_mode"`
	Results    []caseResult `json:"results"`
}

func main() {
	var c cli
	kong.Parse(&c, kong.Name("benchmark"), kong.Description("Benchmark a stealthfetch server"))

	fmt.Println("=== stealthfetch benchmark ===")
	fmt.Printf("API URL:   %s\n", c.APIURL)
	fmt.Printf("Runs:      %d per URL and engine\n", c.Runs)
	fmt.Printf("Engines:   %s\n", strings.Join(c.Engines, ", "))
	fmt.Println()

	client := &http.Client{Timeout: 5 * time.Minute}
	if err := checkAPI(client, c.APIURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", c.APIURL, err)
		os.Exit(1)
	}

	rep := report{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     c.APIURL,
		RunsPerURL: c.Runs,
		FastMode:   c.Fast,
	}

	for _, t := range testURLs {
		for _, eng := range c.Engines {
			fmt.Printf("[%s] %s via %s\n", t.Label, t.URL, eng)
			cr := caseResult{URL: t.URL, Label: t.Label, Engine: eng}
			for i := 1; i <= c.Runs; i++ {
				rr := c.fetchOnce(client, t.URL, eng, i)
				if rr.Success {
					fmt.Printf("  run %d: OK  %dms  challenge=%s  %d bytes\n", i, rr.TotalMs, rr.Challenge, rr.HTMLBytes)
				} else {
					fmt.Printf("  run %d: FAILED: %s\n", i, rr.Error)
				}
				cr.Runs = append(cr.Runs, rr)
			}
			cr.Averages = computeAverages(cr.Runs)
			rep.Results = append(rep.Results, cr)
		}
	}

	printTable(os.Stdout, rep.Results)

	if err := writeJSON(c.Output, rep); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", c.Output)
}

func checkAPI(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *cli) fetchOnce(client *http.Client, url, eng string, run int) runResult {
	rr := runResult{Run: run}

	body, err := json.Marshal(models.FetchRequest{
		URL:         url,
		FetchConfig: models.FetchConfig{Engine: models.EngineKind(eng), FastMode: c.Fast},
	})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, c.APIURL+"/api/v1/fetch", bytes.NewReader(body))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	return decodeRun(resp.Body, run)
}

func decodeRun(r io.Reader, run int) runResult {
	rr := runResult{Run: run}
	var fr models.FetchResponse
	if err := json.NewDecoder(r).Decode(&fr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	rr.Success = fr.Success
	rr.TotalMs = fr.Timing.TotalMs
	rr.NavigationMs = fr.Timing.NavigationMs
	rr.ChallengeMs = fr.Timing.ChallengeMs
	rr.BehaviorMs = fr.Timing.BehaviorMs
	rr.Challenge = fr.Challenge.String()
	rr.HTMLBytes = len(fr.HTML)
	rr.SoftFailures = len(fr.SoftFailures)
	if fr.Error != nil {
		rr.Error = fmt.Sprintf("[%s] %s", fr.Error.Code, fr.Error.Message)
	}
	return rr
}

func computeAverages(runs []runResult) *averages {
	var ok int
	var avg averages
	for _, r := range runs {
		if !r.Success {
			continue
		}
		ok++
		avg.TotalMs += float64(r.TotalMs)
		avg.NavigationMs += float64(r.NavigationMs)
		avg.ChallengeMs += float64(r.ChallengeMs)
		avg.HTMLBytes += float64(r.HTMLBytes)
	}
	if ok == 0 {
		return nil
	}

	n := float64(ok)
	avg.TotalMs /= n
	avg.NavigationMs /= n
	avg.ChallengeMs /= n
	avg.HTMLBytes /= n
	avg.SuccessRate = n / float64(len(runs))
	return &avg
}

func printTable(out io.Writer, results []caseResult) {
	fmt.Fprintln(out, strings.Repeat("─", 90))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tEngine\tAvg Latency\tChallenge\tHTML\tSuccess\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\t%s\tFAILED\t-\t-\t0%%\n", truncateURL(r.URL, 36), r.Engine)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%dms\t%dms\t%s\t%.0f%%\n",
			truncateURL(r.URL, 36),
			r.Engine,
			int64(r.Averages.TotalMs),
			int64(r.Averages.ChallengeMs),
			formatInt(int(r.Averages.HTMLBytes)),
			r.Averages.SuccessRate*100,
		)
	}

	w.Flush()
	fmt.Fprintln(out, strings.Repeat("─", 90))
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func formatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

func writeJSON(path string, rep report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
