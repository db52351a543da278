package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/quickrank/internal/async"
	"github.com/kelsos/quickrank/internal/client"
	"github.com/kelsos/quickrank/internal/config"
	"github.com/kelsos/quickrank/internal/services"
)

// fakeRemote stands in for the worker system. Status endpoints replay a script
// per task id and repeat its last entry.
type fakeRemote struct {
	mu           sync.Mutex
	jdUploadCode int
	scripts      map[string][]string
	served       map[string]int
	calls        map[string]int
	rankingBody  map[string]any
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		scripts: map[string][]string{},
		served:  map[string]int{},
		calls:   map[string]int{},
	}
}

func (f *fakeRemote) script(taskID string, bodies ...string) *fakeRemote {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[taskID] = bodies
	return f
}

func (f *fakeRemote) failJDUpload(code int) *fakeRemote {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jdUploadCode = code
	return f
}

func (f *fakeRemote) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeRemote) RankingBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rankingBody
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	f.calls[key]++

	switch {
	case key == "POST /employer/quick-rank/upload-jd":
		if f.jdUploadCode != 0 {
			http.Error(w, "unsupported file", f.jdUploadCode)
			return
		}
		fmt.Fprint(w, `{"success":true,"batchTaskId":"jd-1"}`)

	case key == "POST /employer/quick-rank/upload-cv":
		fmt.Fprint(w, `{"success":true,"batchTaskId":"cv-1","totalFiles":5}`)

	case strings.HasPrefix(key, "POST /ranking/job/"):
		body, _ := io.ReadAll(r.Body)
		f.rankingBody = map[string]any{}
		_ = json.Unmarshal(body, &f.rankingBody)
		fmt.Fprint(w, `{"success":true,"taskId":"rank-1"}`)

	case strings.HasPrefix(key, "GET /tasks/"):
		id := strings.TrimPrefix(r.URL.Path, "/tasks/")
		bodies := f.scripts[id]
		if len(bodies) == 0 {
			http.NotFound(w, r)
			return
		}
		idx := f.served[id]
		if idx >= len(bodies) {
			idx = len(bodies) - 1
		}
		f.served[id]++
		fmt.Fprint(w, bodies[idx])

	default:
		http.NotFound(w, r)
	}
}

func batchBody(ready bool, completed, total, failed int, results ...string) string {
	return fmt.Sprintf(`{"success":true,"ready":%t,"completed":%d,"total":%d,"failed":%d,"results":[%s]}`,
		ready, completed, total, failed, strings.Join(results, ","))
}

func candidateItem(id string) string {
	return fmt.Sprintf(`{"success":true,"result":{"candidateId":%q}}`, id)
}

func failedItem(reason string) string {
	return fmt.Sprintf(`{"success":false,"error":%q}`, reason)
}

// extractionBody builds a ready extraction batch with total items of which
// failed have failed.
func extractionBody(total, failed int) string {
	var items []string
	for i := 0; i < total; i++ {
		if i < failed {
			items = append(items, failedItem("unreadable file"))
		} else {
			items = append(items, candidateItem(fmt.Sprintf("c-%d", i+1)))
		}
	}
	return batchBody(true, total, total, failed, items...)
}

func analysisBody(jobPostingID string) string {
	return batchBody(true, 1, 1, 0, fmt.Sprintf(`{"success":true,"result":{"jobPostingId":%q}}`, jobPostingID))
}

func pendingSingle(percent int) string {
	return fmt.Sprintf(`{"success":true,"data":{"ready":false,"progress":{"stage":"scoring","percent":%d}}}`, percent)
}

func rankingBody(n int) string {
	var items []string
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(`{"candidate_id":"c-%d","candidate_name":"Candidate %d","overall_score":%d}`, i+1, i+1, 90-i))
	}
	return fmt.Sprintf(`{"success":true,"data":{"ready":true,"result":{"job_posting_id":"job-42","total_candidates":%d,"ranked_candidates":[%s]}}}`,
		n, strings.Join(items, ","))
}

// recorder keeps every snapshot delivered to the listener.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) listen(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

type harness struct {
	orch   *Orchestrator
	remote *fakeRemote
	rec    *recorder
	inputs Inputs
}

type harnessOption func(*config.Config, *async.PollerConfig, *[]Option)

func withToken(token string) harnessOption {
	return func(cfg *config.Config, _ *async.PollerConfig, _ *[]Option) {
		cfg.APIToken = token
	}
}

func withBatchInterval(d time.Duration) harnessOption {
	return func(_ *config.Config, pc *async.PollerConfig, _ *[]Option) {
		pc.BatchInterval = d
	}
}

func withOrchestratorOption(opt Option) harnessOption {
	return func(_ *config.Config, _ *async.PollerConfig, opts *[]Option) {
		*opts = append(*opts, opt)
	}
}

func newHarness(t *testing.T, remote *fakeRemote, opts ...harnessOption) *harness {
	t.Helper()
	server := httptest.NewServer(remote)
	t.Cleanup(server.Close)

	cfg := config.NewConfig()
	cfg.BaseURL = server.URL
	cfg.APIToken = "tok"
	cfg.RateLimit = 1000

	pc := async.PollerConfig{
		SingleInterval:     2 * time.Millisecond,
		BatchInterval:      2 * time.Millisecond,
		MaxBackoff:         10 * time.Millisecond,
		MaxTransientErrors: 3,
	}

	rec := &recorder{}
	orchOpts := []Option{WithListener(rec.listen)}
	for _, opt := range opts {
		opt(cfg, &pc, &orchOpts)
	}

	api := client.NewAPIClient(cfg)
	poller := async.NewPoller(async.NewStatusClient(api), pc, nil)
	orch := NewOrchestrator(services.NewRankingService(api), poller, orchOpts...)

	dir := t.TempDir()
	cv := filepath.Join(dir, "cvs.zip")
	jd := filepath.Join(dir, "jd.pdf")
	require.NoError(t, os.WriteFile(cv, []byte("PK"), 0o600))
	require.NoError(t, os.WriteFile(jd, []byte("%PDF"), 0o600))

	// Stop any run still executing when the test ends.
	t.Cleanup(orch.Reset)

	return &harness{orch: orch, remote: remote, rec: rec, inputs: Inputs{CVPath: cv, JDPath: jd}}
}

// run starts a run and waits for its goroutine to exit.
func (h *harness) run(t *testing.T) Snapshot {
	t.Helper()
	require.NoError(t, h.orch.Start(h.inputs))
	select {
	case <-h.orch.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not finish, last snapshot %+v", h.orch.Snapshot())
	}
	return h.orch.Snapshot()
}

func assertMonotone(t *testing.T, snaps []Snapshot) {
	t.Helper()
	last := map[string]float64{}
	for _, s := range snaps {
		id := s.RunID.String()
		assert.GreaterOrEqual(t, s.Progress, last[id], "progress went backwards in phase %s", s.Phase)
		last[id] = s.Progress
	}
}
