//go:build integration

package common

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/models"
	"github.com/RealZimboGuy/leadflow/internal/util"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow"
)

var portBase int32 = 9098

func NextPort() int {
	return int(atomic.AddInt32(&portBase, 1))
}

// WonLeadGraph is the tag-then-email graph used by every database suite.
func WonLeadGraph() *leadflow.GraphFile {
	return &leadflow.GraphFile{
		TenantID: "w1",
		Name:     "Won lead follow-up",
		Status:   domain.GraphStatusActive,
		Nodes: []leadflow.GraphFileNode{
			{Key: "won", Kind: domain.NodeKindTrigger, Config: []byte(`{"eventKind":"lead.stage_changed","filters":{"toStageId":"won"}}`)},
			{Key: "tag", Kind: domain.NodeKindAction, Config: []byte(`{"type":"tag_entity","label":"hot"}`)},
			{Key: "mail", Kind: domain.NodeKindAction, Config: []byte(`{"type":"send_message","channel":"email","to":"sales+{$.entityId}@example.com","subject":"Deal won","body":"Lead {$.entityId} moved to won"}`)},
		},
		Edges: []leadflow.GraphFileEdge{
			{From: "won", To: "tag"},
			{From: "tag", To: "mail"},
		},
	}
}

// WonEvent is a stage change of entityID into "won" with a stable event id.
func WonEvent(entityID string) string {
	return fmt.Sprintf(`{"eventId":"evt-%s","tenantId":"w1","entityId":"%s","eventKind":"lead.stage_changed","fromStageId":"proposal","toStageId":"won"}`, entityID, entityID)
}

// StartApp sets up the application from the LFLOW_ environment, imports the
// won lead graph and serves it on port until the test ends.
func StartApp(t *testing.T, port int) *leadflow.App {
	t.Helper()
	t.Setenv("LFLOW_SERVER_ADDR", ":"+strconv.Itoa(port))
	t.Setenv("LFLOW_ENGINE_CHECK_DB_INTERVAL", "200ms")
	t.Setenv("LFLOW_ENGINE_OUTBOX_INTERVAL", "200ms")
	t.Setenv("LFLOW_ENGINE_HEARTBEAT_INTERVAL", "1s")

	ctx, cancel := context.WithCancel(context.Background())
	app, err := leadflow.Setup(ctx)
	if err != nil {
		cancel()
		t.Fatalf("setup failed: %v", err)
	}
	if _, _, err := leadflow.ImportGraph(ctx, app.Graphs, WonLeadGraph()); err != nil {
		cancel()
		app.Close()
		t.Fatalf("import graph failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := app.Run(ctx, nil); err != nil {
			t.Errorf("app stopped with error: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		app.Close()
	})
	WaitForHealthy(t, port)
	return app
}

func WaitForHealthy(t *testing.T, port int) {
	t.Helper()
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(fmt.Sprintf("http://localhost:%d/healthz", port))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server on port %d never became healthy", port)
}

func PostEvent(t *testing.T, port int, body string) models.IngestResponse {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/api/events", port)
	req, err := http.NewRequest("POST", url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to POST /api/events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", resp.StatusCode)
	}
	rsp, err := util.DecodeJSONBodyResponse[models.IngestResponse](resp)
	if err != nil {
		t.Fatalf("Failed to decode ingest response: %v", err)
	}
	return rsp
}

func GetRun(t *testing.T, port int, runID int64) (models.RunResponse, int) {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/api/runs/%d", port, runID)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("Failed to GET /api/runs by id: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.RunResponse{}, resp.StatusCode
	}
	rsp, err := util.DecodeJSONBodyResponse[models.RunResponse](resp)
	if err != nil {
		t.Fatalf("Failed to decode run response: %v", err)
	}
	return rsp, resp.StatusCode
}

// WaitForRunDelivered polls the run until it completed and every message it
// produced left the outbox.
func WaitForRunDelivered(t *testing.T, port int, runID int64, timeout time.Duration) models.RunResponse {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last models.RunResponse
	for time.Now().Before(deadline) {
		rsp, code := GetRun(t, port, runID)
		if code == http.StatusOK {
			last = rsp
			if rsp.Run.Status == domain.RunStatusCompleted && allSent(rsp.Messages) {
				return rsp
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("run %d not delivered within %s, last seen %+v", runID, timeout, last.Run)
	return last
}

func allSent(messages []*domain.OutboxMessage) bool {
	if len(messages) == 0 {
		return false
	}
	for _, m := range messages {
		if m.Status != domain.MessageStatusSent {
			return false
		}
	}
	return true
}

// AssertWonLeadRun checks the outcome of one won lead event for entityID.
func AssertWonLeadRun(t *testing.T, rsp models.RunResponse, entityID string) {
	t.Helper()
	if len(rsp.Steps) != 2 {
		t.Fatalf("Expected 2 steps, got %d", len(rsp.Steps))
	}
	for _, s := range rsp.Steps {
		if s.Status != domain.StepStatusSuccess {
			t.Errorf("Expected step %d to be %s, got %s", s.ID, domain.StepStatusSuccess, s.Status)
		}
	}
	if len(rsp.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(rsp.Messages))
	}
	if want := "sales+" + entityID + "@example.com"; rsp.Messages[0].To != want {
		t.Errorf("Expected message to %s, got %s", want, rsp.Messages[0].To)
	}
}
