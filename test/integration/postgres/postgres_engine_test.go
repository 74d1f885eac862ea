//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow"
	"github.com/RealZimboGuy/leadflow/test/integration/common"
)

func TestPostgres_WonLeadDelivered(t *testing.T) {
	runTestWithSetup(t, func(t *testing.T, port int) {
		common.StartApp(t, port)

		rsp := common.PostEvent(t, port, common.WonEvent("lead1"))
		if rsp.Triggered != 1 {
			t.Fatalf("Expected 1 run triggered, got %d", rsp.Triggered)
		}

		run := common.WaitForRunDelivered(t, port, 1, 20*time.Second)
		common.AssertWonLeadRun(t, run, "lead1")

		again := common.PostEvent(t, port, common.WonEvent("lead1"))
		if again.Triggered != 0 {
			t.Errorf("Expected redelivered event to trigger nothing, got %d", again.Triggered)
		}
		if _, code := common.GetRun(t, port, 2); code != 404 {
			t.Errorf("Expected no second run, got status %d", code)
		}
	})
}

// Several schedulers ticking the same database must never execute a step twice.
func TestPostgres_ConcurrentSchedulersClaimExclusively(t *testing.T) {
	runTestWithSetup(t, func(t *testing.T, port int) {
		ctx := context.Background()
		t.Setenv("LFLOW_ENGINE_BATCH_SIZE", "3")
		app, err := leadflow.Setup(ctx)
		if err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		defer app.Close()
		if _, _, err := leadflow.ImportGraph(ctx, app.Graphs, common.WonLeadGraph()); err != nil {
			t.Fatalf("import graph failed: %v", err)
		}
		if err := app.Manager.Register(ctx); err != nil {
			t.Fatal(err)
		}

		const leads = 30
		for i := 0; i < leads; i++ {
			var ev domain.Event
			if err := json.Unmarshal([]byte(common.WonEvent(fmt.Sprintf("lead%d", i))), &ev); err != nil {
				t.Fatal(err)
			}
			if _, err := app.Ingress.Ingest(ctx, &ev); err != nil {
				t.Fatalf("ingest failed: %v", err)
			}
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		processed := 0
		for w := 0; w < 4; w++ {
			scheduler := app.Manager.StepScheduler()
			scheduler.Worker = fmt.Sprintf("worker-%d", w)
			wg.Add(1)
			go func() {
				defer wg.Done()
				idle := 0
				for idle < 3 {
					n, err := scheduler.Tick(ctx)
					if err != nil {
						t.Errorf("tick failed: %v", err)
						return
					}
					if n == 0 {
						idle++
						time.Sleep(50 * time.Millisecond)
						continue
					}
					idle = 0
					mu.Lock()
					processed += n
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if processed != 2*leads {
			t.Errorf("Expected %d steps processed in total, got %d", 2*leads, processed)
		}
		for runID := int64(1); runID <= leads; runID++ {
			steps, err := app.Manager.Steps.FindByRun(ctx, runID)
			if err != nil {
				t.Fatal(err)
			}
			if len(steps) != 2 {
				t.Fatalf("run %d: expected 2 steps, got %d", runID, len(steps))
			}
			for _, s := range steps {
				if s.Attempt != 1 {
					t.Errorf("run %d step %d claimed %d times", runID, s.ID, s.Attempt)
				}
			}
			messages, err := app.Manager.Outbox.FindByRun(ctx, runID)
			if err != nil {
				t.Fatal(err)
			}
			if len(messages) != 1 {
				t.Errorf("run %d: expected 1 message, got %d", runID, len(messages))
			}
		}
	})
}

func TestPostgres_NotifyWakesListener(t *testing.T) {
	runTestWithSetup(t, func(t *testing.T, port int) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		app, err := leadflow.Setup(ctx)
		if err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		defer app.Close()

		woken := make(chan struct{}, 1)
		go app.Notifier.Listen(ctx, func() {
			select {
			case woken <- struct{}{}:
			default:
			}
		})

		// the listener connects asynchronously, keep notifying until it hears one
		deadline := time.After(15 * time.Second)
		for {
			app.Notifier.Notify(ctx)
			select {
			case <-woken:
				return
			case <-deadline:
				t.Fatal("listener was never woken")
			case <-time.After(250 * time.Millisecond):
			}
		}
	})
}
