package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pushdeploy/pushdeploy/pkg/stores"
)

// ExampleOpen opens a migrated history database.
func ExampleOpen() {
	ctx := context.Background()
	store, err := stores.Open(ctx, ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, stores.RunFilter{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("history ready, %d runs\n", len(runs))
	// Output: history ready, 0 runs
}

// ExampleSQLiteStore_ListRuns demonstrates reading back the history.
func ExampleSQLiteStore_ListRuns() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = store.CreateRun(ctx, &stores.Run{ID: "run-001", Project: "api", Status: stores.RunStatusSucceeded, StartedAt: start})
	_ = store.CreateRun(ctx, &stores.Run{ID: "run-002", Project: "api", Status: stores.RunStatusFailed, StartedAt: start.Add(time.Hour)})

	runs, err := store.ListRuns(ctx, stores.RunFilter{Project: "api"})
	if err != nil {
		log.Fatal(err)
	}
	for _, run := range runs {
		fmt.Println(run.ID, run.Status)
	}
	// Output:
	// run-002 failed
	// run-001 succeeded
}
