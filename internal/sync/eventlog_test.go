package syncx_test

import (
	"context"
	"testing"

	"github.com/mind-engage/schooltests/internal/db/dbtest"
	syncx "github.com/mind-engage/schooltests/internal/sync"
)

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := syncx.NewEventRepo(dbtest.Open(t))

	if err := repo.Append(ctx, syncx.NewEvent(syncx.TypeTestCreated, "t1", map[string]string{"title": "Algebra"})); err != nil {
		t.Fatal(err)
	}
	repo.Record(ctx, syncx.NewEvent(syncx.TypeAttemptSubmitted, "a1", nil))

	all, err := repo.List(ctx, 0, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("want 2 events, got %d", len(all))
	}
	if all[0].Seq >= all[1].Seq {
		t.Fatalf("seq not increasing: %d, %d", all[0].Seq, all[1].Seq)
	}
	if all[0].SiteID != "local" || all[0].DataJSON != `{"title":"Algebra"}` {
		t.Fatalf("unexpected first event: %+v", all[0])
	}

	only, err := repo.List(ctx, 0, syncx.TypeAttemptSubmitted, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(only) != 1 || only[0].Key != "a1" {
		t.Fatalf("type filter: %+v", only)
	}

	after, err := repo.List(ctx, all[0].Seq, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 1 {
		t.Fatalf("after filter: %+v", after)
	}
}
