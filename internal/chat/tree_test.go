package chat

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/driftchat-backend/internal/domain"
)

var treeBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func treeMsg(id uuid.UUID, parent *uuid.UUID, offset time.Duration) *domain.Message {
	return &domain.Message{
		ID:              id,
		ChatID:          uuid.Nil,
		ParentMessageID: parent,
		Role:            domain.RoleUser,
		CreatedAt:       treeBase.Add(offset),
	}
}

func TestBuildViewEmpty(t *testing.T) {
	view := BuildView(nil)
	if len(view.RootMessageIDs) != 0 || len(view.LatestPath) != 0 || len(view.Messages) != 0 {
		t.Fatalf("empty input: got=%+v", view)
	}
}

func TestBuildViewSiblingRootWins(t *testing.T) {
	// A(root,t0) -> B(t1) -> C(t2), plus sibling root D(t3). D is the leaf
	// with max createdAt among leaves {C,D}, so the latest path is [D]:
	// leaf recency, not depth.
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	msgs := []*domain.Message{
		treeMsg(a, nil, 0),
		treeMsg(b, &a, 1*time.Minute),
		treeMsg(c, &b, 2*time.Minute),
		treeMsg(d, nil, 3*time.Minute),
	}
	view := BuildView(msgs)

	if !reflect.DeepEqual(view.RootMessageIDs, []uuid.UUID{a, d}) {
		t.Fatalf("roots: want=[%s %s] got=%v", a, d, view.RootMessageIDs)
	}
	if !reflect.DeepEqual(view.LatestPath, []uuid.UUID{d}) {
		t.Fatalf("latest path: want=[%s] got=%v", d, view.LatestPath)
	}
}

func TestBuildViewBranchExtension(t *testing.T) {
	// Adding E under B after C and D moves the latest path to [A,B,E].
	a, b, c, d, e := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	msgs := []*domain.Message{
		treeMsg(a, nil, 0),
		treeMsg(b, &a, 1*time.Minute),
		treeMsg(c, &b, 2*time.Minute),
		treeMsg(d, nil, 3*time.Minute),
		treeMsg(e, &b, 4*time.Minute),
	}
	view := BuildView(msgs)

	if !reflect.DeepEqual(view.LatestPath, []uuid.UUID{a, b, e}) {
		t.Fatalf("latest path: want=[%s %s %s] got=%v", a, b, e, view.LatestPath)
	}
}

func TestBuildViewInputOrderIrrelevant(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	msgs := []*domain.Message{
		treeMsg(a, nil, 0),
		treeMsg(b, &a, 1*time.Minute),
		treeMsg(c, &b, 2*time.Minute),
		treeMsg(d, &a, 3*time.Minute),
	}
	want := BuildView(msgs)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]*domain.Message, len(msgs))
		copy(shuffled, msgs)
		rng.Shuffle(len(shuffled), func(x, y int) {
			shuffled[x], shuffled[y] = shuffled[y], shuffled[x]
		})
		got := BuildView(shuffled)
		if !reflect.DeepEqual(got.RootMessageIDs, want.RootMessageIDs) {
			t.Fatalf("roots changed under permutation: want=%v got=%v", want.RootMessageIDs, got.RootMessageIDs)
		}
		if !reflect.DeepEqual(got.LatestPath, want.LatestPath) {
			t.Fatalf("latest path changed under permutation: want=%v got=%v", want.LatestPath, got.LatestPath)
		}
	}
}

func TestBuildViewCreatedAtTieBreaksByID(t *testing.T) {
	a := uuid.New()
	// Two leaves with identical timestamps; the larger id wins so the
	// choice never depends on input order.
	l1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	l2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	msgs := []*domain.Message{
		treeMsg(a, nil, 0),
		treeMsg(l1, &a, time.Minute),
		treeMsg(l2, &a, time.Minute),
	}

	view := BuildView(msgs)
	if !reflect.DeepEqual(view.LatestPath, []uuid.UUID{a, l2}) {
		t.Fatalf("tie break: want=[%s %s] got=%v", a, l2, view.LatestPath)
	}

	// Same outcome with the leaves swapped in the input.
	msgs[1], msgs[2] = msgs[2], msgs[1]
	view = BuildView(msgs)
	if !reflect.DeepEqual(view.LatestPath, []uuid.UUID{a, l2}) {
		t.Fatalf("tie break after swap: want=[%s %s] got=%v", a, l2, view.LatestPath)
	}
}

func TestBuildViewRootOrderIsCreation(t *testing.T) {
	r1, r2, r3 := uuid.New(), uuid.New(), uuid.New()
	msgs := []*domain.Message{
		treeMsg(r2, nil, 2*time.Minute),
		treeMsg(r3, nil, 3*time.Minute),
		treeMsg(r1, nil, 1*time.Minute),
	}
	view := BuildView(msgs)
	if !reflect.DeepEqual(view.RootMessageIDs, []uuid.UUID{r1, r2, r3}) {
		t.Fatalf("root order: want=[%s %s %s] got=%v", r1, r2, r3, view.RootMessageIDs)
	}
}
