package chat

import (
	"sort"

	"github.com/google/uuid"

	"github.com/yungbote/driftchat-backend/internal/domain"
)

// TreeView is the client-facing shape of a chat's conversation forest:
// the thread roots, the default-rendered root-to-leaf path, and the full
// message set keyed by id.
type TreeView struct {
	RootMessageIDs []uuid.UUID                   `json:"root_message_ids"`
	LatestPath     []uuid.UUID                   `json:"latest_path"`
	Messages       map[uuid.UUID]*domain.Message `json:"messages"`
}

// BuildView reconstructs the branching view from a chat's flat, unordered
// message set. Pure function of its input: permuting the slice never
// changes the output.
func BuildView(messages []*domain.Message) *TreeView {
	view := &TreeView{
		RootMessageIDs: []uuid.UUID{},
		LatestPath:     []uuid.UUID{},
		Messages:       map[uuid.UUID]*domain.Message{},
	}
	if len(messages) == 0 {
		return view
	}

	byID := make(map[uuid.UUID]*domain.Message, len(messages))
	children := make(map[uuid.UUID][]*domain.Message)
	for _, m := range messages {
		byID[m.ID] = m
		view.Messages[m.ID] = m
	}
	for _, m := range messages {
		if m.ParentMessageID == nil {
			continue
		}
		children[*m.ParentMessageID] = append(children[*m.ParentMessageID], m)
	}
	for parent := range children {
		sortByCreation(children[parent])
	}

	var roots []*domain.Message
	for _, m := range messages {
		if m.ParentMessageID == nil {
			roots = append(roots, m)
		}
	}
	sortByCreation(roots)
	for _, r := range roots {
		view.RootMessageIDs = append(view.RootMessageIDs, r.ID)
	}

	// Latest path: the leaf with max createdAt wins (id breaks ties), then
	// walk parent pointers back to its root. Leaf recency, not depth.
	var latest *domain.Message
	for _, m := range messages {
		if len(children[m.ID]) > 0 {
			continue
		}
		if latest == nil || creationLess(latest, m) {
			latest = m
		}
	}
	if latest == nil {
		// Every message has children: the parent links contain a cycle.
		// Insert-time validation should make this unreachable.
		return view
	}

	path := []uuid.UUID{}
	for m := latest; m != nil; {
		path = append(path, m.ID)
		if m.ParentMessageID == nil {
			break
		}
		parent, ok := byID[*m.ParentMessageID]
		if !ok || len(path) > len(messages) {
			break
		}
		m = parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	view.LatestPath = path
	return view
}

func sortByCreation(msgs []*domain.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return creationLess(msgs[i], msgs[j])
	})
}

// creationLess orders by createdAt ascending with id as the deterministic
// secondary key for identical timestamps.
func creationLess(a, b *domain.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}
