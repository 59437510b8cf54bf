// Package chatstore persists UserChats, Plans, and BuildJobs as
// append-only/versioned metadata records via pkg/repo's generic Neo4j
// repository, one instantiation per entity.
package chatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/repo"
)

// ChatStore offers the Chat & Session Store operations: create_chat,
// append_entry, get_history, list_chats, delete_chat.
type ChatStore struct {
	driver neo4j.DriverWithContext
	repo   *repo.Neo4jRepo[domain.UserChat, string]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewChatStore creates a ChatStore over driver.
func NewChatStore(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[domain.UserChat, string]) *ChatStore {
	return &ChatStore{
		driver: driver,
		repo:   repo.NewNeo4jRepo[domain.UserChat, string](driver, "UserChat", chatToMap, chatFromRecord, opts...),
		locks:  make(map[string]*sync.Mutex),
	}
}

// CreateChat creates a new, empty UserChat owned by userID.
func (s *ChatStore) CreateChat(ctx context.Context, userID, agentName string) (domain.UserChat, error) {
	chat := domain.UserChat{
		ID:        uuid.NewString(),
		UserID:    userID,
		AgentName: agentName,
		CreatedAt: time.Now(),
	}
	return s.repo.Create(ctx, chat)
}

// GetHistory returns chatID's entries in append order.
func (s *ChatStore) GetHistory(ctx context.Context, chatID string) ([]domain.ChatEntry, error) {
	chat, err := s.repo.Get(ctx, chatID)
	if err != nil {
		return nil, domain.Wrap(domain.CodeNotFound, err, "chat %s", chatID)
	}
	return chat.Entries, nil
}

// ListChats returns every chat owned by userID.
func (s *ChatStore) ListChats(ctx context.Context, userID string) ([]domain.UserChat, error) {
	all, err := s.repo.List(ctx, repo.ListOpts{Limit: 1000, Filter: map[string]any{"user_id": userID}})
	if err != nil {
		return nil, err
	}
	chats := make([]domain.UserChat, 0, len(all))
	for _, c := range all {
		if c.UserID == userID {
			chats = append(chats, c)
		}
	}
	return chats, nil
}

// DeleteChat removes chatID.
func (s *ChatStore) DeleteChat(ctx context.Context, chatID string) error {
	return s.repo.Delete(ctx, chatID)
}

// AppendEntry appends entry to chatID, serializing concurrent appends to the
// same chat through an in-process per-chat lock and an optimistic-concurrency
// Cypher guard on the expected entry count, retrying once on conflict with a
// fresh tail read.
func (s *ChatStore) AppendEntry(ctx context.Context, chatID string, entry domain.ChatEntry) error {
	lock := s.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	entry.Timestamp = time.Now()

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		chat, err := s.repo.Get(ctx, chatID)
		if err != nil {
			return domain.Wrap(domain.CodeNotFound, err, "chat %s", chatID)
		}
		expectedTail := len(chat.Entries)

		ok, err := s.tryAppend(ctx, chatID, entry, expectedTail)
		if err != nil {
			return domain.Wrap(domain.CodeInternal, err, "appending chat entry")
		}
		if ok {
			return nil
		}
		lastErr = fmt.Errorf("chat %s: tail changed concurrently", chatID)
	}
	return domain.Wrap(domain.CodeConflict, lastErr, "appending chat entry to %s", chatID)
}

func (s *ChatStore) tryAppend(ctx context.Context, chatID string, entry domain.ChatEntry, expectedTail int) (bool, error) {
	sess := s.repo.Session(ctx)
	defer sess.Close(ctx)

	payload, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}

	result, err := sess.Run(ctx, `
		MATCH (c:UserChat {id: $id})
		WHERE size(coalesce(c.entries, [])) = $expectedTail
		SET c.entries = coalesce(c.entries, []) + $entry
		RETURN c
	`, map[string]any{
		"id":           chatID,
		"expectedTail": expectedTail,
		"entry":        string(payload),
	})
	if err != nil {
		return false, err
	}
	return result.Next(ctx), nil
}

func (s *ChatStore) lockFor(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	return l
}

func chatToMap(c domain.UserChat) map[string]any {
	entries := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		data, _ := json.Marshal(e)
		entries[i] = string(data)
	}
	return map[string]any{
		"id":         c.ID,
		"user_id":    c.UserID,
		"agent_name": c.AgentName,
		"entries":    entries,
		"created_at": c.CreatedAt.Format(time.RFC3339),
	}
}

func chatFromRecord(rec *neo4j.Record) (domain.UserChat, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.UserChat{}, err
	}
	props := node.Props

	chat := domain.UserChat{
		ID:        strProp(props, "id"),
		UserID:    strProp(props, "user_id"),
		AgentName: strProp(props, "agent_name"),
	}
	if ts, err := time.Parse(time.RFC3339, strProp(props, "created_at")); err == nil {
		chat.CreatedAt = ts
	}
	if raw, ok := props["entries"].([]any); ok {
		chat.Entries = decodeEntries(raw)
	}
	return chat, nil
}

// decodeEntries unmarshals each stored JSON entry, skipping any with an
// unrecognized tag so old clients reading new data never error.
func decodeEntries(raw []any) []domain.ChatEntry {
	entries := make([]domain.ChatEntry, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		var e domain.ChatEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		if !knownEntryKind(e.Kind) {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func knownEntryKind(k domain.EntryKind) bool {
	switch k {
	case domain.EntryHumanText, domain.EntryAIText, domain.EntryHumanFile,
		domain.EntryAIFile, domain.EntryPlanRef, domain.EntryQueryRefs, domain.EntryDbResult:
		return true
	default:
		return false
	}
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
