package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pagewise/internal/ai"
	"pagewise/internal/model"
	"pagewise/internal/objectstore"
	"pagewise/internal/ocr"
	"pagewise/internal/pkg/apperr"
	"pagewise/internal/rasterize"
)

type memSessionStore struct {
	mu       sync.Mutex
	nextID   uint
	sessions map[uint]*model.Session
	threads  *memThreadStore
	touches  []uint

	// names that report free on NameExists but collide on insert
	raceNames map[string]bool
}

func newMemSessionStore(threads *memThreadStore) *memSessionStore {
	return &memSessionStore{sessions: map[uint]*model.Session{}, threads: threads, raceNames: map[string]bool{}}
}

func (m *memSessionStore) CreateWithThread(_ context.Context, s *model.Session) (*model.ChatThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raceNames[s.Name] {
		return nil, fmt.Errorf("create session failed: %w", gorm.ErrDuplicatedKey)
	}
	for _, existing := range m.sessions {
		if existing.Name == s.Name {
			return nil, fmt.Errorf("create session failed: %w", gorm.ErrDuplicatedKey)
		}
	}
	m.nextID++
	s.ID = m.nextID
	if s.LastActivity.IsZero() {
		s.LastActivity = time.Now()
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return m.threads.create(s.ID), nil
}

func (m *memSessionStore) NameExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *memSessionStore) GetByID(_ context.Context, id uint) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionStore) ListByUserID(_ context.Context, userID uint) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (m *memSessionStore) Update(_ context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	for k, v := range fields {
		switch k {
		case "name":
			for _, other := range m.sessions {
				if other.ID != id && other.Name == v.(string) {
					return gorm.ErrDuplicatedKey
				}
			}
			s.Name = v.(string)
		case "specification":
			s.Specification = v.(string)
		case "document":
			s.Document = v.(string)
		case "ocr_text":
			s.OCRText = v.(string)
		}
	}
	if v, ok := fields["keywords"]; ok {
		s.Keywords = v.(datatypes.JSONSlice[string])
	}
	if v, ok := fields["failed_pages"]; ok {
		s.FailedPages = v.(datatypes.JSONSlice[int])
	}
	return nil
}

func (m *memSessionStore) Touch(_ context.Context, id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touches = append(m.touches, id)
	if s, ok := m.sessions[id]; ok && s.LastActivity.Before(at) {
		s.LastActivity = at
	}
	return nil
}

func (m *memSessionStore) DeleteByIDAndUserID(_ context.Context, id, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	delete(m.sessions, id)
	m.threads.deleteBySession(id)
	return nil
}

func (m *memSessionStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memSessionStore) add(s model.Session) *model.Session {
	thread, err := m.CreateWithThread(context.Background(), &s)
	if err != nil || thread == nil {
		panic(err)
	}
	return &s
}

type memThreadStore struct {
	mu          sync.Mutex
	nextID      uint
	threads     map[uint]*model.ChatThread
	turns       map[uint][]model.ChatTurn
	appendDelay time.Duration
	recentCalls int
}

func newMemThreadStore() *memThreadStore {
	return &memThreadStore{threads: map[uint]*model.ChatThread{}, turns: map[uint][]model.ChatTurn{}}
}

func (m *memThreadStore) create(sessionID uint) *model.ChatThread {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &model.ChatThread{ID: m.nextID, SessionID: sessionID}
	m.threads[t.ID] = t
	cp := *t
	return &cp
}

func (m *memThreadStore) deleteBySession(sessionID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.threads {
		if t.SessionID == sessionID {
			delete(m.threads, id)
			delete(m.turns, id)
		}
	}
}

func (m *memThreadStore) GetBySessionID(_ context.Context, sessionID uint) (*model.ChatThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.threads {
		if t.SessionID == sessionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

// AppendTurn reads the counter, waits, then writes, so unserialized callers
// would overwrite each other.
func (m *memThreadStore) AppendTurn(_ context.Context, threadID uint, message, reply string) (*model.ChatTurn, error) {
	m.mu.Lock()
	t, ok := m.threads[threadID]
	if !ok {
		m.mu.Unlock()
		return nil, gorm.ErrRecordNotFound
	}
	seq := t.TurnCount + 1
	m.mu.Unlock()

	time.Sleep(m.appendDelay)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.turns[threadID] {
		if existing.Seq == seq {
			return nil, gorm.ErrDuplicatedKey
		}
	}
	t.TurnCount = seq
	turn := model.ChatTurn{ID: uint(len(m.turns[threadID]) + 1), ThreadID: threadID, Seq: seq, Message: message, Reply: reply}
	m.turns[threadID] = append(m.turns[threadID], turn)
	return &turn, nil
}

func (m *memThreadStore) ListTurns(_ context.Context, threadID uint) ([]model.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ChatTurn(nil), m.turns[threadID]...), nil
}

func (m *memThreadStore) ListRecentTurns(_ context.Context, threadID uint, limit int) ([]model.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentCalls++
	all := m.turns[threadID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]model.ChatTurn{}, all...), nil
}

type fakeObjectStore struct {
	mu        sync.Mutex
	pdf       *objectstore.Object
	getErr    error
	puts      []string
	failOnPut int
}

func (f *fakeObjectStore) Put(_ context.Context, _ []byte, filename, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnPut > 0 && len(f.puts)+1 == f.failOnPut {
		return "", apperr.StorageUnavailable("upload failed", nil)
	}
	f.puts = append(f.puts, filename)
	return "https://store.test/" + filename, nil
}

func (f *fakeObjectStore) Get(context.Context, string) (*objectstore.Object, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.pdf, nil
}

type fakeRasterizer struct {
	pages       int
	validateErr error
}

func (f *fakeRasterizer) Validate(_ []byte, contentType string) (int, error) {
	if f.validateErr != nil {
		return 0, f.validateErr
	}
	return f.pages, nil
}

func (f *fakeRasterizer) Rasterize(_ context.Context, _ []byte, contentType string, emit func(rasterize.Page) error) (int, error) {
	if !strings.HasPrefix(contentType, "application/pdf") {
		return 0, apperr.InvalidInputKind("not a pdf", nil)
	}
	for n := 1; n <= f.pages; n++ {
		if err := emit(rasterize.Page{Number: n, JPEG: []byte{0xFF, 0xD8}}); err != nil {
			return n - 1, err
		}
	}
	return f.pages, nil
}

// fakeExtractor returns "text of <file>" unless a page is listed in results.
type fakeExtractor struct {
	results map[string]ocr.Result
	mu      sync.Mutex
	calls   []string
}

func (f *fakeExtractor) Extract(_ context.Context, imageURL string) ocr.Result {
	f.mu.Lock()
	f.calls = append(f.calls, imageURL)
	f.mu.Unlock()
	if r, ok := f.results[imageURL]; ok {
		return r
	}
	return ocr.Result{Text: "text of " + strings.TrimPrefix(imageURL, "https://store.test/"), Status: ocr.StatusOK}
}

type fakeAssistant struct {
	mu           sync.Mutex
	name         string
	keywords     []string
	transformErr error
	answerErr    error
	answerDelay  time.Duration
	transforms   int
	histories    [][]ai.Turn
}

func (f *fakeAssistant) Transform(_ context.Context, text, spec string) (string, error) {
	f.mu.Lock()
	f.transforms++
	f.mu.Unlock()
	if f.transformErr != nil {
		return "", f.transformErr
	}
	return "[" + spec + "] " + text, nil
}

func (f *fakeAssistant) DeriveName(context.Context, string) (string, error) {
	if f.name == "" {
		return "Document", nil
	}
	return f.name, nil
}

func (f *fakeAssistant) DeriveKeywords(context.Context, string) ([]string, error) {
	return f.keywords, nil
}

func (f *fakeAssistant) Answer(_ context.Context, grounding string, history []ai.Turn, question string) (string, error) {
	f.mu.Lock()
	f.histories = append(f.histories, history)
	f.mu.Unlock()
	time.Sleep(f.answerDelay)
	if f.answerErr != nil {
		return "", f.answerErr
	}
	return "answer to " + question, nil
}

func (f *fakeAssistant) StreamAnswer(ctx context.Context, grounding string, history []ai.Turn, question string, onChunk func(string) error) (string, error) {
	out, err := f.Answer(ctx, grounding, history, question)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(out, " ") {
		if err := onChunk(word); err != nil {
			return "", err
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.SessionActivity
	err    error
}

func (f *fakePublisher) PublishActivity(_ context.Context, e model.SessionActivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

type memWindowCache struct {
	mu      sync.Mutex
	windows map[uint][]model.ChatTurn
	hits    int
}

func newMemWindowCache() *memWindowCache {
	return &memWindowCache{windows: map[uint][]model.ChatTurn{}}
}

func (c *memWindowCache) GetWindow(_ context.Context, threadID uint, turnCount int) ([]model.ChatTurn, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[threadID]
	if !ok {
		return nil, false, nil
	}
	last := 0
	if len(w) > 0 {
		last = w[len(w)-1].Seq
	}
	if last != turnCount {
		return nil, false, nil
	}
	c.hits++
	return append([]model.ChatTurn{}, w...), true, nil
}

func (c *memWindowCache) SetWindow(_ context.Context, threadID uint, turns []model.ChatTurn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows[threadID] = append([]model.ChatTurn{}, turns...)
	return nil
}

func (c *memWindowCache) DeleteWindow(_ context.Context, threadID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, threadID)
	return nil
}
