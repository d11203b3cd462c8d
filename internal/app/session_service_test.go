package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pagewise/internal/model"
	"pagewise/internal/ocr"
	"pagewise/internal/pkg/apperr"
)

type sessionFixture struct {
	sessions  *memSessionStore
	threads   *memThreadStore
	extractor *fakeExtractor
	assistant *fakeAssistant
	cache     *memWindowCache
	publisher *fakePublisher
	svc       *SessionService
}

func newSessionFixture(publisher *fakePublisher) *sessionFixture {
	threads := newMemThreadStore()
	f := &sessionFixture{
		threads:   threads,
		sessions:  newMemSessionStore(threads),
		extractor: &fakeExtractor{results: map[string]ocr.Result{}},
		assistant: &fakeAssistant{keywords: []string{"fresh"}},
		cache:     newMemWindowCache(),
		publisher: publisher,
	}
	var pub ActivityPublisher
	if publisher != nil {
		pub = publisher
	}
	f.svc = NewSessionService(f.sessions, f.threads, f.extractor, f.assistant, f.cache, pub, 2, zap.NewNop())
	return f
}

func strPtr(s string) *string { return &s }

func TestSessionOwnershipErrors(t *testing.T) {
	f := newSessionFixture(nil)
	s := f.sessions.add(model.Session{UserID: 1, Name: "Mine", OCRText: "t"})
	ctx := context.Background()

	_, err := f.svc.Get(ctx, 2, s.ID)
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)

	_, err = f.svc.Get(ctx, 1, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = f.svc.Delete(ctx, 2, s.ID)
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)
	assert.Equal(t, 1, f.sessions.count())

	_, err = f.svc.Update(ctx, UpdateSessionInput{UserID: 2, SessionID: s.ID, Name: strPtr("Stolen")})
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)
}

func TestGetTouchesInlineWithoutBroker(t *testing.T) {
	f := newSessionFixture(nil)
	s := f.sessions.add(model.Session{UserID: 1, Name: "Mine"})

	_, err := f.svc.Get(context.Background(), 1, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{s.ID}, f.sessions.touches)
}

func TestGetPublishesActivityWithBroker(t *testing.T) {
	pub := &fakePublisher{}
	f := newSessionFixture(pub)
	s := f.sessions.add(model.Session{UserID: 1, Name: "Mine"})

	_, err := f.svc.Get(context.Background(), 1, s.ID)
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, s.ID, pub.events[0].SessionID)
	assert.Empty(t, f.sessions.touches)

	pub.err = errors.New("broker down")
	_, err = f.svc.Get(context.Background(), 1, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{s.ID}, f.sessions.touches)
}

func TestUpdateRename(t *testing.T) {
	f := newSessionFixture(nil)
	ctx := context.Background()
	a := f.sessions.add(model.Session{UserID: 1, Name: "Alpha"})
	f.sessions.add(model.Session{UserID: 2, Name: "Beta"})

	got, err := f.svc.Update(ctx, UpdateSessionInput{UserID: 1, SessionID: a.ID, Name: strPtr("  Gamma   notes ")})
	require.NoError(t, err)
	assert.Equal(t, "Gamma notes", got.Name)

	_, err = f.svc.Update(ctx, UpdateSessionInput{UserID: 1, SessionID: a.ID, Name: strPtr("Beta")})
	assert.ErrorIs(t, err, apperr.ErrNameCollision)

	_, err = f.svc.Update(ctx, UpdateSessionInput{UserID: 1, SessionID: a.ID, Name: strPtr(" ")})
	assert.ErrorIs(t, err, apperr.ErrMissingInput)

	long := make([]rune, 101)
	for i := range long {
		long[i] = 'x'
	}
	_, err = f.svc.Update(ctx, UpdateSessionInput{UserID: 1, SessionID: a.ID, Name: strPtr(string(long))})
	assert.ErrorIs(t, err, apperr.ErrInvalidInputKind)

	stored, err := f.sessions.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gamma notes", stored.Name)
}

func TestUpdateSpecificationRetransformsWithoutTouchingOCR(t *testing.T) {
	f := newSessionFixture(nil)
	ctx := context.Background()
	s := f.sessions.add(model.Session{UserID: 1, Name: "Doc", OCRText: "raw text"})

	got, err := f.svc.Update(ctx, UpdateSessionInput{UserID: 1, SessionID: s.ID, Specification: strPtr("summarize")})
	require.NoError(t, err)
	assert.Equal(t, "[summarize] raw text", got.Document)
	assert.Equal(t, "raw text", got.OCRText)
	assert.Empty(t, f.extractor.calls)

	got, err = f.svc.Update(ctx, UpdateSessionInput{UserID: 1, SessionID: s.ID, Specification: strPtr("")})
	require.NoError(t, err)
	assert.Empty(t, got.Document)
	assert.Equal(t, 1, f.assistant.transforms)

	stored, _ := f.sessions.GetByID(ctx, s.ID)
	assert.Empty(t, stored.Document)
	assert.Equal(t, "raw text", stored.OCRText)
}

func TestUpdateSameSpecificationIsNoop(t *testing.T) {
	f := newSessionFixture(nil)
	s := f.sessions.add(model.Session{UserID: 1, Name: "Doc", OCRText: "raw", Specification: "bullets", Document: "- raw"})

	got, err := f.svc.Update(context.Background(), UpdateSessionInput{UserID: 1, SessionID: s.ID, Specification: strPtr("bullets")})
	require.NoError(t, err)
	assert.Equal(t, "- raw", got.Document)
	assert.Zero(t, f.assistant.transforms)
}

func TestUpdateReextractRewritesOCRAndDocument(t *testing.T) {
	f := newSessionFixture(nil)
	ctx := context.Background()
	s := f.sessions.add(model.Session{
		UserID:        1,
		Name:          "Doc",
		ImageURLs:     []string{"https://store.test/p1.jpg", "https://store.test/p2.jpg"},
		OCRText:       "old",
		Specification: "tidy",
		Document:      "[tidy] old",
	})
	f.extractor.results["https://store.test/p2.jpg"] = ocr.Result{Status: ocr.StatusFailed, Err: apperr.ErrExtraction}

	got, err := f.svc.Update(ctx, UpdateSessionInput{UserID: 1, SessionID: s.ID, Reextract: true, RegenerateKeywords: true})
	require.NoError(t, err)
	assert.Equal(t, "text of p1.jpg\n", got.OCRText)
	assert.Equal(t, []int{2}, []int(got.FailedPages))
	assert.Equal(t, "[tidy] text of p1.jpg\n", got.Document)
	assert.Equal(t, []string{"fresh"}, []string(got.Keywords))

	stored, _ := f.sessions.GetByID(ctx, s.ID)
	assert.Equal(t, "text of p1.jpg\n", stored.OCRText)
	assert.Equal(t, []string{"fresh"}, []string(stored.Keywords))
}

func TestUpdateReextractNeedsImages(t *testing.T) {
	f := newSessionFixture(nil)
	s := f.sessions.add(model.Session{UserID: 1, Name: "Doc"})

	_, err := f.svc.Update(context.Background(), UpdateSessionInput{UserID: 1, SessionID: s.ID, Reextract: true})
	assert.ErrorIs(t, err, apperr.ErrMissingInput)
}

func TestDeleteCascadesAndDropsWindow(t *testing.T) {
	f := newSessionFixture(nil)
	ctx := context.Background()
	s := f.sessions.add(model.Session{UserID: 1, Name: "Doc"})
	thread, _ := f.threads.GetBySessionID(ctx, s.ID)
	require.NoError(t, f.cache.SetWindow(ctx, thread.ID, []model.ChatTurn{}))

	require.NoError(t, f.svc.Delete(ctx, 1, s.ID))

	assert.Zero(t, f.sessions.count())
	gone, _ := f.threads.GetBySessionID(ctx, s.ID)
	assert.Nil(t, gone)
	_, hit, _ := f.cache.GetWindow(ctx, thread.ID, 0)
	assert.False(t, hit)

	err := f.svc.Delete(ctx, 1, s.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListReturnsOnlyCallerSessions(t *testing.T) {
	f := newSessionFixture(nil)
	f.sessions.add(model.Session{UserID: 1, Name: "A"})
	f.sessions.add(model.Session{UserID: 2, Name: "B"})
	f.sessions.add(model.Session{UserID: 1, Name: "C"})

	got, err := f.svc.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, s := range got {
		assert.Equal(t, uint(1), s.UserID)
	}
}
