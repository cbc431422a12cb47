package enrichment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copiloto/salesdash/pkg/session"
)

type fakeTransport struct {
	tier    string
	payload json.RawMessage
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeTransport) Tier() string { return f.tier }

func (f *fakeTransport) Fetch(ctx context.Context, accessToken string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.payload, f.err
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestPipeline(t *testing.T, graphURL string, transports []Transport) (*Pipeline, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := testLogger()
	queue := NewTaskQueue(8, logger)
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)
	t.Cleanup(func() {
		cancel()
		queue.Stop()
	})

	directory := NewDirectoryClient(graphURL, nil, logger, nil)
	p, err := NewPipeline(
		directory,
		NewProfileStore(db, logger),
		NewInternalProfileStore(db, logger),
		transports,
		queue,
		0,
		logger,
		nil,
	)
	require.NoError(t, err)
	return p, mock
}

func testUser() *session.User {
	return &session.User{
		Subject: "u-42",
		Claims: map[string]interface{}{
			"name":  "Ana Souza",
			"email": "ana@contoso.com",
		},
		IDToken:     "idt",
		AccessToken: "tok",
		Expiry:      time.Now().Add(time.Hour),
	}
}

func TestRunPersistsProfileThenInternalProfile(t *testing.T) {
	graph := newGraphServer(t, http.StatusOK, `{"givenName":"Ana","surname":"Souza","department":"Vendas"}`, http.StatusNotFound, nil)

	adfsPayload := json.RawMessage(`{"codigo_bp":"1234","login_adfs":"ana"}`)
	proxy := &fakeTransport{tier: "proxy", payload: adfsPayload}
	p, mock := newTestPipeline(t, graph.URL, []Transport{proxy})

	// ordered expectations: the primary row must land before the internal one
	mock.ExpectExec("INSERT INTO user_info .+ ON CONFLICT \\(user_id\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_info_adfs .+ ON CONFLICT \\(user_id\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p.Run(context.Background(), testUser(), RequestMeta{UserAgent: "Mozilla/5.0", IPAddress: "203.0.113.7"})

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, proxy.callCount())
}

func TestRunSurvivesDirectoryOutage(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer graph.Close()

	p, mock := newTestPipeline(t, graph.URL, nil)

	// claims-only profile still lands
	mock.ExpectExec("INSERT INTO user_info .+ ON CONFLICT \\(user_id\\) DO UPDATE").
		WithArgs(
			"u-42", "ana@contoso.com", "Ana Souza", "", "", "", "", "", "",
			"Mozilla/5.0", "", "idt", "tok", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p.Run(context.Background(), testUser(), RequestMeta{UserAgent: "Mozilla/5.0"})

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunDeduplicatesBySubject(t *testing.T) {
	graph := newGraphServer(t, http.StatusOK, `{}`, http.StatusNotFound, nil)
	proxy := &fakeTransport{tier: "proxy", payload: json.RawMessage(`{}`)}
	p, mock := newTestPipeline(t, graph.URL, []Transport{proxy})

	mock.ExpectExec("INSERT INTO user_info .+ ON CONFLICT \\(user_id\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_info_adfs .+ ON CONFLICT \\(user_id\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	user := testUser()
	p.Run(context.Background(), user, RequestMeta{})
	p.Run(context.Background(), user, RequestMeta{}) // rehydrate double-fire

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, proxy.callCount())
}

func TestInternalStageTierOrdering(t *testing.T) {
	graph := newGraphServer(t, http.StatusOK, `{}`, http.StatusNotFound, nil)

	t.Run("proxy failure falls through to function", func(t *testing.T) {
		proxy := &fakeTransport{tier: "proxy", err: ErrHTMLResponse}
		function := &fakeTransport{tier: "function", payload: json.RawMessage(`{"codigo_bp":"1234"}`)}
		p, mock := newTestPipeline(t, graph.URL, []Transport{proxy, function})

		mock.ExpectExec("INSERT INTO user_info_adfs .+ ON CONFLICT \\(user_id\\) DO UPDATE").
			WillReturnResult(sqlmock.NewResult(0, 1))

		p.runInternal(context.Background(), "u-42", "tok")

		assert.Equal(t, 1, proxy.callCount())
		assert.Equal(t, 1, function.callCount())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("proxy success stops the chain", func(t *testing.T) {
		proxy := &fakeTransport{tier: "proxy", payload: json.RawMessage(`{"codigo_bp":"1234"}`)}
		function := &fakeTransport{tier: "function"}
		p, mock := newTestPipeline(t, graph.URL, []Transport{proxy, function})

		mock.ExpectExec("INSERT INTO user_info_adfs .+ ON CONFLICT \\(user_id\\) DO UPDATE").
			WillReturnResult(sqlmock.NewResult(0, 1))

		p.runInternal(context.Background(), "u-42", "tok")

		assert.Equal(t, 1, proxy.callCount())
		assert.Equal(t, 0, function.callCount())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("both tiers failing is absorbed", func(t *testing.T) {
		proxy := &fakeTransport{tier: "proxy", err: ErrHTMLResponse}
		function := &fakeTransport{tier: "function", err: assert.AnError}
		p, mock := newTestPipeline(t, graph.URL, []Transport{proxy, function})

		p.runInternal(context.Background(), "u-42", "tok")

		assert.Equal(t, 1, proxy.callCount())
		assert.Equal(t, 1, function.callCount())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRunSkipsInternalStageWithoutAccessToken(t *testing.T) {
	graph := newGraphServer(t, http.StatusOK, `{}`, http.StatusNotFound, nil)
	proxy := &fakeTransport{tier: "proxy"}
	p, _ := newTestPipeline(t, graph.URL, []Transport{proxy})

	p.runInternal(context.Background(), "u-42", "")
	assert.Equal(t, 0, proxy.callCount())
}

func TestWatchRunsOnUserLoaded(t *testing.T) {
	graph := newGraphServer(t, http.StatusOK, `{}`, http.StatusNotFound, nil)
	p, mock := newTestPipeline(t, graph.URL, nil)

	mock.ExpectExec("INSERT INTO user_info .+ ON CONFLICT \\(user_id\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	events := make(chan session.Event, 2)
	sub := &session.Subscription{C: events}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Watch(ctx, sub, func(u *session.User) RequestMeta {
			return RequestMeta{Trigger: "sign-in"}
		})
	}()

	events <- session.Event{Kind: session.EventRenewError, Err: assert.AnError}
	events <- session.Event{Kind: session.EventUserLoaded, User: testUser()}

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop on context cancellation")
	}
}
