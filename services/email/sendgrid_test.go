package emailsvc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

var _ core.Logger = (*recordingLogger)(nil)

func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{})  {}
func (l *recordingLogger) Warn(string, ...interface{})  {}
func (l *recordingLogger) Fatal(string, ...interface{}) {}

func (l *recordingLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

// fakeSendgrid answers 500 for the failing address and 202 for everyone else.
func fakeSendgrid(t *testing.T, failing string) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Personalizations []struct {
				To []struct {
					Email string `json:"email"`
				} `json:"to"`
			} `json:"personalizations"`
		}
		if r.URL.Path != endpoint || json.NewDecoder(r.Body).Decode(&body) != nil ||
			len(body.Personalizations) == 0 || len(body.Personalizations[0].To) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		to := body.Personalizations[0].To[0].Email

		mu.Lock()
		seen = append(seen, to)
		mu.Unlock()

		if to == failing {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		res := append([]string(nil), seen...)
		sort.Strings(res)
		return res
	}
}

func TestSendgridService_SendMessages(t *testing.T) {
	srv, seen := fakeSendgrid(t, "amy@school.test")
	orig := host
	host = srv.URL
	t.Cleanup(func() { host = orig })

	logger := new(recordingLogger)
	svc := NewSendgridService(core.NewTestConfig(), logger)

	var messages []*core.EmailMessage
	for _, addr := range []string{"zoe@school.test", "amy@school.test", "tom@school.test"} {
		messages = append(messages, &core.EmailMessage{
			To:      []mail.Address{{Address: addr}},
			Subject: "Daily Attendance Reminder",
			BodyStr: "Please remember to mark your attendance today.",
		})
	}
	messages = append(messages, &core.EmailMessage{Subject: "no recipient", BodyStr: "dropped"})

	svc.SendMessages(messages...)
	svc.(core.EmailWaiter).Wait()

	assert.Equal(t, []string{"amy@school.test", "tom@school.test", "zoe@school.test"}, seen(),
		"every recipient attempted despite the failure")

	logger.mu.Lock()
	defer logger.mu.Unlock()
	require.Len(t, logger.errors, 1)
	assert.Contains(t, logger.errors[0], "status: 500")
}

func TestSendgridService_Unreachable(t *testing.T) {
	srv, _ := fakeSendgrid(t, "")
	orig := host
	host = srv.URL
	srv.Close()
	t.Cleanup(func() { host = orig })

	logger := new(recordingLogger)
	svc := NewSendgridService(core.NewTestConfig(), logger)
	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "zoe@school.test"}}, Subject: "a", BodyStr: "a"},
		&core.EmailMessage{To: []mail.Address{{Address: "amy@school.test"}}, Subject: "b", BodyStr: "b"},
	)
	svc.(core.EmailWaiter).Wait()

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Len(t, logger.errors, 2, "transport errors are logged and swallowed")
	for _, msg := range logger.errors {
		assert.Contains(t, msg, "sending email")
	}
}
