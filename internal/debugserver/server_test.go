package debugserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/codefionn/shmchat/internal/session"
	"github.com/codefionn/shmchat/internal/shmstate"
)

type fakeSource struct {
	st  session.Status
	err error
}

func (f fakeSource) Status() (session.Status, error) {
	return f.st, f.err
}

func sampleStatus() session.Status {
	return session.Status{
		PID:         4242,
		ShmKey:      0x12345,
		SemKey:      0x54321,
		Attachments: 2,
		Semaphores: []session.SemaphoreStatus{
			{Name: "spaces", Value: 127},
			{Name: "mutex", Value: 1},
			{Name: "items", Value: 1, Waiting: 1},
		},
		State: shmstate.Snapshot{
			Head:  0,
			Tail:  1,
			Count: 1,
			Dialogs: []shmstate.DialogView{
				{Row: 0, ID: 7, Count: 2, Participants: []shmstate.ParticipantView{{Slot: 0, PID: 1}, {Slot: 1, PID: 2}}},
				{Row: 1, ID: 8, Count: 1, Participants: []shmstate.ParticipantView{{Slot: 0, PID: 3}}},
			},
			Messages: []shmstate.MessageView{
				{Pos: 0, DialogID: 7, Sender: 1, Snapshot: 2, ReadersLeft: 1, ReadMask: 1, Eligible: 3, Text: "hi"},
			},
		},
	}
}

func get(t *testing.T, h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStateJSON(t *testing.T) {
	want := sampleStatus()
	h := New("127.0.0.1:0", fakeSource{st: want}).Handler()

	rec := get(t, h, "/debug/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got session.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want, got)
}

func TestStateMsgpack(t *testing.T) {
	want := sampleStatus()
	h := New("127.0.0.1:0", fakeSource{st: want}).Handler()

	for _, rec := range []*httptest.ResponseRecorder{
		get(t, h, "/debug/state?format=msgpack"),
		get(t, h, "/debug/state", "Accept", "application/msgpack"),
	} {
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))

		var got session.Status
		require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, want.State.Messages, got.State.Messages)
		assert.Equal(t, want.Semaphores, got.Semaphores)
	}
}

func TestBadFormat(t *testing.T) {
	h := New("127.0.0.1:0", fakeSource{st: sampleStatus()}).Handler()
	rec := get(t, h, "/debug/state?format=xml")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDialogEndpoint(t *testing.T) {
	h := New("127.0.0.1:0", fakeSource{st: sampleStatus()}).Handler()

	rec := get(t, h, "/debug/dialogs/7")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Dialog   shmstate.DialogView    `json:"dialog"`
		Messages []shmstate.MessageView `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int32(7), body.Dialog.ID)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "hi", body.Messages[0].Text)

	rec = get(t, h, "/debug/dialogs/8")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Messages)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/debug/dialogs/99").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/debug/dialogs/abc").Code)
}

func TestSemaphoresEndpoint(t *testing.T) {
	h := New("127.0.0.1:0", fakeSource{st: sampleStatus()}).Handler()
	rec := get(t, h, "/debug/semaphores")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []session.SemaphoreStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[2].Waiting)
}

func TestSourceError(t *testing.T) {
	h := New("127.0.0.1:0", fakeSource{err: errors.New("segment gone")}).Handler()
	rec := get(t, h, "/debug/state")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "segment gone")
}

func TestPprofIndex(t *testing.T) {
	h := New("127.0.0.1:0", fakeSource{}).Handler()
	assert.Equal(t, http.StatusOK, get(t, h, "/debug/pprof/").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/debug/pprof/goroutine?debug=1").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/debug/pprof/cmdline").Code)
}

func TestRunServesUntilCancelled(t *testing.T) {
	s := New("127.0.0.1:0", fakeSource{st: sampleStatus()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		if s.Addr() == "127.0.0.1:0" {
			return false
		}
		var err error
		resp, err = http.Get("http://" + s.Addr() + "/health")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEncodeFormats(t *testing.T) {
	_, err := ParseFormat("yaml")
	assert.Error(t, err)

	f, err := ParseFormat(" MSGPACK ")
	require.NoError(t, err)
	assert.Equal(t, FormatMsgpack, f)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatJSON, map[string]int{"a": 1}))
	assert.JSONEq(t, `{"a":1}`, buf.String())
}

func TestProfilerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	p := &Profiler{
		CPUProfile:  filepath.Join(dir, "cpu", "cpu.pprof"),
		HeapProfile: filepath.Join(dir, "heap.pprof"),
	}
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())

	for _, path := range []string{p.CPUProfile, p.HeapProfile} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0), path)
	}
}
