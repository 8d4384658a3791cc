package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahjoyal/view-bunker/internal/binder"
	"github.com/shahjoyal/view-bunker/internal/blend"
	"github.com/shahjoyal/view-bunker/internal/monitor"
	"github.com/shahjoyal/view-bunker/internal/store"
)

type fixture struct {
	srv    *Server
	store  *store.Store
	binder *binder.Binder
	ts     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "bunker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := binder.New()
	mon := monitor.New(st, b, monitor.Options{MaxLayers: 6, DefaultLayerTonnes: 50})
	require.NoError(t, mon.Start())

	srv := New(Config{Addr: "127.0.0.1:0", ClientBuffer: 8}, st, mon)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, store: st, binder: b, ts: ts}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(v))
		}
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorOf(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errorBody
	decode(t, resp, &body)
	return body.Error
}

func sampleCoal(name string, gcv float64) blend.Coal {
	return blend.Coal{
		Name: name, GCV: gcv, Cost: 4000,
		Proximate: blend.Proximate{Ash: 15, Moisture: 20, VolatileMatter: 30, FixedCarbon: 35},
		Oxides:    blend.AshOxides{SiO2: 55, Al2O3: 25, Fe2O3: 8, CaO: 4, MgO: 1},
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodOptions, "/api/coals", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PUT")
}

func TestCoalLifecycle(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/coals", sampleCoal("Indo", 4200))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created blend.Coal
	decode(t, resp, &created)
	require.NotEmpty(t, created.ID)

	resp = f.do(t, http.MethodPost, "/api/coals", sampleCoal("Aus", 6000))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var list []blend.Coal
	decode(t, f.do(t, http.MethodGet, "/api/coals", nil), &list)
	require.Len(t, list, 2)
	assert.Equal(t, "Aus", list[0].Name)

	update := sampleCoal("Indo", 4300)
	resp = f.do(t, http.MethodPut, "/api/coals/"+created.ID, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got blend.Coal
	decode(t, f.do(t, http.MethodGet, "/api/coals/"+created.ID, nil), &got)
	assert.Equal(t, 4300.0, got.GCV)

	resp = f.do(t, http.MethodPut, "/api/coals/"+created.ID, sampleCoal("Aus", 1))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/coals/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/api/coals/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, errorOf(t, resp))
}

func TestCreateCoal_Invalid(t *testing.T) {
	f := newFixture(t)

	bad := sampleCoal("", 4000)
	resp := f.do(t, http.MethodPost, "/api/coals", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/coals", `{"name": "x", "bogus": 1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorOf(t, resp), "bogus")
}

func TestSuggestCoals(t *testing.T) {
	f := newFixture(t)
	for _, n := range []string{"Indonesian", "Australian"} {
		c := sampleCoal(n, 5000)
		require.NoError(t, f.store.SaveCoal(&c))
	}

	var resp struct {
		Known       bool     `json:"known"`
		Suggestions []string `json:"suggestions"`
	}
	decode(t, f.do(t, http.MethodGet, "/api/coals/suggest?name=Indonesain", nil), &resp)
	assert.False(t, resp.Known)
	assert.Equal(t, []string{"Indonesian"}, resp.Suggestions)

	decode(t, f.do(t, http.MethodGet, "/api/coals/suggest?name=australian", nil), &resp)
	assert.True(t, resp.Known)

	r := f.do(t, http.MethodGet, "/api/coals/suggest", nil)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func blendInput() blend.Input {
	return blend.Input{
		Rows: []blend.Row{
			{CoalID: "Indo", Percent: [blend.MillCount]float64{60, 100}},
			{CoalID: "Aus", Percent: [blend.MillCount]float64{40}},
		},
		Flows:        [blend.MillCount]float64{40, 30},
		GenerationMW: 210,
	}
}

func seedCoals(t *testing.T, f *fixture) {
	t.Helper()
	for _, c := range []blend.Coal{sampleCoal("Indo", 4200), sampleCoal("Aus", 6000)} {
		c := c
		require.NoError(t, f.store.SaveCoal(&c))
	}
}

func TestBlendLifecycle(t *testing.T) {
	f := newFixture(t)
	seedCoals(t, f)

	resp := f.do(t, http.MethodGet, "/api/blends/latest", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/blends/preview", blendInput())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var preview blend.Blend
	decode(t, resp, &preview)
	assert.Empty(t, preview.ID)
	assert.InDelta(t, 0.6*4200+0.4*6000, preview.Metrics.Mills[0].GCV, 1e-6)

	resp = f.do(t, http.MethodPost, "/api/blends", blendInput())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var recorded blend.Blend
	decode(t, resp, &recorded)
	require.NotEmpty(t, recorded.ID)
	assert.Greater(t, recorded.Metrics.HeatRate, 0.0)

	var snap binder.Snapshot
	decode(t, f.do(t, http.MethodGet, "/api/bunkers", nil), &snap)
	require.Len(t, snap.Bunkers[0].Layers, 1)
	assert.Equal(t, recorded.ID, snap.Bunkers[0].Layers[0].BlendID)
	assert.Equal(t, "Indo 60% / Aus 40%", snap.Bunkers[0].Layers[0].Label)
	assert.True(t, snap.Bunkers[2].Empty)

	var sum monitor.Summary
	decode(t, f.do(t, http.MethodGet, "/api/summary", nil), &sum)
	assert.Equal(t, recorded.ID, sum.LatestBlendID)
	assert.InDelta(t, 70, sum.Metrics.TotalFlow, 1e-9)

	var list []blend.Blend
	decode(t, f.do(t, http.MethodGet, "/api/blends?limit=5", nil), &list)
	require.Len(t, list, 1)

	var latest blend.Blend
	decode(t, f.do(t, http.MethodGet, "/api/blends/latest", nil), &latest)
	assert.Equal(t, recorded.ID, latest.ID)

	resp = f.do(t, http.MethodDelete, "/api/blends/"+recorded.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/api/blends/"+recorded.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/blends/"+recorded.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The deleted blend's layers leave the live bunkers too.
	decode(t, f.do(t, http.MethodGet, "/api/bunkers", nil), &snap)
	assert.Empty(t, snap.Bunkers[0].Layers)
	assert.True(t, snap.Bunkers[0].Empty)
}

func TestRecordBlend_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	seedCoals(t, f)

	in := blendInput()
	in.Rows[1].CoalID = "Auz"
	in.Rows[0].Percent[0] = 70
	resp := f.do(t, http.MethodPost, "/api/blends", in)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	msg := errorOf(t, resp)
	assert.Contains(t, msg, `did you mean "Aus"`)

	in = blendInput()
	in.Rows[0].Percent[0] = 70
	resp = f.do(t, http.MethodPost, "/api/blends", in)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorOf(t, resp), "mill 1")

	resp = f.do(t, http.MethodGet, "/api/blends?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketStream(t *testing.T) {
	f := newFixture(t)
	seedCoals(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	updates, unsubscribe := f.srv.monitor.Subscribe()
	defer unsubscribe()
	hubDone := make(chan error, 1)
	go func() { hubDone <- f.srv.Hub().Run(ctx, updates) }()
	defer func() {
		cancel()
		<-hubDone
	}()

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	assert.Equal(t, MessageSnapshot, first.Type)
	assert.True(t, first.Data.Snapshot.Bunkers[0].Empty)

	resp := f.do(t, http.MethodPost, "/api/blends", blendInput())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Eventually(t, func() bool { return f.srv.Hub().Len() == 1 }, time.Second, 10*time.Millisecond)
	f.binder.Tick(time.Second)

	u := readMessage(t, conn)
	assert.Equal(t, MessageUpdate, u.Type)
	assert.Equal(t, uint64(1), u.Data.Snapshot.Seq)
	assert.False(t, u.Data.Snapshot.Bunkers[0].Empty)
	assert.Greater(t, u.Data.Summary.Metrics.GCV, 0.0)
}

func TestHub_DropsSlowClients(t *testing.T) {
	h := NewHub(1)
	c := &client{send: make(chan []byte, 1), conn: dummyConn(t)}
	h.add(c)

	h.Broadcast([]byte("a"))
	assert.Equal(t, 1, h.Len())

	// A full buffer disconnects the client rather than blocking.
	h.Broadcast([]byte("b"))
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 1, h.Dropped())

	msg, ok := <-c.send
	assert.True(t, ok)
	assert.Equal(t, "a", string(msg))
	_, ok = <-c.send
	assert.False(t, ok)
}

// dummyConn returns a real websocket connection to a throwaway server.
func dummyConn(t *testing.T) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
