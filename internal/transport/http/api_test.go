package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"beeftrace/internal/aggregate"
	"beeftrace/internal/cache"
	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
	"beeftrace/internal/lifecycle"
	"beeftrace/internal/mirror"
	"beeftrace/internal/payment"
	"beeftrace/internal/provenance"
	"beeftrace/internal/roles"
	"beeftrace/internal/syncer"
)

const (
	adminAddr     = "addr_admin"
	producerAddr  = "addr_producer"
	processorAddr = "addr_processor"
	certifierAddr = "addr_certifier"
	vetAddr       = "addr_vet"
)

// newTestServer wires the whole stack the way the server binary does: a
// seeded in-memory ledger, a file-backed mirror behind its own HTTP handler,
// the cache client pointed at that handler, and the services on top. The
// ledger is returned so tests can mutate state behind the mirror's back.
func newTestServer(t *testing.T) (*httptest.Server, *ledger.Memory) {
	t.Helper()

	led := ledger.NewMemory(adminAddr)
	led.Grant(ledger.RoleProducer, producerAddr)
	led.Grant(ledger.RoleProcessor, processorAddr)
	led.Grant(ledger.RoleCertifier, certifierAddr)
	led.Grant(ledger.RoleVet, vetAddr)

	store, err := mirror.NewFileStore(filepath.Join(t.TempDir(), "mirror.json"))
	require.NoError(t, err)
	mirrorSrv := httptest.NewServer(func() http.Handler {
		r := chi.NewRouter()
		mirror.NewHandler(store, nil).Register(r)
		return r
	}())
	t.Cleanup(mirrorSrv.Close)

	remote := cache.NewHTTPRemote(mirrorSrv.URL, mirrorSrv.Client())
	cacheStore := cache.NewStore(remote, time.Minute, 30*time.Second, nil)
	engine := syncer.New(led, cacheStore, 10, 0, nil, syncer.WithPacer(func(context.Context, time.Duration) error {
		return nil
	}))

	lc := lifecycle.New(led, cacheStore, engine, nil, nil)
	pay := payment.NewCoordinator(led, cacheStore, payment.NewSimulatedGateway(0), payment.NewMemoryStore(), engine, 50000, nil)
	prov := provenance.New(led, cacheStore, nil)
	agg := aggregate.New(cacheStore, led, nil)
	rl := roles.New(led, nil)

	r := chi.NewRouter()
	NewHandler(lc, pay, prov, agg, rl, engine, nil).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, led
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, actor string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, response{Success: out.Success, Data: out.Data, Error: out.Error}
}

func dataField(t *testing.T, resp response, key string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &m))
	var s string
	require.NoError(t, json.Unmarshal(m[key], &s))
	return s
}

func TestAnimalLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	status, resp := doJSON(t, srv, http.MethodPost, "/animals", producerAddr, map[string]any{
		"breed_code":   uint32(12),
		"birth_date":   1700000000,
		"weight_grams": "250000",
	})
	require.Equal(t, http.StatusCreated, status)
	id := dataField(t, resp, "id")
	require.Equal(t, "1", id)

	status, _ = doJSON(t, srv, http.MethodPost, "/batches", producerAddr, nil)
	require.Equal(t, http.StatusCreated, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/batches/1/animals", producerAddr, map[string]any{"animal_id": "1"})
	require.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/batches/1/transfer", producerAddr, map[string]any{"processor_addr": processorAddr})
	require.Equal(t, http.StatusOK, status)

	status, resp = doJSON(t, srv, http.MethodPost, "/acceptances", processorAddr, map[string]any{
		"subject_type": "batch",
		"subject_id":   "1",
	})
	require.Equal(t, http.StatusOK, status, resp.Error)

	status, _ = doJSON(t, srv, http.MethodPost, "/batches/1/process", processorAddr, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/batches/1/certify", certifierAddr, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestMissingActorHeaderRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	status, resp := doJSON(t, srv, http.MethodPost, "/batches", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Contains(t, resp.Error, actorHeader)
}

func TestRoleCheckShortCircuits(t *testing.T) {
	srv, _ := newTestServer(t)

	status, resp := doJSON(t, srv, http.MethodPost, "/animals", producerAddr, map[string]any{
		"breed_code":   uint32(3),
		"birth_date":   1700000000,
		"weight_grams": "200000",
	})
	require.Equal(t, http.StatusCreated, status, resp.Error)

	// The producer holds no processor role; the route refuses before any
	// lifecycle call.
	status, resp = doJSON(t, srv, http.MethodPost, "/animals/1/process", producerAddr, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Contains(t, resp.Error, ledger.RoleProcessor)
}

func TestQuarantineRequiresVet(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := doJSON(t, srv, http.MethodPost, "/animals", producerAddr, map[string]any{
		"breed_code":   uint32(7),
		"birth_date":   1700000000,
		"weight_grams": "240000",
	})
	require.Equal(t, http.StatusCreated, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/animals/1/quarantine", producerAddr, map[string]any{"reason": "fever"})
	require.Equal(t, http.StatusForbidden, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/animals/1/quarantine", vetAddr, map[string]any{"reason": "fever"})
	require.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, srv, http.MethodPost, "/animals/1/release", vetAddr, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestInvalidTransitionMapsTo422(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := doJSON(t, srv, http.MethodPost, "/animals", producerAddr, map[string]any{
		"breed_code":   uint32(1),
		"birth_date":   1700000000,
		"weight_grams": "230000",
	})
	require.Equal(t, http.StatusCreated, status)

	// Certifying an animal that was never processed is an invalid
	// transition wherever it is caught.
	status, resp := doJSON(t, srv, http.MethodPost, "/animals/1/certify", certifierAddr, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status, resp.Error)
}

func TestSyncEndpointReportsCounts(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		status, _ := doJSON(t, srv, http.MethodPost, "/animals", producerAddr, map[string]any{
			"breed_code":   uint32(1),
			"birth_date":   1700000000,
			"weight_grams": "250000",
		})
		require.Equal(t, http.StatusCreated, status)
	}

	status, resp := doJSON(t, srv, http.MethodPost, "/sync", "", nil)
	require.Equal(t, http.StatusOK, status)

	var report syncer.Report
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &report))
	require.Equal(t, 3, report.Animals)
	require.Zero(t, report.Failures)

	status, resp = doJSON(t, srv, http.MethodGet, "/sync/status", "", nil)
	require.Equal(t, http.StatusOK, status)
	var running map[string]bool
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &running))
	require.False(t, running["running"])
}

func TestFullSyncRefreshesLocallyCachedReads(t *testing.T) {
	srv, led := newTestServer(t)

	status, _ := doJSON(t, srv, http.MethodPost, "/animals", producerAddr, map[string]any{
		"breed_code":   uint32(2),
		"birth_date":   1700000000,
		"weight_grams": "250000",
	})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, srv, http.MethodPost, "/batches", producerAddr, nil)
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, srv, http.MethodPost, "/batches/1/animals", producerAddr, map[string]any{"animal_id": "1"})
	require.Equal(t, http.StatusOK, status)

	// First read pulls the animal into the in-process TTL layer.
	status, resp := doJSON(t, srv, http.MethodGet, "/batches/1/weight", "", nil)
	require.Equal(t, http.StatusOK, status)
	var weight aggregate.BatchWeight
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &weight))
	require.EqualValues(t, 250000, weight.Grams)

	// Reweigh behind the mirror's back. A full sync must push the new row
	// through the store so the stale local entry cannot keep serving.
	led.PutAnimal(domain.Animal{ID: 1, OwnerAddr: producerAddr, WeightGrams: 260000, BatchID: 1})
	status, _ = doJSON(t, srv, http.MethodPost, "/sync", "", nil)
	require.Equal(t, http.StatusOK, status)

	status, resp = doJSON(t, srv, http.MethodGet, "/batches/1/weight", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &weight))
	require.EqualValues(t, 260000, weight.Grams)
}

func TestTokenMintAndVerifyOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := doJSON(t, srv, http.MethodPost, "/animals", producerAddr, map[string]any{
		"breed_code":   uint32(5),
		"birth_date":   1700000000,
		"weight_grams": "260000",
	})
	require.Equal(t, http.StatusCreated, status)

	status, resp := doJSON(t, srv, http.MethodPost, "/tokens", producerAddr, map[string]any{
		"subject_type": "animal",
		"subject_id":   "1",
	})
	require.Equal(t, http.StatusCreated, status, resp.Error)

	var tok struct {
		Hash string `json:"hash"`
	}
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &tok))
	require.NotEmpty(t, tok.Hash)

	status, resp = doJSON(t, srv, http.MethodGet, "/tokens/"+tok.Hash, "", nil)
	require.Equal(t, http.StatusOK, status)
	var v struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &v))
	require.True(t, v.Valid)
}

func TestBatchWeightRollupOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	weights := []string{"250000", "260000"}
	status, _ := doJSON(t, srv, http.MethodPost, "/batches", producerAddr, nil)
	require.Equal(t, http.StatusCreated, status)
	for i, wt := range weights {
		status, _ = doJSON(t, srv, http.MethodPost, "/animals", producerAddr, map[string]any{
			"breed_code":   uint32(i + 1),
			"birth_date":   1700000000,
			"weight_grams": wt,
		})
		require.Equal(t, http.StatusCreated, status)
		status, _ = doJSON(t, srv, http.MethodPost, "/batches/1/animals", producerAddr, map[string]any{"animal_id": string(rune('1' + i))})
		require.Equal(t, http.StatusOK, status)
	}

	status, resp := doJSON(t, srv, http.MethodGet, "/batches/1/weight", "", nil)
	require.Equal(t, http.StatusOK, status, resp.Error)

	var weight aggregate.BatchWeight
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &weight))
	require.Equal(t, aggregate.BasisMeasured, weight.Basis)
	require.Equal(t, domain.Grams(510000), weight.Grams)
}

func TestRoleAdministrationOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := doJSON(t, srv, http.MethodPost, "/roles/"+ledger.RoleProducer+"/members", adminAddr, map[string]any{"addr": "addr_new"})
	require.Equal(t, http.StatusOK, status)

	status, resp := doJSON(t, srv, http.MethodGet, "/roles/"+ledger.RoleProducer+"/members", "", nil)
	require.Equal(t, http.StatusOK, status)
	var out struct {
		Members []string `json:"members"`
	}
	require.NoError(t, json.Unmarshal(resp.Data.(json.RawMessage), &out))
	require.Contains(t, out.Members, "addr_new")

	status, _ = doJSON(t, srv, http.MethodDelete, "/roles/"+ledger.RoleProducer+"/members/addr_new", producerAddr, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
}
