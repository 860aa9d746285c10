package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/commandes/internal/metrics"
	"github.com/vladislavdragonenkov/commandes/internal/service/clients"
	"github.com/vladislavdragonenkov/commandes/internal/storage/memory"
)

const validBody = `{
	"nomComplet": "Awa Diop",
	"telephone": "+221770000001",
	"commandes": [
		{"date": "2024-03-14", "montant": 1500.50, "clientId": 999},
		{"date": null, "montant": null}
	]
}`

type APISuite struct {
	suite.Suite

	idem    *memory.IdempotencyRepository
	outbox  *memory.OutboxRepository
	handler http.Handler
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	m := metrics.NewClientMetricsWithRegisterer(prometheus.NewRegistry())
	s.outbox = memory.NewOutboxRepository()
	s.idem = memory.NewIdempotencyRepository()

	svc := clients.NewService(memory.NewClientRepository(s.outbox), clients.WithMetrics(m))
	s.handler = NewAPI(svc,
		WithMetrics(m),
		WithIdempotency(s.idem, time.Hour),
	).Handler()
}

func (s *APISuite) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *APISuite) decodeError(rec *httptest.ResponseRecorder) errorResponse {
	var body errorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *APISuite) TestCreateClientWithOrders() {
	rec := s.do(http.MethodPost, "/clients/42/commandes", validBody, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Require().NotEmpty(rec.Header().Get(RequestIDHeader))

	var saved struct {
		ID        int64  `json:"id"`
		FullName  string `json:"nomComplet"`
		Telephone string `json:"telephone"`
		Commandes []struct {
			ID       int64           `json:"id"`
			Date     *string         `json:"date"`
			Montant  json.RawMessage `json:"montant"`
			ClientID int64           `json:"clientId"`
		} `json:"commandes"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &saved))
	s.Require().Equal(int64(1), saved.ID)
	s.Require().Equal("Awa Diop", saved.FullName)
	s.Require().Len(saved.Commandes, 2)
	s.Require().Equal("2024-03-14", *saved.Commandes[0].Date)
	s.Require().Equal("1500.5", string(saved.Commandes[0].Montant))
	s.Require().Nil(saved.Commandes[1].Date)
	s.Require().Equal("null", string(saved.Commandes[1].Montant))
	for _, c := range saved.Commandes {
		s.Require().NotZero(c.ID)
		s.Require().Equal(saved.ID, c.ClientID)
	}
	s.Require().Len(s.outbox.AllPending(), 1)
}

func (s *APISuite) TestCreateRejectsEmptyOrders() {
	for _, body := range []string{
		`{"nomComplet":"Awa Diop","telephone":"+221770000001","commandes":[]}`,
		`{"nomComplet":"","telephone":""}`,
	} {
		rec := s.do(http.MethodPost, "/clients/1/commandes", body, nil)
		s.Require().Equal(http.StatusBadRequest, rec.Code)

		resp := s.decodeError(rec)
		s.Require().Equal(codeBusinessRule, resp.Code)
		s.Require().Equal("at least one order is required", resp.Message)
	}
}

func (s *APISuite) TestCreateRejectsBlankFields() {
	rec := s.do(http.MethodPost, "/clients/1/commandes",
		`{"nomComplet":"  ","telephone":"","commandes":[{"montant":-5}]}`, nil)
	s.Require().Equal(http.StatusBadRequest, rec.Code)

	resp := s.decodeError(rec)
	s.Require().Equal(codeValidation, resp.Code)
	s.Require().Len(resp.Fields, 3)
	s.Require().Equal("nomComplet", resp.Fields[0].Field)
	s.Require().Equal("telephone", resp.Fields[1].Field)
	s.Require().Equal("commandes[0].montant", resp.Fields[2].Field)
}

func (s *APISuite) TestCreateRejectsDuplicatePhone() {
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/clients/1/commandes", validBody, nil).Code)

	rec := s.do(http.MethodPost, "/clients/1/commandes", validBody, nil)
	s.Require().Equal(http.StatusConflict, rec.Code)

	resp := s.decodeError(rec)
	s.Require().Equal(codeConflict, resp.Code)
	s.Require().Equal("this phone number already exists", resp.Message)
	s.Require().Len(s.outbox.AllPending(), 1)
}

func (s *APISuite) TestCreateRejectsMalformedBody() {
	for _, body := range []string{"", "{", `{"commandes":[{"date":"14/03/2024"}]}`, `{"commandes":[{"montant":"abc"}]}`} {
		rec := s.do(http.MethodPost, "/clients/1/commandes", body, nil)
		s.Require().Equal(http.StatusBadRequest, rec.Code, body)
		s.Require().Equal(codeValidation, s.decodeError(rec).Code)
	}
}

func (s *APISuite) TestListClientOrdersReturnsSingleSummary() {
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/clients/1/commandes", validBody, nil).Code)

	first := s.do(http.MethodGet, "/clients/1/commandes?page=2&size=5", "", nil)
	second := s.do(http.MethodGet, "/clients/1/commandes", "", nil)

	s.Require().Equal(http.StatusOK, first.Code)
	s.Require().JSONEq(`{"results":[{"nomComplet":"Awa Diop","telephone":"+221770000001"}]}`, first.Body.String())
	s.Require().Equal(first.Body.String(), second.Body.String())
}

func (s *APISuite) TestListClientOrdersErrors() {
	rec := s.do(http.MethodGet, "/clients/7/commandes", "", nil)
	s.Require().Equal(http.StatusNotFound, rec.Code)
	s.Require().Equal(codeNotFound, s.decodeError(rec).Code)
	s.Require().Equal("client not found", s.decodeError(rec).Message)

	cases := map[string]string{
		"/clients/abc/commandes":        "id",
		"/clients/1/commandes?page=-1":  "page",
		"/clients/1/commandes?size=0":   "size",
		"/clients/1/commandes?page=one": "page",
	}
	for target, field := range cases {
		rec := s.do(http.MethodGet, target, "", nil)
		s.Require().Equal(http.StatusBadRequest, rec.Code, target)
		resp := s.decodeError(rec)
		s.Require().Equal(codeValidation, resp.Code)
		s.Require().Equal(field, resp.Fields[0].Field)
	}
}

func (s *APISuite) TestListOrdersPage() {
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/clients/1/commandes", validBody, nil).Code)

	rec := s.do(http.MethodGet, "/clients/1/commandes/page?page=1&size=1", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().JSONEq(`{"clientId":1,"page":1,"size":1,"results":[{"id":2,"date":null,"montant":null,"clientId":1}]}`, rec.Body.String())
}

func (s *APISuite) TestListOrdersPageRejectsOverflowingPage() {
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/clients/1/commandes", validBody, nil).Code)

	for _, target := range []string{
		"/clients/1/commandes/page?page=922337203685477581&size=10",
		"/clients/1/commandes?page=922337203685477581",
	} {
		rec := s.do(http.MethodGet, target, "", nil)
		s.Require().Equal(http.StatusBadRequest, rec.Code, target)
		body := s.decodeError(rec)
		s.Require().Equal(codeValidation, body.Code)
		s.Require().Equal("page", body.Fields[0].Field)
	}
}

func (s *APISuite) TestCreateRejectsUnstorableAmounts() {
	for _, montant := range []string{"1.005", "100000000000000000000"} {
		body := `{"nomComplet":"Awa Diop","telephone":"+221770000009","commandes":[{"date":"2024-03-14","montant":` + montant + `}]}`
		rec := s.do(http.MethodPost, "/clients/1/commandes", body, nil)
		s.Require().Equal(http.StatusBadRequest, rec.Code, montant)
		errBody := s.decodeError(rec)
		s.Require().Equal(codeValidation, errBody.Code)
		s.Require().Equal("commandes[0].montant", errBody.Fields[0].Field)
	}
	s.Require().Empty(s.outbox.AllPending())
}

func (s *APISuite) TestDeleteClient() {
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/clients/1/commandes", validBody, nil).Code)

	s.Require().Equal(http.StatusNoContent, s.do(http.MethodDelete, "/clients/1", "", nil).Code)
	s.Require().Equal(http.StatusNotFound, s.do(http.MethodDelete, "/clients/1", "", nil).Code)
	s.Require().Equal(http.StatusNotFound, s.do(http.MethodGet, "/clients/1/commandes", "", nil).Code)

	// Телефон освобождается вместе с клиентом.
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/clients/1/commandes", validBody, nil).Code)
}

func (s *APISuite) TestIdempotentReplay() {
	headers := map[string]string{IdempotencyKeyHeader: "key-1"}

	first := s.do(http.MethodPost, "/clients/1/commandes", validBody, headers)
	s.Require().Equal(http.StatusOK, first.Code)

	second := s.do(http.MethodPost, "/clients/1/commandes", validBody, headers)
	s.Require().Equal(http.StatusOK, second.Code)
	s.Require().Equal("true", second.Header().Get(IdempotentReplayHeader))
	s.Require().Equal(first.Body.String(), second.Body.String())
	s.Require().Len(s.outbox.AllPending(), 1)

	mismatch := s.do(http.MethodPost, "/clients/1/commandes",
		strings.Replace(validBody, "+221770000001", "+221770000002", 1), headers)
	s.Require().Equal(http.StatusUnprocessableEntity, mismatch.Code)
	s.Require().Equal(codeIdempotencyMismatch, s.decodeError(mismatch).Code)
}

func (s *APISuite) TestIdempotentReplayOfFailure() {
	headers := map[string]string{IdempotencyKeyHeader: "key-fail"}
	body := `{"nomComplet":"Awa Diop","telephone":"+221770000001","commandes":[]}`

	first := s.do(http.MethodPost, "/clients/1/commandes", body, headers)
	s.Require().Equal(http.StatusBadRequest, first.Code)

	second := s.do(http.MethodPost, "/clients/1/commandes", body, headers)
	s.Require().Equal(http.StatusBadRequest, second.Code)
	s.Require().Equal("true", second.Header().Get(IdempotentReplayHeader))
	s.Require().Equal(first.Body.String(), second.Body.String())
}

func (s *APISuite) TestIdempotencyInFlight() {
	req := httptest.NewRequest(http.MethodPost, "/clients/1/commandes", strings.NewReader(validBody))
	_, err := s.idem.CreateProcessing(context.Background(), "key-busy", requestHash(req, []byte(validBody)), time.Now().Add(time.Hour))
	s.Require().NoError(err)

	rec := s.do(http.MethodPost, "/clients/1/commandes", validBody, map[string]string{IdempotencyKeyHeader: "key-busy"})
	s.Require().Equal(http.StatusConflict, rec.Code)
	s.Require().Equal(codeIdempotencyInFlight, s.decodeError(rec).Code)
}

func (s *APISuite) TestRequestIDIsEchoed() {
	rec := s.do(http.MethodGet, "/clients/1/commandes", "", map[string]string{RequestIDHeader: "req-123"})
	s.Require().Equal("req-123", rec.Header().Get(RequestIDHeader))
}

func (s *APISuite) TestUnknownRouteAndMethod() {
	rec := s.do(http.MethodGet, "/nope", "", nil)
	s.Require().Equal(http.StatusNotFound, rec.Code)
	s.Require().Equal(codeNotFound, s.decodeError(rec).Code)

	rec = s.do(http.MethodPut, "/clients/1/commandes", "{}", nil)
	s.Require().Equal(http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitedRequests(t *testing.T) {
	svc := clients.NewService(memory.NewClientRepository(nil))
	handler := NewAPI(svc, WithRateLimiter(NewRateLimiter(0.001, 1))).Handler()

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/clients/1/commandes", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusNotFound || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes: %v", codes)
	}

	other := httptest.NewRequest(http.MethodGet, "/clients/1/commandes", nil)
	other.RemoteAddr = "192.0.2.11:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("other client must not be limited, got %d", rec.Code)
	}
}

func TestIdempotencyKeyClosedAfterPanic(t *testing.T) {
	idem := memory.NewIdempotencyRepository()
	api := NewAPI(nil, WithIdempotency(idem, time.Hour))
	handler := api.recoveryMiddleware(api.withIdempotency(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/clients/1/commandes", strings.NewReader(validBody))
		req.Header.Set(IdempotencyKeyHeader, "key-panic")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	record, err := idem.Get(context.Background(), "key-panic")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !record.Status.Final() || record.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected final record with 500, got %+v", record)
	}

	retry := send()
	if retry.Code != http.StatusInternalServerError || retry.Header().Get(IdempotentReplayHeader) != "true" {
		t.Fatalf("expected replayed 500, got %d %q", retry.Code, retry.Header().Get(IdempotentReplayHeader))
	}
	if strings.Contains(retry.Body.String(), codeIdempotencyInFlight) {
		t.Fatalf("key must not stay in processing: %s", retry.Body.String())
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	api := NewAPI(nil)
	handler := api.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), codeInternal) {
		t.Fatalf("expected internal error body, got %s", rec.Body.String())
	}
}
