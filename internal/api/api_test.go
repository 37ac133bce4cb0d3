package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okinoko_treasury/contract"
	"okinoko_treasury/internal/api"
	"okinoko_treasury/sdk"
)

const (
	treasuryID = sdk.Address("contract:treasury")
	alice      = sdk.Address("principal:alice")
	bob        = sdk.Address("principal:bob")
	carol      = sdk.Address("principal:carol")
)

type apiTest struct {
	t      *testing.T
	router http.Handler
	tokens *api.TokenService
	clock  *sdk.ManualClock
	ledger *sdk.MemLedger
	engine *contract.Engine
}

func setupAPITest(t *testing.T) *apiTest {
	t.Helper()
	ledger := sdk.NewMemLedger(sdk.DefaultResolver{}.AccountOf(treasuryID), 0)
	clock := sdk.NewManualClock(time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC))
	engine, err := contract.New(contract.Options{
		State:    contract.NewMemoryState(),
		Ledger:   ledger,
		Clock:    clock,
		Treasury: treasuryID,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	tokens := api.NewTokenService("test-secret", "treasury-test")
	h, err := api.New(api.Options{
		Treasury:  engine,
		Identity:  treasuryID,
		Tokens:    tokens,
		DevLedger: ledger,
	})
	require.NoError(t, err)
	return &apiTest{t: t, router: h.Router(), tokens: tokens, clock: clock, ledger: ledger, engine: engine}
}

// call performs a request as who; an empty who sends no token.
func (at *apiTest) call(method, path string, who sdk.Address, body string) *httptest.ResponseRecorder {
	at.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if who != "" {
		token, err := at.tokens.Issue(who, time.Hour)
		require.NoError(at.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	at.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type orderBody struct {
	ID          string  `json:"id"`
	Amount      uint64  `json:"amount"`
	Status      string  `json:"status"`
	Depositor   string  `json:"depositor"`
	PaidAtBlock *uint64 `json:"paid_at_block"`
	Memo        string  `json:"memo"`
}

type errorBody struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func (at *apiTest) initialize() {
	at.t.Helper()
	rec := at.call(http.MethodPost, "/init", treasuryID, `{"quorum":50,"contribution_days":1,"vote_minutes":10}`)
	require.Equal(at.t, http.StatusCreated, rec.Code, rec.Body.String())
}

// deposit runs order, dev payment and completion over HTTP.
func (at *apiTest) deposit(who sdk.Address, amount uint64) orderBody {
	at.t.Helper()
	rec := at.call(http.MethodPost, "/deposits", who, `{"amount":`+strconv.FormatUint(amount, 10)+`}`)
	require.Equal(at.t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[orderBody](at.t, rec)

	rec = at.call(http.MethodPost, "/dev/ledger/transfers", who, `{"amount":`+strconv.FormatUint(amount, 10)+`,"memo":"`+order.Memo+`"}`)
	require.Equal(at.t, http.StatusCreated, rec.Code, rec.Body.String())
	block := decode[struct {
		Block uint64 `json:"block"`
	}](at.t, rec).Block

	payload := `{"order_id":"` + order.ID + `","amount":` + strconv.FormatUint(amount, 10) +
		`,"block":` + strconv.FormatUint(block, 10) + `,"memo":"` + order.Memo + `"}`
	rec = at.call(http.MethodPost, "/deposits/complete", who, payload)
	require.Equal(at.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[orderBody](at.t, rec)
}

func TestHealthyFlow(t *testing.T) {
	at := setupAPITest(t)
	at.initialize()

	done := at.deposit(alice, 60)
	assert.Equal(t, "COMPLETED", done.Status)
	assert.Equal(t, alice.String(), done.Depositor)
	require.NotNil(t, done.PaidAtBlock)
	at.deposit(bob, 40)

	rec := at.call(http.MethodGet, "/shares/"+alice.String(), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"principal:alice","shares":60}`, rec.Body.String())

	rec = at.call(http.MethodGet, "/shares", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"address":"principal:alice","shares":60},{"address":"principal:bob","shares":40}]`, rec.Body.String())

	rec = at.call(http.MethodPost, "/proposals", alice, `{"title":"fund the roof","amount":40,"recipient":"principal:carol"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	proposal := decode[struct {
		ID     uint32 `json:"id"`
		Ended  bool   `json:"ended"`
		Amount uint64 `json:"amount"`
	}](t, rec)
	assert.Equal(t, uint64(40), proposal.Amount)
	path := "/proposals/" + strconv.FormatUint(uint64(proposal.ID), 10)

	rec = at.call(http.MethodPost, path+"/vote", alice, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = at.call(http.MethodPost, path+"/execute", bob, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TooEarly", decode[errorBody](t, rec).Kind)

	at.clock.Advance(11 * time.Minute)
	rec = at.call(http.MethodPost, path+"/execute", bob, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[struct {
		Executed bool `json:"executed"`
		Proposal struct {
			Ended       bool    `json:"ended"`
			PaidAtBlock *uint64 `json:"paid_at_block"`
		} `json:"proposal"`
	}](t, rec)
	assert.True(t, result.Executed)
	assert.True(t, result.Proposal.Ended)
	assert.NotNil(t, result.Proposal.PaidAtBlock)

	out := at.ledger.Outbound()
	require.Len(t, out, 1)
	assert.Equal(t, sdk.DefaultResolver{}.AccountOf(carol), out[0].To)

	rec = at.call(http.MethodGet, "/config", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[struct {
		TotalShares    uint64 `json:"total_shares"`
		AvailableFunds uint64 `json:"available_funds"`
		LockedFunds    uint64 `json:"locked_funds"`
	}](t, rec)
	assert.Equal(t, uint64(100), cfg.TotalShares)
	assert.Equal(t, uint64(60), cfg.AvailableFunds)
	assert.Zero(t, cfg.LockedFunds)

	rec = at.call(http.MethodGet, "/proposals", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}

func TestSharesRoutes(t *testing.T) {
	at := setupAPITest(t)
	at.initialize()
	at.deposit(alice, 50)

	rec := at.call(http.MethodPost, "/shares/transfer", alice, `{"to":"principal:bob","amount":20}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = at.call(http.MethodPost, "/shares/redeem", bob, `{"amount":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"block":`)

	rec = at.call(http.MethodPost, "/shares/redeem", bob, `{"amount":100}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InsufficientShares", decode[errorBody](t, rec).Kind)

	rec = at.call(http.MethodGet, "/shares/"+bob.String(), "", "")
	assert.JSONEq(t, `{"address":"principal:bob","shares":15}`, rec.Body.String())
}

func TestDepositQueries(t *testing.T) {
	at := setupAPITest(t)
	at.initialize()
	first := at.deposit(alice, 10)

	rec := at.call(http.MethodPost, "/deposits", alice, `{"amount":7}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	pending := decode[orderBody](t, rec)

	rec = at.call(http.MethodGet, "/deposits/pending", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode[[]orderBody](t, rec)
	require.Len(t, orders, 1)
	assert.Equal(t, pending.ID, orders[0].ID)

	rec = at.call(http.MethodGet, "/deposits/"+alice.String(), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]orderBody](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)

	rec = at.call(http.MethodGet, "/deposits/"+alice.String()+"/latest", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, decode[orderBody](t, rec).ID)

	rec = at.call(http.MethodGet, "/deposits/"+bob.String()+"/latest", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteDepositWrongBlock(t *testing.T) {
	at := setupAPITest(t)
	at.initialize()
	rec := at.call(http.MethodPost, "/deposits", alice, `{"amount":7}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decode[orderBody](t, rec)

	rec = at.call(http.MethodPost, "/deposits/complete", alice, `{"order_id":"`+order.ID+`","amount":7,"block":99,"memo":"`+order.Memo+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VerificationFailed", decode[errorBody](t, rec).Kind)
}

func TestErrorStatuses(t *testing.T) {
	at := setupAPITest(t)

	rec := at.call(http.MethodGet, "/config", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NotConfigured", decode[errorBody](t, rec).Kind)

	rec = at.call(http.MethodPost, "/init", treasuryID, `{"quorum":101}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidConfig", decode[errorBody](t, rec).Kind)

	at.initialize()

	rec = at.call(http.MethodPost, "/deposits", alice, `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidPayload", decode[errorBody](t, rec).Kind)

	rec = at.call(http.MethodGet, "/proposals/7", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = at.call(http.MethodGet, "/proposals/seven", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = at.call(http.MethodPost, "/deposits", alice, `{"amount":1`+strings.Repeat(" ", 70<<10)+`}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestInitOnlyByTreasuryIdentity(t *testing.T) {
	at := setupAPITest(t)

	rec := at.call(http.MethodPost, "/init", alice, `{"quorum":1,"contribution_days":1,"vote_minutes":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", decode[errorBody](t, rec).Kind)

	rec = at.call(http.MethodGet, "/config", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "a refused init leaves the treasury unconfigured")

	at.initialize()
	rec = at.call(http.MethodGet, "/config", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMutationsNeedToken(t *testing.T) {
	at := setupAPITest(t)
	at.initialize()

	rec := at.call(http.MethodPost, "/deposits", "", `{"amount":7}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decode[errorBody](t, rec).Kind)

	req := httptest.NewRequest(http.MethodPost, "/deposits", strings.NewReader(`{"amount":7}`))
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	at.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := api.NewTokenService("other-secret", "treasury-test")
	token, err := other.Issue(alice, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/deposits", strings.NewReader(`{"amount":7}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	at.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTreasuryAndPayouts(t *testing.T) {
	at := setupAPITest(t)
	at.initialize()

	rec := at.call(http.MethodGet, "/treasury", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"identity":"contract:treasury","account":"acct:contract:treasury"}`, rec.Body.String())

	rec = at.call(http.MethodGet, "/payouts/inflight", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestDevRoutesOnlyWithDevLedger(t *testing.T) {
	engine, err := contract.New(contract.Options{
		State:    contract.NewMemoryState(),
		Ledger:   sdk.NewMemLedger("acct:contract:treasury", 0),
		Treasury: treasuryID,
	})
	require.NoError(t, err)
	defer engine.Close()
	tokens := api.NewTokenService("test-secret", "")
	h, err := api.New(api.Options{Treasury: engine, Identity: treasuryID, Tokens: tokens})
	require.NoError(t, err)

	token, err := tokens.Issue(alice, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/dev/ledger/transfers", strings.NewReader(`{"amount":1,"memo":"1"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTokenService(t *testing.T) {
	tokens := api.NewTokenService("secret", "treasury")

	token, err := tokens.Issue(carol, time.Minute)
	require.NoError(t, err)
	who, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, carol, who)

	expired, err := tokens.Issue(carol, -time.Minute)
	require.NoError(t, err)
	_, err = tokens.Validate(expired)
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	bogus, err := tokens.Issue("nobody", time.Minute)
	require.NoError(t, err)
	_, err = tokens.Validate(bogus)
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	otherIssuer, err := api.NewTokenService("secret", "elsewhere").Issue(carol, time.Minute)
	require.NoError(t, err)
	_, err = tokens.Validate(otherIssuer)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestNewValidation(t *testing.T) {
	_, err := api.New(api.Options{Tokens: api.NewTokenService("s", "")})
	assert.Error(t, err)

	engine, err := contract.New(contract.Options{
		State:    contract.NewMemoryState(),
		Ledger:   sdk.NewMemLedger("acct:contract:treasury", 0),
		Treasury: treasuryID,
	})
	require.NoError(t, err)
	defer engine.Close()
	_, err = api.New(api.Options{Treasury: engine})
	assert.Error(t, err)
}
