package router_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellowallet/internal/cache"
	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/http/controllers"
	"github.com/dropDatabas3/hellowallet/internal/http/router"
	"github.com/dropDatabas3/hellowallet/internal/issuance"
	"github.com/dropDatabas3/hellowallet/internal/provider"
	"github.com/dropDatabas3/hellowallet/internal/rate"
	"github.com/dropDatabas3/hellowallet/internal/security/sharebox"
	"github.com/dropDatabas3/hellowallet/internal/session"
	"github.com/dropDatabas3/hellowallet/internal/signer"
	"github.com/dropDatabas3/hellowallet/internal/signing"
	"github.com/dropDatabas3/hellowallet/internal/store/memory"
	"github.com/dropDatabas3/hellowallet/internal/verifier"
)

// env armado en memoria: stubs de provider y signer, store en memoria y el
// router real con todos los middlewares. Lo más cerca de producción que se
// puede llegar sin red.
type env struct {
	srv    *httptest.Server
	store  *memory.Store
	remote *signer.Stub
}

func newEnv(t *testing.T) *env {
	t.Helper()

	sharebox.UnsafeResetForTests()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(90 + i)
	}
	os.Setenv("SHAREBOX_MASTER_KEY", base64.StdEncoding.EncodeToString(raw))

	st := memory.New()
	remote := signer.NewStub()

	sessions, err := session.NewManager(st, session.Config{TTL: time.Hour})
	require.NoError(t, err)

	verify := verifier.New(verifier.Deps{
		Provider:     provider.NewStub(),
		Cache:        cache.NewMemory("test:"),
		Store:        st,
		BeginLimiter: rate.NewMemoryLimiter(3, time.Hour),
	})
	issue := issuance.New(issuance.Deps{Store: st, Signer: remote})
	sign := signing.New(signing.Deps{
		Store:    st,
		Sessions: sessions,
		Signer:   remote,
		Limiter:  rate.NewMemoryLimiter(100, time.Minute),
	})

	handler := router.New(router.Deps{
		Controllers: controllers.Controllers{
			Verify:  controllers.NewVerifyController(verify),
			Account: controllers.NewAccountController(issue, sessions),
			Sign:    controllers.NewSignController(sign),
			Session: controllers.NewSessionController(sessions),
			Health:  controllers.NewHealthController(st),
		},
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &env{srv: srv, store: st, remote: remote}
}

func (e *env) post(t *testing.T, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

type errEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type resolveOut struct {
	Account struct {
		Address   string `json:"address"`
		KeyHandle string `json:"key_handle"`
		PublicKey string `json:"public_key"`
	} `json:"account"`
	Session struct {
		Token string `json:"token"`
	} `json:"session"`
	IsNew       bool   `json:"is_new"`
	ClientShare string `json:"client_share"`
}

// login corre begin+complete+resolve y retorna la respuesta de resolve.
func (e *env) login(t *testing.T, email, code string) resolveOut {
	t.Helper()

	resp, body := e.post(t, "/v1/verify/begin", map[string]string{"email": email}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "begin: %s", body)
	var begin struct {
		ChallengeID string `json:"challenge_id"`
	}
	require.NoError(t, json.Unmarshal(body, &begin))
	require.NotEmpty(t, begin.ChallengeID)

	resp, body = e.post(t, "/v1/verify/complete", map[string]string{
		"challenge_id": begin.ChallengeID,
		"code":         code,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "complete: %s", body)
	var complete struct {
		AssertionID string `json:"assertion_id"`
	}
	require.NoError(t, json.Unmarshal(body, &complete))
	require.NotEmpty(t, complete.AssertionID)

	resp, body = e.post(t, "/v1/accounts/resolve", map[string]string{"assertion_id": complete.AssertionID}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "resolve: %s", body)
	var out resolveOut
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func testDigestHex() string {
	sum := sha256.Sum256([]byte("transferencia de prueba"))
	return hex.EncodeToString(sum[:])
}

func TestEndToEnd_FirstLoginAndSign(t *testing.T) {
	e := newEnv(t)

	// Primer login: la cuenta se crea y la client share viaja una sola vez.
	first := e.login(t, "a@example.com", "123456")
	require.True(t, first.IsNew)
	require.NotEmpty(t, first.ClientShare)
	require.Regexp(t, `^0x[0-9a-fA-F]{40}$`, first.Account.Address)
	require.NotEmpty(t, first.Account.KeyHandle)
	require.NotEmpty(t, first.Session.Token)

	// Firma con la sesión y la share recién entregadas.
	resp, body := e.post(t, "/v1/sign",
		map[string]string{"digest": "0x" + testDigestHex()},
		map[string]string{
			"Authorization":  "Bearer " + first.Session.Token,
			"X-Client-Share": first.ClientShare,
		})
	require.Equal(t, http.StatusOK, resp.StatusCode, "sign: %s", body)
	var signed struct {
		Address   string `json:"address"`
		Signature string `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(body, &signed))
	require.Equal(t, first.Account.Address, signed.Address)
	// r||s||v: 65 bytes
	require.Len(t, signed.Signature, 2+65*2)

	// Segundo login: misma cuenta, sin client share, sin re-mint.
	second := e.login(t, "A@Example.com ", "123456")
	require.False(t, second.IsNew)
	require.Empty(t, second.ClientShare)
	require.Equal(t, first.Account.KeyHandle, second.Account.KeyHandle)
	require.Equal(t, 1, e.remote.MintCalls)
}

func TestEndToEnd_WrongCodeRejected(t *testing.T) {
	e := newEnv(t)

	resp, body := e.post(t, "/v1/verify/begin", map[string]string{"email": "b@example.com"}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var begin struct {
		ChallengeID string `json:"challenge_id"`
	}
	require.NoError(t, json.Unmarshal(body, &begin))

	resp, body = e.post(t, "/v1/verify/complete", map[string]string{
		"challenge_id": begin.ChallengeID,
		"code":         "000000",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var envlp errEnvelope
	require.NoError(t, json.Unmarshal(body, &envlp))
	require.Equal(t, "invalid_or_expired_code", envlp.Code)
}

func TestEndToEnd_AssertionReplayRejected(t *testing.T) {
	e := newEnv(t)

	resp, body := e.post(t, "/v1/verify/begin", map[string]string{"email": "c@example.com"}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var begin struct {
		ChallengeID string `json:"challenge_id"`
	}
	require.NoError(t, json.Unmarshal(body, &begin))

	resp, body = e.post(t, "/v1/verify/complete", map[string]string{
		"challenge_id": begin.ChallengeID,
		"code":         "123456",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var complete struct {
		AssertionID string `json:"assertion_id"`
	}
	require.NoError(t, json.Unmarshal(body, &complete))

	resp, _ = e.post(t, "/v1/accounts/resolve", map[string]string{"assertion_id": complete.AssertionID}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Replay: la misma assertion no emite una segunda sesión.
	resp, body = e.post(t, "/v1/accounts/resolve", map[string]string{"assertion_id": complete.AssertionID}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var envlp errEnvelope
	require.NoError(t, json.Unmarshal(body, &envlp))
	require.Equal(t, "assertion_replayed", envlp.Code)
}

func TestEndToEnd_CorruptedShareBlocksSigning(t *testing.T) {
	e := newEnv(t)

	out := e.login(t, "d@example.com", "123456")
	require.True(t, out.IsNew)

	identity, err := e.store.Identities().GetByEmail(context.Background(), "d@example.com")
	require.NoError(t, err)
	require.True(t, e.store.CorruptShare(identity.ID, repository.ShareRoleServer))

	before := e.remote.SignCalls
	resp, body := e.post(t, "/v1/sign",
		map[string]string{"digest": testDigestHex()},
		map[string]string{
			"Authorization":  "Bearer " + out.Session.Token,
			"X-Client-Share": out.ClientShare,
		})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode, "sign: %s", body)
	var envlp errEnvelope
	require.NoError(t, json.Unmarshal(body, &envlp))
	require.Equal(t, "server_share_unavailable", envlp.Code)
	// La falla es anterior a cualquier llamada remota.
	require.Equal(t, before, e.remote.SignCalls)
}

func TestEndToEnd_RevokeInvalidatesSession(t *testing.T) {
	e := newEnv(t)

	out := e.login(t, "e@example.com", "123456")
	auth := map[string]string{"Authorization": "Bearer " + out.Session.Token}

	resp, _ := e.post(t, "/v1/session/revoke", struct{}{}, auth)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := e.post(t, "/v1/sign",
		map[string]string{"digest": testDigestHex()},
		map[string]string{
			"Authorization":  "Bearer " + out.Session.Token,
			"X-Client-Share": out.ClientShare,
		})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "sign: %s", body)

	// Revoke es idempotente.
	resp, _ = e.post(t, "/v1/session/revoke", struct{}{}, auth)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestEndToEnd_SignRequiresAuthAndShare(t *testing.T) {
	e := newEnv(t)

	// Sin token.
	resp, body := e.post(t, "/v1/sign", map[string]string{"digest": testDigestHex()}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s", body)

	out := e.login(t, "f@example.com", "123456")

	// Sin header de share.
	resp, body = e.post(t, "/v1/sign",
		map[string]string{"digest": testDigestHex()},
		map[string]string{"Authorization": "Bearer " + out.Session.Token})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "%s", body)

	// Digest que no es hex.
	resp, body = e.post(t, "/v1/sign",
		map[string]string{"digest": "no-hex"},
		map[string]string{
			"Authorization":  "Bearer " + out.Session.Token,
			"X-Client-Share": out.ClientShare,
		})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "%s", body)
	var envlp errEnvelope
	require.NoError(t, json.Unmarshal(body, &envlp))
	require.Equal(t, "invalid_digest", envlp.Code)
	require.Equal(t, 0, e.remote.SignCalls)
}

func TestHealthEndpoints(t *testing.T) {
	e := newEnv(t)

	resp, err := e.srv.Client().Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = e.srv.Client().Get(e.srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Todo pasa por los middlewares: el request ID tiene que volver.
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
