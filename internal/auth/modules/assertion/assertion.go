// Package assertion relays authentication to an external credential
// verifier. The two parties exchange signed claim bundles: we send a
// request naming the credentials we need, the verifier posts back the
// attested credentials, and a mapping table turns credential/attribute
// paths into standard attributes.
package assertion

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/FedOAuth/FedOAuth/internal/auth"
	"github.com/FedOAuth/FedOAuth/internal/config"
	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/render"
	"github.com/FedOAuth/FedOAuth/internal/token"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

// Name is the registry/internal name for this backend.
const Name = "assertion"

// How stale a posted result bundle may be.
const resultMaxAge = 10 * time.Minute

type credentialResult struct {
	Status     string            `json:"status"`
	Expiry     int64             `json:"expiry"`
	Attributes map[string]string `json:"attributes"`
}

type resultBundle struct {
	Token       string                      `json:"token"`
	Credentials map[string]credentialResult `json:"credentials"`
}

type requestBundle struct {
	ReturnURL   string            `json:"return_url"`
	Token       string            `json:"token"`
	Nonce       int64             `json:"nonce"`
	Credentials map[string]string `json:"credentials"`
}

type Module struct {
	auth.Base
	cfg      config.AssertionConfig
	signer   *token.Signer
	renderer render.Renderer
}

func New(cfg config.AssertionConfig, base auth.Base, renderer render.Renderer) *Module {
	return &Module{
		Base:     base,
		cfg:      cfg,
		signer:   token.NewSigner(cfg.SharedSecret),
		renderer: renderer,
	}
}

func (m *Module) SelectInfo(url string) auth.SelectInfo {
	return auth.SelectInfo{Text: "External verifier", URL: url}
}

// neededCredentials works out which credentials must be fetched to
// satisfy the requested attributes: the always-retrieve set, whatever
// the username mapping lives in, and the credential half of every
// mapped requested attribute.
func (m *Module) neededCredentials(requested []auth.Attribute) map[string]string {
	names := append([]string{}, m.cfg.AlwaysRetrieve...)

	if cred, _, ok := strings.Cut(m.cfg.UsernameMapping, "/"); ok {
		names = append(names, cred)
	}

	for _, attr := range requested {
		mapping, ok := m.cfg.AttributeMapping[string(attr)]
		if !ok {
			continue
		}
		if cred, _, ok := strings.Cut(mapping, "/"); ok {
			names = append(names, cred)
		}
	}

	request := map[string]string{}
	for _, name := range names {
		path, ok := m.cfg.KnownCredentials[name]
		if !ok {
			logger.Error("credential was mapped to but is not known", map[string]any{
				"module": Name, "credential": name,
			})
			continue
		}
		request[name] = path
	}
	return request
}

func (m *Module) Authenticate(trc *transaction.Context, loginTarget, formURL string, requested []auth.Attribute) auth.Result {
	req := trc.Request()

	if req.Method == http.MethodPost {
		return m.finishLogin(trc)
	}

	bundle := requestBundle{
		ReturnURL:   formURL + "?transaction=" + trc.ID(),
		Token:       trc.ID(),
		Nonce:       time.Now().Unix(),
		Credentials: m.neededCredentials(requested),
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		logger.Error("failed to build credential request", map[string]any{
			"module": Name, "error": err.Error(),
		})
		return auth.ResultCancelled{}
	}

	data := map[string]any{
		"request":      m.signer.Sign(string(raw)),
		"verifier_url": m.cfg.VerifierURL,
	}
	return auth.ResultResponse{Respond: func(c *gin.Context) {
		m.renderer.Render(c, http.StatusOK, "assertion.html", data)
	}}
}

func (m *Module) finishLogin(trc *transaction.Context) auth.Result {
	raw, err := m.signer.Verify(trc.Request().PostFormValue("result"), resultMaxAge)
	if err != nil {
		logger.Warn("invalid result bundle", map[string]any{
			"module": Name, "error": err.Error(),
		})
		return auth.ResultCancelled{}
	}

	var result resultBundle
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		logger.Warn("malformed result bundle", map[string]any{
			"module": Name, "error": err.Error(),
		})
		return auth.ResultCancelled{}
	}

	// The bundle names the transaction it was requested for; a bundle
	// replayed into any other transaction is rejected.
	if result.Token != trc.ID() {
		logger.Warn("result bundle for different transaction", map[string]any{
			"module": Name,
		})
		return auth.ResultCancelled{}
	}

	needed := map[string]bool{}
	for _, name := range m.cfg.RequiredCredentials {
		needed[name] = true
	}

	credentials := map[string]map[string]string{}
	now := time.Now().Unix()
	for name, cred := range result.Credentials {
		if cred.Status != "OK" {
			logger.Info("credential not OK", map[string]any{
				"module": Name, "credential": name, "status": cred.Status,
			})
			continue
		}
		if cred.Expiry < now {
			logger.Info("credential expired", map[string]any{
				"module": Name, "credential": name,
			})
			continue
		}
		delete(needed, name)
		credentials[name] = cred.Attributes
	}

	if len(needed) > 0 {
		return auth.ResultCancelled{}
	}

	username, err := followMapping(m.cfg.UsernameMapping, credentials)
	if err != nil {
		logger.Warn("username mapping unresolvable", map[string]any{
			"module": Name, "mapping": m.cfg.UsernameMapping,
		})
		return auth.ResultCancelled{}
	}

	attrs := map[auth.Attribute]string{}
	for attr, mapping := range m.cfg.AttributeMapping {
		v, err := followMapping(mapping, credentials)
		if err != nil {
			continue
		}
		attrs[auth.Attribute(attr)] = v
	}

	id := &auth.Identity{
		Username:            username,
		Attributes:          attrs,
		MultiFactor:         true,
		MultiFactorPhysical: true,
	}
	if err := m.SaveSuccess(trc, id, true); err != nil {
		logger.Error("failed to save login", map[string]any{
			"module": Name, "error": err.Error(),
		})
		return auth.ResultCancelled{}
	}
	return auth.ResultSuccess{}
}

// followMapping resolves a "credential/attribute" path against the
// attested credentials. A mapping without a slash is a literal.
func followMapping(mapping string, credentials map[string]map[string]string) (string, error) {
	cred, attr, ok := strings.Cut(mapping, "/")
	if !ok {
		return mapping, nil
	}
	attrs, ok := credentials[cred]
	if !ok {
		return "", auth.ErrNotRequestedAttribute
	}
	v, ok := attrs[attr]
	if !ok {
		return "", auth.ErrNotRequestedAttribute
	}
	return v, nil
}

// AuthenticateAPI supports the multi-step machine flow: the first call
// returns the signed credential request as partial state, the second
// call echoes it together with the verifier's result bundle.
func (m *Module) AuthenticateAPI(trc *transaction.Context, values map[string]string) auth.APIResult {
	if result, ok := values["result"]; ok && result != "" {
		switch m.verifyAPIResult(trc, result).(type) {
		case auth.ResultSuccess:
			return auth.APISuccess{}
		default:
			return auth.APIFailure{}
		}
	}

	bundle := requestBundle{
		Token:       trc.ID(),
		Nonce:       time.Now().Unix(),
		Credentials: m.neededCredentials(nil),
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return auth.APIFailure{}
	}
	return auth.APIPartial{State: map[string]string{
		"request":      m.signer.Sign(string(raw)),
		"verifier_url": m.cfg.VerifierURL,
	}}
}

func (m *Module) verifyAPIResult(trc *transaction.Context, signed string) auth.Result {
	req := trc.Request()
	req.PostForm = map[string][]string{"result": {signed}}
	return m.finishLogin(trc)
}

func (m *Module) Username(trc *transaction.Context) (string, error) {
	id, err := m.User(trc)
	if err != nil {
		return "", err
	}
	return id.Username, nil
}

func (m *Module) Attribute(trc *transaction.Context, attr auth.Attribute) (string, error) {
	id, err := m.User(trc)
	if err != nil {
		return "", err
	}
	v, err := id.Attribute(attr)
	if err != nil {
		if _, mapped := m.cfg.AttributeMapping[string(attr)]; mapped {
			// Mapped, but the credential carrying it was never fetched.
			return "", auth.ErrNotRequestedAttribute
		}
		return "", err
	}
	return v, nil
}

func (m *Module) Attributes(trc *transaction.Context, attrs []auth.Attribute) map[auth.Attribute]string {
	return auth.BestEffortAttributes(m, trc, attrs)
}

func (m *Module) Groups(trc *transaction.Context) ([]string, error) {
	if !m.LoggedIn(trc) {
		return nil, auth.ErrUnauthorized
	}
	return []string{}, nil
}

func (m *Module) CLAs(trc *transaction.Context) ([]string, error) {
	return []string{}, nil
}

func (m *Module) UsedMultiFactor(*transaction.Context) bool         { return true }
func (m *Module) UsedMultiFactorPhysical(*transaction.Context) bool { return true }
func (m *Module) UsedPhishingResistant(*transaction.Context) bool   { return false }

func (m *Module) WillingToSignForEmail(trc *transaction.Context, email string) (bool, error) {
	username, err := m.Username(trc)
	if err != nil {
		return false, err
	}
	return m.WillingToSign(trc, email, username)
}
