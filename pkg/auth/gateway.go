package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const maxResponseBytes = 1 << 20

type signinRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type signinResponse struct {
	Token string `json:"token"`
}

// TokenPublisher distributes a freshly committed token.
type TokenPublisher interface {
	PublishToken(token entities.Token) error
}

// Gateway signs in against the controller server and distributes the resulting token.
type Gateway struct {
	store      *TokenStore
	publisher  TokenPublisher
	client     *http.Client
	signinPath string
	log        *logrus.Entry

	credentialsMu sync.Mutex
	credentials   *entities.Credentials

	// exchangeMu keeps commit and publish of one exchange together.
	exchangeMu sync.Mutex
}

func NewGateway(store *TokenStore, publisher TokenPublisher, conf entities.AuthConfig, log *logrus.Entry) *Gateway {
	return &Gateway{
		store:      store,
		publisher:  publisher,
		client:     &http.Client{Timeout: conf.Timeout},
		signinPath: conf.SigninPath,
		log:        log,
	}
}

// Authenticate retains credentials for later refreshes and runs the sign-in exchange.
func (g *Gateway) Authenticate(ctx context.Context, credentials entities.Credentials) (entities.Token, error) {
	g.UpdateCredentials(credentials)
	return g.exchange(ctx, credentials)
}

// RefreshAndRepublish repeats the exchange with the stored credentials.
func (g *Gateway) RefreshAndRepublish(ctx context.Context) (entities.Token, error) {
	g.credentialsMu.Lock()
	stored := g.credentials
	g.credentialsMu.Unlock()
	if stored == nil {
		return "", errors.Wrap(entities.ErrConfigurationIncomplete, "no stored credentials to refresh with")
	}
	return g.exchange(ctx, *stored)
}

// UpdateCredentials replaces the stored credentials without signing in.
func (g *Gateway) UpdateCredentials(credentials entities.Credentials) {
	g.credentialsMu.Lock()
	g.credentials = &credentials
	g.credentialsMu.Unlock()
	g.store.SetConnectionParameters(credentials.ConnectionParameters())
}

func (g *Gateway) exchange(ctx context.Context, credentials entities.Credentials) (entities.Token, error) {
	g.exchangeMu.Lock()
	defer g.exchangeMu.Unlock()

	token, err := g.signin(ctx, credentials)
	if err != nil {
		g.log.Errorf("sign-in as %q failed: %v", credentials.Username, err)
		return "", err
	}

	// Commit strictly before publishing.
	g.store.SetToken(token)
	if err := g.publisher.PublishToken(token); err != nil {
		g.log.Errorf("token stored but not published: %v", err)
	} else {
		g.log.Info("token refreshed and published")
	}
	return token, nil
}

func (g *Gateway) signin(ctx context.Context, credentials entities.Credentials) (entities.Token, error) {
	body, err := json.Marshal(signinRequest{Name: credentials.Username, Password: credentials.Password})
	if err != nil {
		return "", errors.Wrap(err, "encode sign-in request")
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, SigninURL(credentials.Host, g.signinPath), bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build sign-in request")
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := g.client.Do(request)
	if err != nil {
		return "", errors.Wrap(err, "sign-in request")
	}
	defer response.Body.Close()

	content, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return "", errors.Wrap(err, "read sign-in response")
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return "", &entities.AuthError{Reason: fmt.Sprintf("status %d", response.StatusCode)}
	}

	var decoded signinResponse
	if err := json.Unmarshal(content, &decoded); err != nil {
		return "", &entities.AuthError{Reason: "response is not JSON"}
	}
	if strings.TrimSpace(decoded.Token) == "" {
		return "", &entities.AuthError{Reason: "response has no token"}
	}
	return entities.Token(decoded.Token), nil
}

// SigninURL joins the host and sign-in path, defaulting to http when no scheme is given.
func SigninURL(host, path string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host + "/" + strings.TrimLeft(path, "/")
}
