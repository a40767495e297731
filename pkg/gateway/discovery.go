package gateway

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	discoveryPath    = "/api/gateway"
	discoveryTimeout = 3 * time.Second
	discoveryMaxSize = 1 << 20 // 1 MiB.
	protocolVersion  = "6"
)

// discoveryResponse is the JSON body returned by the discovery endpoint.
type discoveryResponse struct {
	URL string `json:"url"`
}

// discoveryOptions configures [Discover].
type discoveryOptions struct {
	httpClient  *http.Client
	bearerToken string
	err         error
}

// DiscoverOpt configures a [Discover] call.
type DiscoverOpt func(*discoveryOptions)

// WithHTTPClient overrides the HTTP client used for the discovery request,
// e.g. to inject timeouts or transport-level instrumentation in tests.
func WithHTTPClient(c *http.Client) DiscoverOpt {
	return func(o *discoveryOptions) { o.httpClient = c }
}

// WithBearerToken attaches a pre-generated bearer token to the discovery
// request's Authorization header.
func WithBearerToken(token string) DiscoverOpt {
	return func(o *discoveryOptions) { o.bearerToken = token }
}

// WithAppCredentials signs a short-lived RS256 JWT from clientID and
// privateKey (a PEM-encoded RSA private key) and attaches it as a bearer
// token, the way GitHub App authentication does.
func WithAppCredentials(clientID, privateKey string) DiscoverOpt {
	return func(o *discoveryOptions) {
		token, err := generateAppJWT(clientID, privateKey)
		if err != nil {
			o.err = err
			return
		}
		o.bearerToken = token
	}
}

// generateAppJWT builds a short-lived RS256-signed JSON Web Token identifying
// an application by its client ID, the way GitHub Apps authenticate:
// https://docs.github.com/en/apps/creating-github-apps/authenticating-with-a-github-app/generating-a-json-web-token-jwt-for-a-github-app
func generateAppJWT(clientID, privateKey string) (string, error) {
	if clientID == "" {
		return "", errors.New("missing credential: client_id")
	}
	if privateKey == "" {
		return "", errors.New("missing credential: private_key")
	}

	privateKey = strings.ReplaceAll(privateKey, "\\n", "\n")
	block, _ := pem.Decode([]byte(privateKey))
	if block == nil {
		return "", errors.New("failed to decode PEM private key")
	}

	pk, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(10 * time.Minute).Unix(),
		"iss": clientID,
	})

	signed, err := token.SignedString(pk)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// Discover asks host for its gateway endpoint over HTTPS, and returns a
// WebSocket URL augmented with the query parameters this package's
// connection handling expects: protocol version, JSON encoding, and
// zlib-stream transport compression.
func Discover(ctx context.Context, host string, opts ...DiscoverOpt) (string, error) {
	o := &discoveryOptions{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(o)
	}
	if o.err != nil {
		return "", fmt.Errorf("failed to prepare discovery request credentials: %w", o.err)
	}

	apiURL := "https://" + strings.TrimSuffix(host, "/") + discoveryPath

	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to construct discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if o.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+o.bearerToken)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send discovery request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, discoveryMaxSize))
	if err != nil {
		return "", fmt.Errorf("failed to read discovery response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", unknownEndpointErr(resp.StatusCode)
	}

	var dr discoveryResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return "", jsonErr(err)
	}

	return augmentGatewayURL(dr.URL)
}

// augmentGatewayURL appends the protocol version, encoding, and compression
// query parameters the gateway requires to the discovered base URL.
func augmentGatewayURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", jsonErr(fmt.Errorf("invalid gateway url %q: %w", rawURL, err))
	}

	q := u.Query()
	q.Set("v", protocolVersion)
	q.Set("encoding", "json")
	q.Set("compress", "zlib-stream")
	u.RawQuery = q.Encode()

	return u.String(), nil
}
