// Package e2e drives black-box scenarios against a running sanctum server.
//
// The suite needs SANCTUM_E2E_URL pointing at the server and
// SANCTUM_E2E_SIGNING_KEY matching the server's JWT key so steps can mint
// therapist tokens. Scenarios avoid assuming seeded data; they exercise the
// gate decisions that hold on any fresh deployment.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext carries HTTP state across the steps of one scenario.
type TestContext struct {
	BaseURL    string
	SigningKey string
	Issuer     string
	Audience   string

	client      *http.Client
	accessToken string
	therapistID string

	lastStatus int
	lastBody   []byte
	lastJSON   map[string]interface{}
}

// NewTestContext builds a context for one scenario run.
func NewTestContext(baseURL, signingKey, issuer, audience string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SigningKey: signingKey,
		Issuer:     issuer,
		Audience:   audience,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Reset clears scenario state. Called before every scenario.
func (tc *TestContext) Reset() {
	tc.accessToken = ""
	tc.therapistID = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastJSON = nil
}

// Authenticate mints a signed therapist token for a fresh identity.
func (tc *TestContext) Authenticate(role string) error {
	tc.therapistID = uuid.NewString()
	now := time.Now()
	claims := jwt.MapClaims{
		"therapist_id": tc.therapistID,
		"role":         role,
		"iss":          tc.Issuer,
		"aud":          tc.Audience,
		"iat":          now.Unix(),
		"exp":          now.Add(time.Hour).Unix(),
		"jti":          uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tc.SigningKey))
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	tc.accessToken = token
	return nil
}

// ClearAuthentication drops the bearer token for unauthenticated steps.
func (tc *TestContext) ClearAuthentication() {
	tc.accessToken = ""
}

// TherapistID returns the identity minted by Authenticate.
func (tc *TestContext) TherapistID() string {
	return tc.therapistID
}

// POST sends a JSON body and captures the response.
func (tc *TestContext) POST(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, tc.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

// GET sends a request with optional extra headers and captures the response.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	if tc.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastJSON = nil
	if len(tc.lastBody) > 0 {
		var decoded map[string]interface{}
		if err := json.Unmarshal(tc.lastBody, &decoded); err == nil {
			tc.lastJSON = decoded
		}
	}
	return nil
}

// GetLastResponseStatus returns the status code of the last response.
func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

// GetLastResponseBody returns the raw body of the last response.
func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField resolves a dotted path ("view.policy") in the last JSON
// response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	if tc.lastJSON == nil {
		return nil, fmt.Errorf("last response was not a JSON object: %s", tc.lastBody)
	}
	var current interface{} = tc.lastJSON
	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		current, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not present in response: %s", field, tc.lastBody)
		}
	}
	return current, nil
}

// ResponseContains reports whether the dotted field is present.
func (tc *TestContext) ResponseContains(field string) bool {
	_, err := tc.GetResponseField(field)
	return err == nil
}
