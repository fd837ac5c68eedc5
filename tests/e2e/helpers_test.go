package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// tokenResponse mirrors the body returned by register and login.
type tokenResponse struct {
	Token string `json:"token"`
	User  struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		Role        struct {
			Name string `json:"name"`
		} `json:"role"`
	} `json:"user"`
}

func postJSON(path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return http.Post(baseURL+path, "application/json", bytes.NewReader(b))
}

func getWithToken(path, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func decodeInto(resp *http.Response, out any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func register(email, password, displayName string) (tokenResponse, int, error) {
	resp, err := postJSON("/api/auth/register", map[string]string{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	})
	if err != nil {
		return tokenResponse{}, 0, err
	}
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		return tokenResponse{}, resp.StatusCode, nil
	}
	var tr tokenResponse
	if err := decodeInto(resp, &tr); err != nil {
		return tokenResponse{}, resp.StatusCode, fmt.Errorf("decode register response: %w", err)
	}
	return tr, resp.StatusCode, nil
}

func login(email, password string) (tokenResponse, int, error) {
	resp, err := postJSON("/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return tokenResponse{}, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return tokenResponse{}, resp.StatusCode, nil
	}
	var tr tokenResponse
	if err := decodeInto(resp, &tr); err != nil {
		return tokenResponse{}, resp.StatusCode, fmt.Errorf("decode login response: %w", err)
	}
	return tr, resp.StatusCode, nil
}
