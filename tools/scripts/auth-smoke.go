// Package main provides a CI-friendly HTTP smoke test for the wicket
// auth surface.
//
// It validates:
//   - register -> 201
//   - login -> token pair
//   - /me with the access token
//   - refresh -> fresh access token, same refresh token
//   - logout -> refresh now rejected
//   - forgot-password -> uniform 200
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type loginResult struct {
	Account struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"account"`
	Tokens tokenPair `json:"tokens"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	email := fmt.Sprintf("smoke-%d@example.com", rand.Int63())
	password := "a sturdy smoke password"

	client := &http.Client{Timeout: *timeout}
	ctx := context.Background()

	step(*verbose, "register %s", email)
	status, body := post(ctx, client, *baseURL+"/auth/register", map[string]any{
		"email":    email,
		"password": password,
	})
	if status != http.StatusCreated {
		fatalf("register: status %d body %s", status, body)
	}

	step(*verbose, "login")
	status, body = post(ctx, client, *baseURL+"/auth/login", map[string]any{
		"email":    email,
		"password": password,
	})
	if status != http.StatusOK {
		fatalf("login: status %d body %s", status, body)
	}
	var login loginResult
	mustDecode(body, &login)
	if login.Tokens.AccessToken == "" || login.Tokens.RefreshToken == "" {
		fatalf("login: incomplete token pair in %s", body)
	}

	step(*verbose, "me")
	status, body = get(ctx, client, *baseURL+"/me", login.Tokens.AccessToken)
	if status != http.StatusOK {
		fatalf("me: status %d body %s", status, body)
	}

	step(*verbose, "refresh")
	status, body = post(ctx, client, *baseURL+"/auth/refresh", map[string]any{
		"refresh_token": login.Tokens.RefreshToken,
	})
	if status != http.StatusOK {
		fatalf("refresh: status %d body %s", status, body)
	}
	var refreshed struct {
		Tokens tokenPair `json:"tokens"`
	}
	mustDecode(body, &refreshed)
	if refreshed.Tokens.AccessToken == "" {
		fatalf("refresh: missing access token in %s", body)
	}
	if refreshed.Tokens.RefreshToken != login.Tokens.RefreshToken {
		fatalf("refresh: token rotated unexpectedly")
	}

	step(*verbose, "logout")
	status, body = post(ctx, client, *baseURL+"/auth/logout", map[string]any{
		"refresh_token": login.Tokens.RefreshToken,
	})
	if status != http.StatusNoContent {
		fatalf("logout: status %d body %s", status, body)
	}

	step(*verbose, "refresh after logout must fail")
	status, body = post(ctx, client, *baseURL+"/auth/refresh", map[string]any{
		"refresh_token": login.Tokens.RefreshToken,
	})
	if status != http.StatusUnauthorized {
		fatalf("refresh after logout: status %d body %s", status, body)
	}

	step(*verbose, "forgot-password is uniform")
	status, body = post(ctx, client, *baseURL+"/auth/forgot-password", map[string]any{
		"email": "nobody-" + email,
	})
	if status != http.StatusOK {
		fatalf("forgot-password: status %d body %s", status, body)
	}

	fmt.Println("auth smoke: OK")
}

func post(ctx context.Context, client *http.Client, url string, payload map[string]any) (int, []byte) {
	b, err := json.Marshal(payload)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		fatalf("request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}

func get(ctx context.Context, client *http.Client, url, bearer string) (int, []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fatalf("request %s: %v", url, err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return do(client, req)
}

func do(client *http.Client, req *http.Request) (int, []byte) {
	res, err := client.Do(req)
	if err != nil {
		fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		fatalf("read body: %v", err)
	}
	return res.StatusCode, body
}

func mustDecode(body []byte, v any) {
	if err := json.Unmarshal(body, v); err != nil {
		fatalf("decode %s: %v", body, err)
	}
}

func step(verbose bool, format string, args ...any) {
	if verbose {
		fmt.Printf("-> "+format+"\n", args...)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "auth smoke: "+format+"\n", args...)
	os.Exit(1)
}
