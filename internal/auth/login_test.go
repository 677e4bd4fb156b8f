package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
)

func jarClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar}
}

func TestLogin_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1"})
			fmt.Fprint(w, `{"query": {"tokens": {"logintoken": "tok123"}}}`)
		case http.MethodPost:
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}
			if r.PostForm.Get("lgtoken") != "tok123" {
				t.Errorf("lgtoken = %q", r.PostForm.Get("lgtoken"))
			}
			if r.PostForm.Get("lgname") != "bot" {
				t.Errorf("lgname = %q", r.PostForm.Get("lgname"))
			}
			fmt.Fprint(w, `{"login": {"result": "Success"}}`)
		}
	}))
	defer server.Close()

	err := Login(context.Background(), jarClient(t), server.URL, Credentials{Username: "bot", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"query": {"tokens": {"logintoken": "tok123"}}}`)
			return
		}
		fmt.Fprint(w, `{"login": {"result": "Failed", "reason": "Incorrect password"}}`)
	}))
	defer server.Close()

	err := Login(context.Background(), jarClient(t), server.URL, Credentials{Username: "bot", Password: "bad"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLogin_RequiresJar(t *testing.T) {
	err := Login(context.Background(), &http.Client{}, "http://example.org", Credentials{})
	if err == nil {
		t.Fatal("expected error for jarless client")
	}
}

func TestResolvePassword_FlagWins(t *testing.T) {
	got, err := ResolvePassword("bot", "explicit")
	if err != nil || got != "explicit" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestResolvePassword_Env(t *testing.T) {
	t.Setenv("WIKIMIRROR_PASSWORD", "from-env")
	got, err := ResolvePassword("bot", "")
	if err != nil || got != "from-env" {
		t.Errorf("got %q, %v", got, err)
	}
}
