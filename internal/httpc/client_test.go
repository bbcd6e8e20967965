package httpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"running":true,"ticks":42}`))
		case "/bad":
			w.Write([]byte(`{`))
		default:
			http.Error(w, "missing", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var got struct {
		Running bool   `json:"running"`
		Ticks   uint64 `json:"ticks"`
	}
	if err := GetJSON(context.Background(), srv.URL+"/ok", &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if !got.Running || got.Ticks != 42 {
		t.Errorf("got %+v", got)
	}

	err := GetJSON(context.Background(), srv.URL+"/nope", &got)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("error = %v, want StatusError 404", err)
	}

	if err := GetJSON(context.Background(), srv.URL+"/bad", &got); err == nil {
		t.Error("GetJSON() should fail on malformed body")
	}
}

func TestGetJSONCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var v map[string]any
	if err := GetJSON(ctx, "http://127.0.0.1:1/", &v); err == nil {
		t.Error("GetJSON() should fail with a cancelled context")
	}
}
