package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchSuccessOnOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f, err := Open(DefaultConfig("testagent", 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	res := f.Fetch(context.Background(), srv.URL)
	if !res.Success {
		t.Fatal("expected success on 200")
	}
	if res.Body != "<html></html>" {
		t.Errorf("unexpected body %q", res.Body)
	}
}

func TestFetchFailsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, err := Open(DefaultConfig("testagent", 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	res := f.Fetch(context.Background(), srv.URL)
	if res.Success {
		t.Fatal("expected failure on 404")
	}
}

func TestFetchSwallowsConnectionError(t *testing.T) {
	f, err := Open(DefaultConfig("testagent", 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	res := f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	if res.Success {
		t.Fatal("expected failure, not panic or error, on connection refusal")
	}
}

func TestGateLimitsConcurrency(t *testing.T) {
	var inFlight, maxSeen atomic.Int64
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			old := maxSeen.Load()
			if n <= old || maxSeen.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
	}))
	defer srv.Close()

	f, err := Open(DefaultConfig("testagent", 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			f.Fetch(context.Background(), srv.URL)
			done <- struct{}{}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	if got := maxSeen.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent fetches, saw %d", got)
	}

	close(release)
	for i := 0; i < 5; i++ {
		<-done
	}
}

func TestResizeGrowUnblocksWaiters(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	f, err := Open(DefaultConfig("testagent", 1), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	started := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			started <- struct{}{}
			f.Fetch(context.Background(), srv.URL)
		}()
	}
	<-started

	time.Sleep(50 * time.Millisecond)
	// only 1 permit exists; growing to 3 should let the other two proceed.
	f.Resize(3)
	time.Sleep(50 * time.Millisecond)
	if f.gate.inFlight != 3 {
		t.Errorf("expected all 3 fetches in flight after resize, got %d", f.gate.inFlight)
	}
	close(release)
}

func TestResizeShrinkDoesNotCancelInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	f, err := Open(DefaultConfig("testagent", 3), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	resultCh := make(chan Result, 3)
	for i := 0; i < 3; i++ {
		go func() {
			resultCh <- f.Fetch(context.Background(), srv.URL)
		}()
	}
	time.Sleep(50 * time.Millisecond)

	f.Resize(1)
	close(release)

	for i := 0; i < 3; i++ {
		res := <-resultCh
		if !res.Success {
			t.Error("shrink must not cancel an in-flight fetch")
		}
	}
}
