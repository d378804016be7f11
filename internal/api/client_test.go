package api_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"vidsub/internal/api"
	"vidsub/internal/pipeline"
	"vidsub/internal/services"
)

func TestClientRoundTrip(t *testing.T) {
	ctrl := &fakeController{}
	srv := httptest.NewServer(api.NewRouter(api.Options{Controller: ctrl, Token: "tok"}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "tok")
	ctx := context.Background()

	id, err := client.Start(ctx, api.StartRunRequest{Input: "/v/a.mp4", SRT: boolPtr(true)})
	if err != nil || id != "run-1" {
		t.Fatalf("Start = %q, %v", id, err)
	}
	status, err := client.Status(ctx)
	if err != nil || status.Status != string(pipeline.StatusProbingDuration) || !status.Active {
		t.Fatalf("Status = %+v, %v", status, err)
	}
	if _, err := client.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	runs, err := client.History(ctx, 5)
	if err != nil || len(runs) != 0 {
		t.Fatalf("History = %v, %v", runs, err)
	}
}

func TestClientMapsErrors(t *testing.T) {
	ctrl := &fakeController{
		startErr: services.Wrap(services.ErrBusy, "", "start", "a run is already in progress", nil),
		stopErr:  services.Wrap(services.ErrNotRunning, "", "stop", "nothing to stop", nil),
	}
	srv := httptest.NewServer(api.NewRouter(api.Options{Controller: ctrl}))
	defer srv.Close()
	client := api.NewClient(srv.URL, "")
	ctx := context.Background()

	if _, err := client.Start(ctx, api.StartRunRequest{Input: "/v/a.mp4"}); !errors.Is(err, services.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	_, err := client.Stop(ctx)
	if !errors.Is(err, services.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if got := err.Error(); got != "no active run: stop: nothing to stop" {
		t.Fatalf("marker prefix duplicated: %q", got)
	}
}

func TestClientRejectedToken(t *testing.T) {
	srv := httptest.NewServer(api.NewRouter(api.Options{Controller: &fakeController{}, Token: "tok"}))
	defer srv.Close()
	if _, err := api.NewClient(srv.URL, "wrong").Status(context.Background()); err == nil {
		t.Fatal("expected unauthorized error")
	}
}

func TestNewClientAddsScheme(t *testing.T) {
	srv := httptest.NewServer(api.NewRouter(api.Options{Controller: &fakeController{}}))
	defer srv.Close()
	bind := srv.Listener.Addr().String()
	if _, err := api.NewClient(bind, "").Status(context.Background()); err != nil {
		t.Fatalf("Status via host:port: %v", err)
	}
}
