package bootstrap

import (
	"context"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/gatehouse/gatehouse/config"
)

func TestGetEnabledServices(t *testing.T) {
	tests := []struct {
		name     string
		services string
		want     []string
	}{
		{name: "http only", services: "http", want: []string{"http"}},
		{name: "stable order", services: "journal-reaper,http", want: []string{"http", "journal-reaper"}},
		{name: "invalid", services: "scheduler", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetEnabledServices(&config.AppConfig{Services: tt.services})
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("GetEnabledServices() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := GetEnabledServices(nil); len(got) != 0 {
		t.Errorf("nil config should yield no services, got %v", got)
	}
}

func TestValidateServiceConfig(t *testing.T) {
	if err := ValidateServiceConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if err := ValidateServiceConfig(&config.AppConfig{Services: ""}); err == nil {
		t.Error("expected error for empty service list")
	}
	if err := ValidateServiceConfig(&config.AppConfig{Services: "http"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewServicesWithoutInfrastructure(t *testing.T) {
	cfg := &config.AppConfig{Services: "journal-reaper"}
	container, err := NewServices(context.Background(), &ServiceDeps{Config: cfg, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	if container.Auth != nil || container.Views != nil || container.Journal != nil {
		t.Errorf("expected an empty container, got %#v", container)
	}
	if err := container.Observability.Close(context.Background()); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestBuildRouterServicesLeavesOptionalPortsNil(t *testing.T) {
	cfg := &HTTPServerConfig{Services: ServiceContainer{Auth: &AuthComponents{LogoutURL: "https://idp/logout"}}}

	services := buildRouterServices(cfg, &config.AppConfig{}, discardLogger())

	if services.Tokens != nil {
		t.Error("Tokens should be nil when no issuer is configured")
	}
	if services.Journal != nil {
		t.Error("Journal should be nil without a database")
	}
	if services.Views != nil {
		t.Error("Views should be nil without a registry")
	}
	if services.ProviderLogoutURL != "https://idp/logout" {
		t.Errorf("ProviderLogoutURL = %q", services.ProviderLogoutURL)
	}
	if len(services.HealthChecks) != 0 {
		t.Errorf("expected no health checks, got %d", len(services.HealthChecks))
	}
}

func TestRunServicesRequiresRunnableService(t *testing.T) {
	cfg := &ServiceOrchestrationConfig{Config: &config.AppConfig{Services: "journal-reaper"}}

	if err := runServices(context.Background(), cfg, discardLogger()); err == nil {
		t.Fatal("expected error when the reaper has no database")
	}
}

func TestRunServicesStopsOnCancel(t *testing.T) {
	appCfg := &config.AppConfig{
		Services: "http",
		Auth:     devAuthConfig(),
		HTTP:     config.HTTPConfig{Addr: "127.0.0.1:0"},
		Shell:    config.ShellConfig{ChangeBus: config.ChangeBusMemory},
	}
	appCfg.Sanitize()
	redisClient := newLazyRedis(t)

	container, err := NewServices(context.Background(), &ServiceDeps{
		Config:      appCfg,
		RedisClient: redisClient,
		Logger:      discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServices(ctx, &ServiceOrchestrationConfig{
			Config:      appCfg,
			Services:    container,
			RedisClient: redisClient,
			Logger:      discardLogger(),
		}, discardLogger())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServices returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("services did not stop")
	}
	if n := container.Views.Len(); n != 0 {
		t.Errorf("views still mounted after shutdown: %d", n)
	}
}

func TestShutdownHTTPServerNilServer(t *testing.T) {
	if err := ShutdownHTTPServer(ShutdownConfig{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestShutdownHTTPServerUnstarted(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", ReadHeaderTimeout: time.Second}
	if err := ShutdownHTTPServer(ShutdownConfig{Server: srv, Timeout: time.Second, Logger: discardLogger()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
