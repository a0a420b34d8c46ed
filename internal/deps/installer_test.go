package deps

import (
	"context"
	"errors"
	"testing"

	"github.com/ZebulonRouseFrantzich/starter/internal/config"
)

// fakePM simulates a package manager. installs maps a package to the
// versions successive Install calls leave behind; an empty string entry
// makes that Install call fail.
type fakePM struct {
	versions    map[string]string
	installs    map[string][]string
	installCall map[string]int
	queryErr    error
}

func newFakePM(versions map[string]string, installs map[string][]string) *fakePM {
	return &fakePM{versions: versions, installs: installs, installCall: map[string]int{}}
}

func (f *fakePM) Installed(ctx context.Context, dep config.Dependency) (string, bool, error) {
	if f.queryErr != nil {
		return "", false, f.queryErr
	}
	v, ok := f.versions[dep.Name]
	return v, ok, nil
}

func (f *fakePM) Install(ctx context.Context, dep config.Dependency) error {
	n := f.installCall[dep.Name]
	f.installCall[dep.Name]++

	results := f.installs[dep.Name]
	if n >= len(results) || results[n] == "" {
		return errors.New("network unreachable")
	}
	f.versions[dep.Name] = results[n]
	return nil
}

func TestEnsure(t *testing.T) {
	tests := []struct {
		name          string
		versions      map[string]string
		installs      map[string][]string
		deps          []config.Dependency
		wantErr       bool
		wantInstalled int
		wantCalls     map[string]int
	}{
		{
			name:      "all satisfied",
			versions:  map[string]string{"requests": "2.31.0", "colorama": "0.4.6"},
			deps:      []config.Dependency{{Name: "requests", MinVersion: "2.31"}, {Name: "colorama"}},
			wantCalls: map[string]int{},
		},
		{
			name:          "missing is installed",
			versions:      map[string]string{},
			installs:      map[string][]string{"colorama": {"0.4.6"}},
			deps:          []config.Dependency{{Name: "colorama"}},
			wantInstalled: 1,
			wantCalls:     map[string]int{"colorama": 1},
		},
		{
			name:          "too old is upgraded",
			versions:      map[string]string{"requests": "2.20.0"},
			installs:      map[string][]string{"requests": {"2.31.0"}},
			deps:          []config.Dependency{{Name: "requests", MinVersion: "2.31"}},
			wantInstalled: 1,
			wantCalls:     map[string]int{"requests": 1},
		},
		{
			name:          "first install fails, retry succeeds",
			versions:      map[string]string{},
			installs:      map[string][]string{"requests": {"", "2.31.0"}},
			deps:          []config.Dependency{{Name: "requests", MinVersion: "2.31"}},
			wantInstalled: 1,
			wantCalls:     map[string]int{"requests": 2},
		},
		{
			name:      "second failure is fatal",
			versions:  map[string]string{},
			installs:  map[string][]string{"requests": {"", ""}},
			deps:      []config.Dependency{{Name: "requests"}},
			wantErr:   true,
			wantCalls: map[string]int{"requests": 2},
		},
		{
			name:      "still too old after install",
			versions:  map[string]string{"requests": "2.0.0"},
			installs:  map[string][]string{"requests": {"2.10.0", "2.10.0"}},
			deps:      []config.Dependency{{Name: "requests", MinVersion: "2.31"}},
			wantErr:   true,
			wantCalls: map[string]int{"requests": 2},
		},
		{
			name:      "stops at first failure",
			versions:  map[string]string{},
			installs:  map[string][]string{"b": {"1.0"}},
			deps:      []config.Dependency{{Name: "a"}, {Name: "b"}},
			wantErr:   true,
			wantCalls: map[string]int{"a": 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := newFakePM(tt.versions, tt.installs)
			result, err := NewInstaller(pm, nil).Ensure(context.Background(), tt.deps)

			if tt.wantErr {
				var ie *InstallError
				if !errors.As(err, &ie) {
					t.Fatalf("expected *InstallError, got %v", err)
				}
				if ie.Attempts != MaxAttempts {
					t.Errorf("Attempts = %d, want %d", ie.Attempts, MaxAttempts)
				}
			} else if err != nil {
				t.Fatalf("Ensure() error: %v", err)
			} else {
				if len(result.Deps) != len(tt.deps) {
					t.Errorf("len(Deps) = %d, want %d", len(result.Deps), len(tt.deps))
				}
				if result.InstalledCount() != tt.wantInstalled {
					t.Errorf("InstalledCount() = %d, want %d", result.InstalledCount(), tt.wantInstalled)
				}
			}

			for name, want := range tt.wantCalls {
				if got := pm.installCall[name]; got != want {
					t.Errorf("install calls for %s = %d, want %d", name, got, want)
				}
			}
			if len(tt.wantCalls) == 0 && len(pm.installCall) != 0 {
				t.Errorf("unexpected installs: %v", pm.installCall)
			}
		})
	}
}

func TestEnsure_QueryError(t *testing.T) {
	pm := newFakePM(nil, nil)
	pm.queryErr = errors.New("exec: \"pip\": executable file not found in $PATH")

	_, err := NewInstaller(pm, nil).Ensure(context.Background(), []config.Dependency{{Name: "requests"}})
	if err == nil {
		t.Fatal("expected error")
	}
	var ie *InstallError
	if errors.As(err, &ie) {
		t.Error("a broken query command is not an install failure")
	}
}

func TestEnsure_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewInstaller(newFakePM(map[string]string{}, nil), nil).Ensure(ctx, []config.Dependency{{Name: "a"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInstallError_Message(t *testing.T) {
	err := &InstallError{Name: "requests", Min: "2.31", Found: "2.10.0", Attempts: 2}
	want := "install dependency requests >= 2.31 failed after 2 attempts: still at version 2.10.0"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
