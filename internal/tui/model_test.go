package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pfrederiksen/bimmerctl/internal/fleet"
)

type stubProvider struct {
	vehicles []*fleet.Vehicle
	err      error
	calls    int
}

func (p *stubProvider) Details(ctx context.Context, filter string) ([]*fleet.Vehicle, error) {
	p.calls++
	return p.vehicles, p.err
}

func sized(m *Model) *Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(*Model)
}

func TestModelShowsLoadingBeforeFirstFetch(t *testing.T) {
	m := sized(NewModel(&stubProvider{}, nil, "", time.Minute))

	if !strings.Contains(m.View(), "Loading vehicle data") {
		t.Errorf("expected loading screen, got: %s", m.View())
	}
}

func TestModelRendersDashboardAfterFetch(t *testing.T) {
	m := sized(NewModel(&stubProvider{}, nil, "", time.Minute))

	updated, cmd := m.Update(vehiclesMsg{vehicles: []*fleet.Vehicle{testVehicle()}})
	m = updated.(*Model)

	if cmd == nil {
		t.Error("expected a tick command after a successful fetch")
	}

	view := m.View()
	if !strings.Contains(view, "i4 eDrive40 2022") {
		t.Errorf("expected vehicle name in header, got: %s", view)
	}
	if !strings.Contains(view, "Dashboard") {
		t.Errorf("expected dashboard content, got: %s", view)
	}
}

func TestModelShowsErrorWhenFirstFetchFails(t *testing.T) {
	m := sized(NewModel(&stubProvider{}, nil, "", time.Minute))

	updated, _ := m.Update(vehiclesMsg{err: errors.New("network down")})
	m = updated.(*Model)

	if !strings.Contains(m.View(), "network down") {
		t.Errorf("expected error screen, got: %s", m.View())
	}
}

func TestModelKeepsStaleDataWhenRefreshFails(t *testing.T) {
	m := sized(NewModel(&stubProvider{}, nil, "", time.Minute))

	updated, _ := m.Update(vehiclesMsg{vehicles: []*fleet.Vehicle{testVehicle()}})
	m = updated.(*Model)
	updated, _ = m.Update(vehiclesMsg{err: errors.New("network down")})
	m = updated.(*Model)

	view := m.View()
	if !strings.Contains(view, "i4 eDrive40 2022") {
		t.Errorf("expected stale vehicle data to remain, got: %s", view)
	}
	if !strings.Contains(view, "stale") {
		t.Errorf("expected stale-data notice in header, got: %s", view)
	}
}

func TestModelSwitchesViewsOnKeyPress(t *testing.T) {
	m := sized(NewModel(&stubProvider{}, nil, "", time.Minute))
	updated, _ := m.Update(vehiclesMsg{vehicles: []*fleet.Vehicle{testVehicle()}})
	m = updated.(*Model)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	m = updated.(*Model)
	if m.currentView != ViewTrend {
		t.Errorf("expected trend view after '2', got %v", m.currentView)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'1'}})
	m = updated.(*Model)
	if m.currentView != ViewDashboard {
		t.Errorf("expected dashboard view after '1', got %v", m.currentView)
	}
}

func TestModelCyclesVehicles(t *testing.T) {
	second := testVehicle()
	second.VIN = "WBA456"
	second.Attributes.Model = "iX xDrive50"

	m := sized(NewModel(&stubProvider{}, nil, "", time.Minute))
	updated, _ := m.Update(vehiclesMsg{vehicles: []*fleet.Vehicle{testVehicle(), second}})
	m = updated.(*Model)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(*Model)
	if m.selected != 1 {
		t.Errorf("expected second vehicle selected, got %d", m.selected)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(*Model)
	if m.selected != 0 {
		t.Errorf("expected selection to wrap around, got %d", m.selected)
	}
}

func TestModelQuitsOnQ(t *testing.T) {
	m := sized(NewModel(&stubProvider{}, nil, "", time.Minute))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected tea.QuitMsg, got %T", cmd())
	}
}

func TestModelRefreshCallsProvider(t *testing.T) {
	provider := &stubProvider{vehicles: []*fleet.Vehicle{testVehicle()}}
	m := sized(NewModel(provider, nil, "", time.Minute))

	msg := m.refresh()()
	if provider.calls != 1 {
		t.Fatalf("expected one provider call, got %d", provider.calls)
	}

	result, ok := msg.(vehiclesMsg)
	if !ok {
		t.Fatalf("expected vehiclesMsg, got %T", msg)
	}
	if len(result.vehicles) != 1 {
		t.Errorf("expected one vehicle, got %d", len(result.vehicles))
	}
}
