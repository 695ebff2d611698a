package main

import "github.com/energye/systray"

// SystrayInterface abstracts systray operations so menu logic is testable.
type SystrayInterface interface {
	ResetMenu()
	AddMenuItem(title, tooltip string) MenuItem
	AddSeparator()
	SetTooltip(tooltip string)
	SetIcon(iconBytes []byte)
	Quit()
}

// MenuItem is the subset of menu item operations the UI uses, implemented
// by both real systray items and mocks.
type MenuItem interface {
	Disable()
	SetTitle(string)
	SetTooltip(string)
	Click(func())
	AddSubMenuItem(title, tooltip string) MenuItem
}

// RealSystray implements SystrayInterface using the actual systray library.
type RealSystray struct{}

func (*RealSystray) ResetMenu() {
	systray.ResetMenu()
}

func (*RealSystray) AddMenuItem(title, tooltip string) MenuItem {
	return &RealMenuItem{MenuItem: systray.AddMenuItem(title, tooltip)}
}

func (*RealSystray) AddSeparator() {
	systray.AddSeparator()
}

func (*RealSystray) SetTooltip(tooltip string) {
	systray.SetTooltip(tooltip)
}

func (*RealSystray) SetIcon(iconBytes []byte) {
	systray.SetIcon(iconBytes)
}

func (*RealSystray) Quit() {
	systray.Quit()
}

// RealMenuItem wraps a systray.MenuItem to implement MenuItem.
type RealMenuItem struct {
	*systray.MenuItem
}

var _ MenuItem = (*RealMenuItem)(nil)

func (r *RealMenuItem) Disable() {
	r.MenuItem.Disable()
}

func (r *RealMenuItem) SetTitle(title string) {
	r.MenuItem.SetTitle(title)
}

func (r *RealMenuItem) SetTooltip(tooltip string) {
	r.MenuItem.SetTooltip(tooltip)
}

func (r *RealMenuItem) Click(handler func()) {
	r.MenuItem.Click(handler)
}

func (r *RealMenuItem) AddSubMenuItem(title, tooltip string) MenuItem {
	return &RealMenuItem{MenuItem: r.MenuItem.AddSubMenuItem(title, tooltip)}
}

// MockSystray implements SystrayInterface for testing. It records the
// titles of added items in order, with separators as "---".
type MockSystray struct {
	tooltip   string
	menuItems []string
	iconSet   bool
	quit      bool
}

func (m *MockSystray) ResetMenu() {
	m.menuItems = nil
}

func (m *MockSystray) AddMenuItem(title, tooltip string) MenuItem {
	m.menuItems = append(m.menuItems, title)
	return &MockMenuItem{title: title, tooltip: tooltip}
}

func (m *MockSystray) AddSeparator() {
	m.menuItems = append(m.menuItems, "---")
}

func (m *MockSystray) SetTooltip(tooltip string) {
	m.tooltip = tooltip
}

func (m *MockSystray) SetIcon([]byte) {
	m.iconSet = true
}

func (m *MockSystray) Quit() {
	m.quit = true
}

// MockMenuItem records per-item state for assertions.
type MockMenuItem struct {
	title    string
	tooltip  string
	disabled bool
	handler  func()
}

func (m *MockMenuItem) Disable() {
	m.disabled = true
}

func (m *MockMenuItem) SetTitle(title string) {
	m.title = title
}

func (m *MockMenuItem) SetTooltip(tooltip string) {
	m.tooltip = tooltip
}

func (m *MockMenuItem) Click(handler func()) {
	m.handler = handler
}

func (*MockMenuItem) AddSubMenuItem(title, tooltip string) MenuItem {
	return &MockMenuItem{title: title, tooltip: tooltip}
}
