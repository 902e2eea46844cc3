// Package tui is the terminal dashboard: headline stats, the device table
// and the most recent alerts, fed by the event bus.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/thejerf/suture/v4"

	"netmonitor/internal/events"
	"netmonitor/internal/models"
)

const recentAlerts = 8

// ReportFunc writes a session report and returns its path.
type ReportFunc func() (string, error)

type Model struct {
	feed   <-chan events.Event
	report ReportFunc
	title  string

	stats   models.Stats
	devices []models.Device
	alerts  []models.Alert // newest last, at most recentAlerts
	table   table.Model
	status  string
	closed  bool
}

type eventMsg events.Event

type feedClosedMsg struct{}

type reportMsg struct {
	path string
	err  error
}

func NewModel(feed <-chan events.Event, report ReportFunc, title string) Model {
	columns := []table.Column{
		{Title: "IP Address", Width: 16},
		{Title: "MAC Address", Width: 19},
		{Title: "Name", Width: 24},
		{Title: "Last Seen", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		feed:   feed,
		report: report,
		title:  title,
		table:  t,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.feed)
}

func waitForEvent(feed <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-feed
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(e)
	}
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Subscriber hands out event subscriptions.
type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

// Service runs the dashboard under supervision. Every start gets its own
// subscription. Quitting the dashboard stops the whole tree.
type Service struct {
	Bus     Subscriber
	Buffer  int
	Report  ReportFunc
	Title   string
	Options []tea.ProgramOption
}

func (s Service) Serve(ctx context.Context) error {
	feed, unsubscribe := s.Bus.Subscribe(s.Buffer)
	defer unsubscribe()

	if err := Run(ctx, NewModel(feed, s.Report, s.Title), s.Options...); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}
	return suture.ErrTerminateSupervisorTree
}

func (s Service) String() string { return "tui" }
