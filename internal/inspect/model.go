// Package inspect provides the Bubble Tea viewer for a reconciled session.
package inspect

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/touchsync/internal/diagnostics"
	"github.com/verte-zerg/touchsync/internal/model"
	"github.com/verte-zerg/touchsync/internal/session"
	"github.com/verte-zerg/touchsync/internal/stats"
)

const (
	tabOverview = iota
	tabBlocks
	tabCurves
	tabMarker
)

const (
	plotHeight  = 10
	curveWindow = 5
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model implements the Bubble Tea session inspector.
type Model struct {
	out session.Outcome

	tabs      []string
	activeTab int
	viewports []viewport.Model
	blocks    table.Model

	// selected indexes out.Traces; channel indexes the trace channels, -1 shows all.
	selected int
	channel  int

	width  int
	height int

	errMsg string

	jumpMode  bool
	jumpInput textinput.Model
}

// Run shows the inspector until the user quits or ctx is done.
func Run(ctx context.Context, out session.Outcome) error {
	program := tea.NewProgram(NewModel(out), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run inspector: %w", err)
	}
	return nil
}

// NewModel constructs an inspector for a finished session.
func NewModel(out session.Outcome) *Model {
	m := &Model{
		out:     out,
		tabs:    []string{"Overview", "Blocks", "Curves", "Marker"},
		channel: -1,
	}
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.jumpInput = textinput.New()
	m.jumpInput.Prompt = "Block: "
	m.jumpInput.Cursor.SetMode(cursor.CursorBlink)
	m.blocks = buildBlockTable(out.Result.Blocks, 80, 10)
	m.renderTabContents()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.jumpMode {
			return m.updateJump(msg)
		}
		if msg.String() == "q" {
			return m, tea.Quit
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "/":
			m.jumpMode = true
			m.errMsg = ""
			m.jumpInput.SetValue("")
			m.updateLayout()
			return m, m.jumpInput.Focus()
		case "enter":
			if m.activeTab == tabBlocks {
				row := m.blocks.SelectedRow()
				if row != nil {
					m.selectBlock(row[0])
				}
			}
			return m, nil
		case "n", "]":
			m.stepBlock(1)
			return m, nil
		case "p", "[":
			m.stepBlock(-1)
			return m, nil
		case "c":
			m.cycleChannel()
			return m, nil
		case "g", "home":
			if m.activeTab == tabBlocks {
				m.blocks.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabBlocks {
				m.blocks.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabBlocks {
				var cmd tea.Cmd
				m.blocks, cmd = m.blocks.Update(msg)
				return m, cmd
			}
			var cmd tea.Cmd
			m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.jumpMode || m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	m.blocks.SetWidth(m.width)
	m.blocks.SetHeight(maxInt(1, bodyHeight-1))
	m.jumpInput.Width = maxInt(10, m.width-lipgloss.Width(m.jumpInput.Prompt)-2)
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := (m.activeTab + delta + count) % count
	m.activeTab = next
	if m.activeTab == tabBlocks {
		m.blocks.Focus()
	} else {
		m.blocks.Blur()
	}
}

// selectBlock shows the curves of the block with the given id.
func (m *Model) selectBlock(id string) {
	for i, tr := range m.out.Traces {
		if tr.BlockID == id {
			m.selected = i
			m.errMsg = ""
			m.activeTab = tabCurves
			m.blocks.Blur()
			m.renderTabContents()
			return
		}
	}
	for _, b := range m.out.Result.Blocks {
		if b.BlockID == id && b.Skipped {
			m.errMsg = fmt.Sprintf("block %s was skipped: %s", id, b.SkipReason)
			return
		}
	}
	m.errMsg = fmt.Sprintf("no block %q", id)
}

func (m *Model) stepBlock(delta int) {
	if len(m.out.Traces) == 0 {
		return
	}
	n := len(m.out.Traces)
	m.selected = (m.selected + delta + n) % n
	m.renderTabContents()
}

func (m *Model) cycleChannel() {
	if len(m.out.Traces) == 0 {
		return
	}
	count := len(m.out.Traces[m.selected].Channels)
	m.channel++
	if m.channel >= count {
		m.channel = -1
	}
	m.renderTabContents()
}

func (m *Model) updateJump(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.jumpMode = false
		m.jumpInput.Blur()
		m.updateLayout()
		return m, nil
	case tea.KeyEnter:
		m.jumpMode = false
		m.jumpInput.Blur()
		m.selectBlock(strings.TrimSpace(m.jumpInput.Value()))
		m.updateLayout()
		return m, nil
	}
	var cmd tea.Cmd
	m.jumpInput, cmd = m.jumpInput.Update(msg)
	return m, cmd
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	res := m.out.Result
	summary := fmt.Sprintf("Session: %s  status=%s  blocks=%d aligned/%d", res.Session, res.Status, res.AlignedBlocks(), len(res.Blocks))
	if res.BlockSetMismatch {
		summary += "  block sets differ"
	}
	return padLines(m.renderTabs(), m.width) + "\n" + headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderFooter() string {
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Jump: /  Quit: q"
	switch m.activeTab {
	case tabBlocks:
		help = "Nav: left/right  Select: up/down  Curves: enter  Jump: /  Quit: q"
	case tabCurves:
		help = "Nav: left/right  Block: n/p  Channel: c  Jump: /  Quit: q"
	}
	lines := []string{headerStyle.Render(help)}
	if m.jumpMode {
		lines = append(lines, m.jumpInput.View())
	} else if m.errMsg != "" {
		lines = append(lines, errorStyle.Render(m.errMsg))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody() string {
	if m.activeTab == tabBlocks {
		if len(m.out.Result.Blocks) == 0 {
			return "No blocks found."
		}
		return tableMutedStyle.Render(m.blocks.View())
	}
	return m.viewports[m.activeTab].View()
}

func (m *Model) renderTabContents() {
	if len(m.viewports) == 0 {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	plotWidth := stats.PlotWidthFor(width)
	m.viewports[tabOverview].SetContent(renderOverview(m.out.Result.Blocks, plotWidth))
	m.viewports[tabCurves].SetContent(m.renderCurves(plotWidth))
	m.viewports[tabMarker].SetContent(m.renderMarker(plotWidth))
}

func renderOverview(blocks []model.BlockResult, width int) string {
	var buf bytes.Buffer
	if err := stats.RenderSummary(&buf, "", blocks); err != nil {
		return fmt.Sprintf("Failed to render summary: %v", err)
	}
	buf.WriteString("\n")
	opts := stats.PlotOptions{Width: width, Height: plotHeight, Color: true}
	if err := stats.RenderOffsetCurve(&buf, blocks, curveWindow, opts); err != nil {
		return fmt.Sprintf("Failed to render offsets: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (m *Model) renderCurves(width int) string {
	if len(m.out.Traces) == 0 {
		return "No aligned blocks."
	}
	trace := m.out.Traces[m.selected]
	var channels []string
	label := "all channels"
	if m.channel >= 0 && m.channel < len(trace.Channels) {
		channels = []string{trace.Channels[m.channel]}
		label = trace.Channels[m.channel]
	}
	var buf bytes.Buffer
	buf.WriteString(headerStyle.Render(fmt.Sprintf("Block %d of %d, %s", m.selected+1, len(m.out.Traces), label)))
	buf.WriteString("\n")
	obs := diagnostics.NewPlotObserver(&buf, width, plotHeight, channels...)
	obs.BlockAligned(trace)
	if err := obs.Err(); err != nil {
		return fmt.Sprintf("Failed to render curves: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (m *Model) renderMarker(width int) string {
	column := m.out.MarkerColumn
	if column == "" || m.out.Primary == nil || m.out.Corrected == nil {
		return "No marker column configured."
	}
	var buf bytes.Buffer
	if err := diagnostics.WriteMarkerReport(&buf, m.out.Primary, m.out.Corrected, column, width, plotHeight); err != nil {
		return fmt.Sprintf("Failed to check marker: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func buildBlockTable(blocks []model.BlockResult, width, height int) table.Model {
	columns := []table.Column{
		{Title: "Block", Width: 8},
		{Title: "Rows", Width: 9},
		{Title: "Window", Width: 12},
		{Title: "Step", Width: 5},
		{Title: "Offset", Width: 7},
		{Title: "Score", Width: 8},
		{Title: "Note", Width: 28},
	}
	rows := make([]table.Row, 0, len(blocks))
	for _, b := range blocks {
		sizes := fmt.Sprintf("%d/%d", b.PrimaryRows, b.ReferenceRows)
		if b.Skipped {
			rows = append(rows, table.Row{b.BlockID, sizes, "", "", "", "", "skipped: " + b.SkipReason})
			continue
		}
		note := ""
		if b.Degenerate {
			note = "degenerate"
		}
		rows = append(rows, table.Row{
			b.BlockID,
			sizes,
			fmt.Sprintf("[%d, %d]", b.Low, b.High),
			strconv.Itoa(b.Step),
			strconv.Itoa(b.Offset),
			stats.FormatScore(b.Score),
			note,
		})
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(maxInt(1, height-1)),
	)
	t.SetWidth(width)
	t.SetStyles(blockTableStyles())
	return t
}

func blockTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
