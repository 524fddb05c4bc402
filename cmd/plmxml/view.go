package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	plmxml "github.com/agentflare-ai/go-plmxml"
	"github.com/agentflare-ai/go-plmxml/source"
)

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Expand   key.Binding
	Collapse key.Binding
	Toggle   key.Binding
	NextView key.Binding
	Details  key.Binding
	Reload   key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Expand, k.Collapse, k.NextView, k.Details, k.Reload, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Toggle}}
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Expand:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "expand")),
	Collapse: key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "collapse")),
	Toggle:   key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "toggle")),
	NextView: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
	Details:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "details")),
	Reload:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// line is one visible row of the tree; key is the id path from the root,
// since a shared occurrence can appear under several parents
type line struct {
	node   *plmxml.Node
	depth  int
	key    string
	parent int // index of the parent line, -1 for roots
}

type viewModel struct {
	location string
	load     func() (*plmxml.Result, error)

	res      *plmxml.Result
	err      error
	view     int
	expanded map[string]bool
	lines    []line
	cursor   int
	offset   int
	details  bool
	height   int
	help     help.Model
	status   string
}

type loadedMsg struct {
	res *plmxml.Result
	err error
}

func newViewModel(location string, load func() (*plmxml.Result, error)) *viewModel {
	return &viewModel{
		location: location,
		load:     load,
		expanded: make(map[string]bool),
		details:  true,
		height:   24,
		help:     help.New(),
	}
}

func (m *viewModel) Init() tea.Cmd {
	return m.loadDocument
}

func (m *viewModel) loadDocument() tea.Msg {
	res, err := m.load()
	return loadedMsg{res: res, err: err}
}

func (m *viewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.help.Width = msg.Width

	case loadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.res = msg.res
			if m.view >= len(m.res.Views) {
				m.view = 0
			}
			m.status = fmt.Sprintf("%d views, %d warnings", len(m.res.Views), len(m.res.Warnings()))
			m.rebuild()
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Reload):
			m.status = "reloading..."
			return m, m.loadDocument
		}
		if m.res == nil || len(m.lines) == 0 {
			if m.res != nil && key.Matches(msg, keys.NextView) {
				m.nextView()
			}
			return m, nil
		}
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.lines)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Expand):
			m.setExpanded(true)
		case key.Matches(msg, keys.Collapse):
			cur := m.lines[m.cursor]
			if m.expanded[cur.key] && cur.node.IsAssembly() {
				m.setExpanded(false)
			} else if cur.parent >= 0 {
				m.cursor = cur.parent
			}
		case key.Matches(msg, keys.Toggle):
			m.setExpanded(!m.expanded[m.lines[m.cursor].key])
		case key.Matches(msg, keys.NextView):
			m.nextView()
		case key.Matches(msg, keys.Details):
			m.details = !m.details
		}
		m.scroll()
	}
	return m, nil
}

func (m *viewModel) nextView() {
	if len(m.res.Views) == 0 {
		return
	}
	m.view = (m.view + 1) % len(m.res.Views)
	m.cursor, m.offset = 0, 0
	m.rebuild()
}

func (m *viewModel) setExpanded(open bool) {
	cur := m.lines[m.cursor]
	if !cur.node.IsAssembly() {
		return
	}
	m.expanded[cur.key] = open
	m.rebuild()
}

// rebuild recomputes the visible lines from the expansion state
func (m *viewModel) rebuild() {
	m.lines = m.lines[:0]
	if m.res == nil || len(m.res.Views) == 0 {
		m.cursor = 0
		return
	}
	var add func(n *plmxml.Node, depth int, prefix string, parent int)
	add = func(n *plmxml.Node, depth int, prefix string, parent int) {
		k := prefix + "/" + n.ID
		m.lines = append(m.lines, line{node: n, depth: depth, key: k, parent: parent})
		idx := len(m.lines) - 1
		if !m.expanded[k] {
			return
		}
		for _, c := range n.Children {
			add(c, depth+1, k, idx)
		}
	}
	for _, root := range m.res.Views[m.view].Roots {
		add(root, 0, fmt.Sprint(m.view), -1)
	}
	if m.cursor >= len(m.lines) {
		m.cursor = len(m.lines) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// treeHeight is the number of tree lines that fit on screen
func (m *viewModel) treeHeight() int {
	h := m.height - 5
	if h < 3 {
		h = 3
	}
	return h
}

func (m *viewModel) scroll() {
	h := m.treeHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
}

func (m *viewModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress r to retry or q to quit.", m.err))
	}
	if m.res == nil {
		return "Loading " + m.location + "..."
	}

	var b strings.Builder
	title := "PLMXML Viewer"
	if len(m.res.Views) > 0 {
		title += fmt.Sprintf(" · %s (%d/%d)", m.res.Views[m.view].ProductView.ID, m.view+1, len(m.res.Views))
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString(" ")
	b.WriteString(m.location)
	b.WriteString("\n\n")

	var tree strings.Builder
	if len(m.lines) == 0 {
		tree.WriteString("No ProductView (BOM) data found.")
	}
	end := m.offset + m.treeHeight()
	if end > len(m.lines) {
		end = len(m.lines)
	}
	p := painter(true)
	for i := m.offset; i < end; i++ {
		l := m.lines[i]
		marker := "  "
		if l.node.IsAssembly() {
			marker = "▸ "
			if m.expanded[l.key] {
				marker = "▾ "
			}
		}
		text := strings.Repeat("  ", l.depth) + marker
		if i == m.cursor {
			text = selectedStyle.Render(text + bomLabel(l.node))
		} else {
			text += nodeLabel(l.node, p)
		}
		tree.WriteString(text)
		if i < end-1 {
			tree.WriteString("\n")
		}
	}

	body := tree.String()
	if m.details && len(m.lines) > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, "  ", paneStyle.Render(nodeDetails(m.lines[m.cursor].node)))
	}
	b.WriteString(body)
	b.WriteString("\n\n")
	b.WriteString(metaStyle.Render(m.status))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help.View(keys)))
	return b.String()
}

// bomLabel is nodeLabel without inner styling, for the highlighted line
func bomLabel(n *plmxml.Node) string {
	return nodeLabel(n, painter(false))
}

func runView(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := addCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.setup(stderr); err != nil {
		return err
	}
	defer c.finish()

	var load func() (*plmxml.Result, error)
	if source.IsS3(c.input) {
		load = func() (*plmxml.Result, error) { return c.parse(ctx) }
	} else {
		cache := plmxml.NewCache(c.options()...)
		load = func() (*plmxml.Result, error) { return cache.Get(c.input) }
	}

	p := tea.NewProgram(newViewModel(c.input, load), tea.WithAltScreen(), tea.WithContext(ctx), tea.WithOutput(stdout))
	_, err := p.Run()
	return err
}
