package ui

import "github.com/rivo/tview"

// Pages is a stack-based page manager wrapping tview.Pages.
// Each page carries a title used for the breadcrumb trail.
type Pages struct {
	*tview.Pages
	stack    []string
	titles   map[string]string
	onChange func(trail []string)
}

// NewPages creates a new stack-based page manager.
func NewPages() *Pages {
	return &Pages{
		Pages:  tview.NewPages(),
		titles: make(map[string]string),
	}
}

// Register adds a hidden page.
func (p *Pages) Register(name, title string, item tview.Primitive) {
	p.titles[name] = title
	p.AddPage(name, item, true, false)
}

// SetTitle renames a page in the trail.
func (p *Pages) SetTitle(name, title string) {
	p.titles[name] = title
	p.notify()
}

// SetOnChange sets a callback that fires when the stack or a title changes.
func (p *Pages) SetOnChange(fn func(trail []string)) {
	p.onChange = fn
}

// Push adds a page to the top of the stack and shows it.
func (p *Pages) Push(name string) {
	if len(p.stack) > 0 {
		p.HidePage(p.stack[len(p.stack)-1])
	}
	p.stack = append(p.stack, name)
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
}

// Pop removes the top page and shows the previous one. The root page is
// never popped. Returns the name of the popped page, or empty.
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	current := p.stack[len(p.stack)-1]
	p.ShowPage(current)
	p.SendToFront(current)
	p.notify()
	return top
}

// Current returns the name of the current (top) page.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Trail returns the titles of the stacked pages, root first.
func (p *Pages) Trail() []string {
	trail := make([]string, len(p.stack))
	for i, name := range p.stack {
		trail[i] = p.titles[name]
	}
	return trail
}

// Reset clears the stack and shows only the given page.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Trail())
	}
}
