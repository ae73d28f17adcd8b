package keys

import "github.com/charmbracelet/bubbles/key"

// LogKeys control how the message log is rendered
type LogKeys struct {
	Clear           key.Binding
	ToggleHex       key.Binding
	ToggleASCII     key.Binding
	ToggleTimestamp key.Binding
	TableView       key.Binding
	VisualMode      key.Binding
	GotoTop         key.Binding
	GotoBottom      key.Binding
}

func NewLogKeys() LogKeys {
	return LogKeys{
		Clear:           key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear log view")),
		ToggleHex:       key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "hex column")),
		ToggleASCII:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "ascii column")),
		ToggleTimestamp: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "full date")),
		TableView:       key.NewBinding(key.WithKeys("T"), key.WithHelp("T", "table / stream view")),
		VisualMode:      key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "select records")),
		GotoTop:         key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "oldest record")),
		GotoBottom:      key.NewBinding(key.WithKeys("G"), key.WithHelp("G", "follow newest")),
	}
}
