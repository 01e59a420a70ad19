package tui

// Key bindings handled by Model.handleKey.
const (
	keyQuit      = "q"
	keyQuitUpper = "Q"
	keyCtrlC     = "ctrl+c"
	keySpace     = " "
	keyClear     = "c"
	keyCopy      = "y"
	keyUp        = "up"
	keyDown      = "down"
	keyK         = "k"
	keyJ         = "j"
	keyEnd       = "G"
)
