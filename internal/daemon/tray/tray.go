package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Menu slots are allocated once at startup because systray cannot remove
// items; plugins beyond the slot count simply don't appear in the menu
// (the browser UI has no such limit).
const (
	maxPluginSlots = 10
	maxActionSlots = 4
	maxToggleSlots = 4
)

var (
	state   DaemonState
	onStart func()
	onExit  func()

	portItem *systray.MenuItem

	// Pre-allocated plugin menu slots
	pluginSlots [maxPluginSlots]*systray.MenuItem
	slotOpen    [maxPluginSlots]*systray.MenuItem
	slotActions [maxPluginSlots][maxActionSlots]*systray.MenuItem
	slotToggles [maxPluginSlots][maxToggleSlots]*systray.MenuItem

	noPluginsItem *systray.MenuItem
	storeItem     *systray.MenuItem
	reloadItem    *systray.MenuItem
	quitItem      *systray.MenuItem

	// Maps slot/action indices → plugin and action ids for click dispatch
	slotMu         sync.RWMutex
	slotPlugins    [maxPluginSlots]string
	slotActionIDs  [maxPluginSlots][maxActionSlots]string
	slotToggleKeys [maxPluginSlots][maxToggleSlots]string
	ready          bool
)

// Run starts the system tray. This blocks the calling goroutine (must be
// main; Cocoa requires the tray loop there).
// onStartFn is called when the tray is ready (start the daemon services here).
// onExitFn is called when the tray exits (cleanup here).
func Run(s DaemonState, onStartFn, onExitFn func()) {
	state = s
	onStart = onStartFn
	onExit = onExitFn
	systray.Run(onReady, onQuit)
}

// Quit signals the tray to exit.
func Quit() {
	systray.Quit()
}

func onReady() {
	systray.SetTemplateIcon(iconData, iconData)
	systray.SetTooltip(formatTooltip(0, 0))

	// Header
	header := systray.AddMenuItem("QOL Tray", "")
	header.Disable()

	// Port
	portItem = systray.AddMenuItem("Starting...", "")
	portItem.Disable()

	systray.AddSeparator()

	// Pre-allocate plugin slots (hidden by default)
	for i := 0; i < maxPluginSlots; i++ {
		pluginSlots[i] = systray.AddMenuItem("", "")
		slotOpen[i] = pluginSlots[i].AddSubMenuItem("Open", "")
		for j := 0; j < maxActionSlots; j++ {
			slotActions[i][j] = pluginSlots[i].AddSubMenuItem("", "")
			slotActions[i][j].Hide()
		}
		for j := 0; j < maxToggleSlots; j++ {
			slotToggles[i][j] = pluginSlots[i].AddSubMenuItemCheckbox("", "", false)
			slotToggles[i][j].Hide()
		}
		pluginSlots[i].Hide()
		go watchSlot(i)
	}

	// "No plugins" placeholder
	noPluginsItem = systray.AddMenuItem("No plugins installed", "")
	noPluginsItem.Disable()

	systray.AddSeparator()

	// Actions
	storeItem = systray.AddMenuItem("Open Plugin Store", "Browse and install plugins")
	reloadItem = systray.AddMenuItem("Reload Plugins", "Rescan the plugins directory and restart daemons")
	quitItem = systray.AddMenuItem("Quit", "Shut down QOL Tray")

	slotMu.Lock()
	ready = true
	slotMu.Unlock()

	// Start the daemon services
	if onStart != nil {
		onStart()
	}

	// Update port display now that the server is listening
	if state != nil {
		portItem.SetTitle(fmt.Sprintf("Running on port: %d", state.Port()))
		updateTooltip()
	}

	// Handle click events
	go handleClicks()
}

func onQuit() {
	if onExit != nil {
		onExit()
	}
}

func handleClicks() {
	for {
		select {
		case <-storeItem.ClickedCh:
			if state != nil {
				state.OpenStore()
			}
		case <-reloadItem.ClickedCh:
			if state != nil {
				go state.ReloadPlugins()
			}
		case <-quitItem.ClickedCh:
			if state != nil {
				state.RequestShutdown()
			}
		}
	}
}

// watchSlot dispatches clicks for one plugin slot and its action sub-items.
// Slots live for the process lifetime, so one goroutine per slot is fine.
func watchSlot(slot int) {
	for {
		select {
		case <-slotOpen[slot].ClickedCh:
			if id := pluginAt(slot); id != "" && state != nil {
				go state.OpenUI(id)
			}
		case <-slotActions[slot][0].ClickedCh:
			runActionAt(slot, 0)
		case <-slotActions[slot][1].ClickedCh:
			runActionAt(slot, 1)
		case <-slotActions[slot][2].ClickedCh:
			runActionAt(slot, 2)
		case <-slotActions[slot][3].ClickedCh:
			runActionAt(slot, 3)
		case <-slotToggles[slot][0].ClickedCh:
			toggleAt(slot, 0)
		case <-slotToggles[slot][1].ClickedCh:
			toggleAt(slot, 1)
		case <-slotToggles[slot][2].ClickedCh:
			toggleAt(slot, 2)
		case <-slotToggles[slot][3].ClickedCh:
			toggleAt(slot, 3)
		}
	}
}

func pluginAt(slot int) string {
	slotMu.RLock()
	defer slotMu.RUnlock()
	return slotPlugins[slot]
}

func runActionAt(slot, action int) {
	slotMu.RLock()
	pluginID := slotPlugins[slot]
	actionID := slotActionIDs[slot][action]
	slotMu.RUnlock()

	if pluginID == "" || actionID == "" || state == nil {
		return
	}
	go state.RunAction(pluginID, actionID)
}

// toggleAt flips the config key behind one checkbox. The check mark is not
// flipped here; the daemon fires a state change after the write and the
// re-render reads the new value back from the config.
func toggleAt(slot, idx int) {
	slotMu.RLock()
	pluginID := slotPlugins[slot]
	key := slotToggleKeys[slot][idx]
	slotMu.RUnlock()

	if pluginID == "" || key == "" || state == nil {
		return
	}
	go state.ToggleConfig(pluginID, key)
}

// UpdatePlugins refreshes the plugin menu items and tooltip. Safe to call
// from any goroutine once the tray is up; calls before then are dropped.
func UpdatePlugins(plugins []PluginInfo) {
	slotMu.Lock()
	if !ready {
		slotMu.Unlock()
		return
	}
	for i := 0; i < maxPluginSlots; i++ {
		slotPlugins[i] = ""
		for j := 0; j < maxActionSlots; j++ {
			slotActionIDs[i][j] = ""
		}
		for j := 0; j < maxToggleSlots; j++ {
			slotToggleKeys[i][j] = ""
		}
	}
	for i, p := range plugins {
		if i >= maxPluginSlots {
			break
		}
		slotPlugins[i] = p.ID
		for j, a := range p.Actions {
			if j >= maxActionSlots {
				break
			}
			slotActionIDs[i][j] = a.ID
		}
		for j, tg := range p.Toggles {
			if j >= maxToggleSlots {
				break
			}
			slotToggleKeys[i][j] = tg.ConfigKey
		}
	}
	slotMu.Unlock()

	// Hide all slots first
	for i := 0; i < maxPluginSlots; i++ {
		pluginSlots[i].Hide()
	}

	if len(plugins) == 0 {
		noPluginsItem.Show()
	} else {
		noPluginsItem.Hide()
		for i, p := range plugins {
			if i >= maxPluginSlots {
				break
			}
			pluginSlots[i].SetTitle(formatPluginTitle(p))
			pluginSlots[i].Show()

			if p.HasUI {
				slotOpen[i].Show()
			} else {
				slotOpen[i].Hide()
			}
			for j := 0; j < maxActionSlots; j++ {
				if j < len(p.Actions) {
					slotActions[i][j].SetTitle(p.Actions[j].Label)
					slotActions[i][j].Show()
				} else {
					slotActions[i][j].Hide()
				}
			}
			for j := 0; j < maxToggleSlots; j++ {
				if j < len(p.Toggles) {
					tg := p.Toggles[j]
					slotToggles[i][j].SetTitle(tg.Label)
					if tg.Checked {
						slotToggles[i][j].Check()
					} else {
						slotToggles[i][j].Uncheck()
					}
					slotToggles[i][j].Show()
				} else {
					slotToggles[i][j].Hide()
				}
			}
		}
	}

	updateTooltip()
}

func updateTooltip() {
	if state == nil {
		return
	}
	plugins := state.Plugins()
	running := 0
	for _, p := range plugins {
		if p.DaemonRunning {
			running++
		}
	}
	systray.SetTooltip(formatTooltip(len(plugins), running))
}

func formatTooltip(plugins, running int) string {
	return fmt.Sprintf("QOL Tray — %d plugins, %d daemons running", plugins, running)
}

func formatPluginTitle(p PluginInfo) string {
	if p.DaemonRunning {
		return fmt.Sprintf("● %s", p.Label)
	}
	return p.Label
}
