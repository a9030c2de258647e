package notify

import (
	"fmt"
	"os/exec"
)

// Alerter produces the audible/speech side effect for alertable events.
// Implementations must be safe for concurrent use.
type Alerter interface {
	Alert(evt Event) error
}

// NoopAlerter discards alerts. Used when alerts are disabled or in tests.
type NoopAlerter struct{}

func (NoopAlerter) Alert(Event) error { return nil }

// SoundAlerter plays a notification sound through whichever player is
// available, falling back to the terminal bell. Speech synthesis is used for
// new orders where a `say`-style command exists.
type SoundAlerter struct{}

func (SoundAlerter) Alert(evt Event) error {
	if evt.Kind == KindNewOrder {
		if err := exec.Command("say", "new order received").Run(); err == nil {
			return nil
		}
	}

	players := []struct {
		cmd  string
		args []string
	}{
		{"paplay", []string{"/usr/share/sounds/freedesktop/stereo/message.oga"}},
		{"aplay", []string{"/usr/share/sounds/freedesktop/stereo/message.wav"}},
	}
	for _, p := range players {
		if err := exec.Command(p.cmd, p.args...).Run(); err == nil {
			return nil
		}
	}

	// Terminal bell as last resort.
	fmt.Print("\a")
	return nil
}
