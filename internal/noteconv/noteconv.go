// Package noteconv converts between MIDI note numbers and the note-name
// convention used for filenames and manifests (§4.5, §6).
package noteconv

import "fmt"

var names = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Name renders a MIDI note number (0-127) using the fixed table: octave =
// floor(note/12) - 1, so MIDI 60 is "C4".
func Name(note int) string {
	octave := note/12 - 1
	return fmt.Sprintf("%s%d", names[((note%12)+12)%12], octave)
}
