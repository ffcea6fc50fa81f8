// internal/audio/player.go
//
// Sound output primitives used by the cue sequencer.
//
// Sound ids reuse the symbol code space: 0-3 are the four colors,
// 4 is the error cue and 5 the turn marker.

package audio

import "errors"

// ErrAssetMissing is returned by Play for an id with no loaded sound.
var ErrAssetMissing = errors.New("sound asset missing")

// Player plays one sound at a time.
type Player interface {
	// Play starts the sound for id and returns without waiting for it to end.
	Play(id int) error
	// Stop silences whatever is playing.
	Stop()
	// Close releases the audio device.
	Close() error
}

// Silent is a Player with no output, used when audio is disabled. The
// sequencer still honours dwell timing with it.
type Silent struct{}

func (Silent) Play(int) error { return nil }
func (Silent) Stop()          {}
func (Silent) Close() error   { return nil }
