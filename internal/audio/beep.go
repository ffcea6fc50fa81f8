// internal/audio/beep.go
//
// Speaker-backed Player built on gopxl/beep.
//
// Responsibilities:
//   - Decode SOUND_DIR/son{id}.mp3 or .wav once at startup, resampled into
//     in-memory buffers at the device sample rate.
//   - Optionally synthesize a tone for ids with no file.
//   - Play at most one sound at a time (speaker.Clear before each Play).

package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)
	resampleQuality   = 4
	// SoundCount covers the four colors plus the error and turn-marker cues.
	SoundCount = 6
)

// synthesized tone per id: frequency and length
var tones = [SoundCount]struct {
	freq float64
	dur  time.Duration
}{
	{415, 400 * time.Millisecond}, // green
	{310, 400 * time.Millisecond}, // red
	{209, 400 * time.Millisecond}, // blue
	{252, 400 * time.Millisecond}, // yellow
	{120, 700 * time.Millisecond}, // error
	{880, 150 * time.Millisecond}, // turn marker
}

// Bank holds decoded sounds keyed by id.
type Bank struct {
	format beep.Format
	sounds map[int]*beep.Buffer
}

// LoadBank decodes son{0..5}.{mp3,wav} from dir. Missing files are logged;
// with synth set they are replaced by a generated tone.
func LoadBank(dir string, sr beep.SampleRate, synth bool) (*Bank, error) {
	b := &Bank{
		format: beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2},
		sounds: make(map[int]*beep.Buffer, SoundCount),
	}
	for id := 0; id < SoundCount; id++ {
		buf, err := b.decode(dir, id)
		switch {
		case err == nil:
			b.sounds[id] = buf
			continue
		case errors.Is(err, fs.ErrNotExist):
			log.Warn().Str("dir", dir).Int("id", id).Bool("synth", synth).Msg("sound file missing")
		default:
			return nil, err
		}
		if synth {
			buf, err := b.tone(id)
			if err != nil {
				return nil, err
			}
			b.sounds[id] = buf
		}
	}
	return b, nil
}

func (b *Bank) decode(dir string, id int) (*beep.Buffer, error) {
	if dir == "" {
		return nil, fs.ErrNotExist
	}
	for _, ext := range []string{".mp3", ".wav"} {
		path := filepath.Join(dir, fmt.Sprintf("son%d%s", id, ext))
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}

		var (
			s      beep.StreamSeekCloser
			format beep.Format
		)
		if ext == ".mp3" {
			s, format, err = mp3.Decode(f)
		} else {
			s, format, err = wav.Decode(f)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		buf := beep.NewBuffer(b.format)
		buf.Append(beep.Resample(resampleQuality, format.SampleRate, b.format.SampleRate, s))
		s.Close()
		return buf, nil
	}
	return nil, fs.ErrNotExist
}

func (b *Bank) tone(id int) (*beep.Buffer, error) {
	t := tones[id]
	sine, err := generators.SineTone(b.format.SampleRate, t.freq)
	if err != nil {
		return nil, fmt.Errorf("synthesize sound %d: %w", id, err)
	}
	buf := beep.NewBuffer(b.format)
	buf.Append(beep.Take(b.format.SampleRate.N(t.dur), newVolume(sine, 0.4)))
	return buf, nil
}

// Has reports whether id has a sound.
func (b *Bank) Has(id int) bool {
	_, ok := b.sounds[id]
	return ok
}

// Streamer returns a fresh streamer over the sound for id.
func (b *Bank) Streamer(id int) (beep.StreamSeeker, error) {
	buf, ok := b.sounds[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrAssetMissing, id)
	}
	return buf.Streamer(0, buf.Len()), nil
}

// BeepOptions configures NewBeepPlayer.
type BeepOptions struct {
	Dir        string
	Synth      bool
	SampleRate beep.SampleRate
	Volume     float64 // 0..1, zero means full volume
}

// BeepPlayer drives the system speaker.
type BeepPlayer struct {
	bank   *Bank
	volume float64

	mu     sync.Mutex
	closed bool
}

// NewBeepPlayer loads the sound bank and opens the speaker.
func NewBeepPlayer(o BeepOptions) (*BeepPlayer, error) {
	if o.SampleRate == 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Volume <= 0 || o.Volume > 1 {
		o.Volume = 1
	}
	bank, err := LoadBank(o.Dir, o.SampleRate, o.Synth)
	if err != nil {
		return nil, err
	}
	if err := speaker.Init(o.SampleRate, o.SampleRate.N(100*time.Millisecond)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	log.Info().Str("dir", o.Dir).Int("sampleRate", int(o.SampleRate)).Msg("audio ready")
	return &BeepPlayer{bank: bank, volume: o.Volume}, nil
}

func (p *BeepPlayer) Play(id int) error {
	s, err := p.bank.Streamer(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("audio player closed")
	}
	speaker.Clear()
	speaker.Play(newVolume(s, p.volume))
	return nil
}

func (p *BeepPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		speaker.Clear()
	}
}

func (p *BeepPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	speaker.Clear()
	speaker.Close()
	return nil
}

// math.Log2(0) is -Inf, so zero volume is expressed as Silent.
func newVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol)}
}
