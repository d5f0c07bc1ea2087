package audio

import (
	"errors"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

var ErrInvalidWAV = errors.New("invalid wav file")

// Clip is decoded mono 16-bit little-endian PCM.
type Clip struct {
	SampleRate int
	PCM        []byte
}

// DurationMs returns the clip length in milliseconds.
func (c *Clip) DurationMs() int64 {
	if c.SampleRate == 0 {
		return 0
	}
	return int64(len(c.PCM)/2) * 1000 / int64(c.SampleRate)
}

// Chunks splits the PCM into frames of size bytes. The last frame may be short.
func (c *Clip) Chunks(size int) [][]byte {
	if size <= 0 {
		return [][]byte{c.PCM}
	}
	var out [][]byte
	for off := 0; off < len(c.PCM); off += size {
		end := min(off+size, len(c.PCM))
		out = append(out, c.PCM[off:end])
	}
	return out
}

// LoadWAV reads a PCM WAV file. Multi-channel audio keeps the first channel;
// samples are rescaled to 16 bits.
func LoadWAV(fs afero.Fs, path string) (*Clip, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	shift := int(d.BitDepth) - 16

	pcm := make([]byte, 0, len(buf.Data)/channels*2)
	for i := 0; i < len(buf.Data); i += channels {
		s := buf.Data[i]
		if shift > 0 {
			s >>= shift
		} else if shift < 0 {
			s <<= -shift
		}
		v := uint16(int16(s))
		pcm = append(pcm, byte(v), byte(v>>8))
	}

	return &Clip{SampleRate: buf.Format.SampleRate, PCM: pcm}, nil
}

// WriteWAV writes c as a mono 16-bit PCM WAV file.
func WriteWAV(fs afero.Fs, path string, c *Clip) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data := make([]int, len(c.PCM)/2)
	for i := range data {
		data[i] = int(int16(uint16(c.PCM[2*i]) | uint16(c.PCM[2*i+1])<<8))
	}

	e := wav.NewEncoder(f, c.SampleRate, 16, 1, 1)
	if err := e.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return e.Close()
}
